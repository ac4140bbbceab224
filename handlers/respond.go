package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
)

func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "validation":
		return http.StatusBadRequest
	case "already_exists", "already_checked_in":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {"error", "code"} with the status for err's kind.
// Internal errors are logged and their detail is not returned.
func respondError(c *gin.Context, log logging.Logger, err error) {
	code := models.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}
