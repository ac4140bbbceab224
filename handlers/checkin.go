package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/services"
)

type CheckinHandler struct {
	engine *services.CheckInEngine
	log    logging.Logger
}

func NewCheckinHandler(engine *services.CheckInEngine, log logging.Logger) *CheckinHandler {
	return &CheckinHandler{engine: engine, log: log}
}

// CheckIn scores the participant's arrival against the event start and
// applies the credit change. check_in_time defaults to now.
func (h *CheckinHandler) CheckIn(c *gin.Context) {
	var req models.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.engine.CheckIn(c.Request.Context(), c.Param("id"), req.UserID, req.CheckInTime, req.UseBlockchain)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Successfully checked in to event",
		"result":  result,
	})
}
