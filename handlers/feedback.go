package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/services"
)

type FeedbackHandler struct {
	feedback *services.FeedbackService
	log      logging.Logger
}

func NewFeedbackHandler(feedback *services.FeedbackService, log logging.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, log: log}
}

func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	fb, err := h.feedback.SubmitFeedback(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (h *FeedbackHandler) GetEventFeedback(c *gin.Context) {
	list, err := h.feedback.ListEventFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": list, "total": len(list)})
}
