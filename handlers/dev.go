package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/services"
)

type DevHandler struct {
	registry   *services.Registry
	production bool
	log        logging.Logger
}

func NewDevHandler(registry *services.Registry, production bool, log logging.Logger) *DevHandler {
	return &DevHandler{registry: registry, production: production, log: log}
}

// SeedSampleData creates a demo user and event. Refused in production.
func (h *DevHandler) SeedSampleData(c *gin.Context) {
	if h.production {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sample data is disabled in production", "code": "forbidden"})
		return
	}
	user, event, err := h.registry.SeedSampleData(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Sample data created",
		"user":    user,
		"event":   event,
	})
}
