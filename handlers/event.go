package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/services"
)

const ticketQRSize = 256

type EventHandler struct {
	registry *services.Registry
	log      logging.Logger
}

func NewEventHandler(registry *services.Registry, log logging.Logger) *EventHandler {
	return &EventHandler{
		registry: registry,
		log:      log,
	}
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.registry.CreateEvent(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) GetEvents(c *gin.Context) {
	events, err := h.registry.ListEvents(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.registry.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) RegisterUser(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.registry.RegisterParticipant(c.Request.Context(), c.Param("id"), req.UserID, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetParticipants lists an event's participants, optionally filtered by
// ?status=.
func (h *EventHandler) GetParticipants(c *gin.Context) {
	status := models.AttendanceStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter", "code": "validation"})
		return
	}

	ps, err := h.registry.ListParticipants(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": ps, "total": len(ps)})
}

func (h *EventHandler) GetPendingParticipants(c *gin.Context) {
	ps, err := h.registry.ListPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": ps, "total": len(ps)})
}

func (h *EventHandler) UpdateParticipantStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.registry.UpdateParticipantStatus(c.Request.Context(), c.Param("id"), c.Param("ref"), req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetTicket renders the participant's ticket as a QR PNG, or as JSON with
// ?format=json.
func (h *EventHandler) GetTicket(c *gin.Context) {
	ticket, err := h.registry.Ticket(c.Request.Context(), c.Param("id"), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, ticket)
		return
	}

	png, err := qrcode.Encode(ticket.Payload, qrcode.Medium, ticketQRSize)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
