package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/services"
)

type UserHandler struct {
	registry *services.Registry
	ledger   *services.CreditLedger
	log      logging.Logger
}

func NewUserHandler(registry *services.Registry, ledger *services.CreditLedger, log logging.Logger) *UserHandler {
	return &UserHandler{
		registry: registry,
		ledger:   ledger,
		log:      log,
	}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.registry.CreateUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUser accepts a user id or a wallet address.
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.registry.GetUser(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) GetCredits(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.registry.GetUser(ctx, c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	history, err := h.ledger.History(ctx, user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      user.ID,
		"credit_score": user.CreditScore,
		"history":      history,
	})
}

func (h *UserHandler) UpdateCredits(c *gin.Context) {
	var req models.UpdateCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	update, err := h.ledger.UpdateUserCredits(c.Request.Context(), c.Param("ref"), *req.NewScore, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Credits updated successfully",
		"update":  update,
	})
}

func (h *UserHandler) AuditCredits(c *gin.Context) {
	audit, err := h.ledger.Audit(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (h *UserHandler) ReconcileCredits(c *gin.Context) {
	audit, corrected, err := h.ledger.Reconcile(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audit":     audit,
		"corrected": corrected,
	})
}

func (h *UserHandler) GetOrganizingEvents(c *gin.Context) {
	events, err := h.registry.ListOrganizingEvents(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// GetAttendingEvents lists events the user registered for; ?upcoming=true
// keeps only events that have not started.
func (h *UserHandler) GetAttendingEvents(c *gin.Context) {
	upcoming := false
	if q := c.Query("upcoming"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upcoming parameter", "code": "validation"})
			return
		}
		upcoming = v
	}

	events, err := h.registry.ListAttendingEvents(c.Request.Context(), c.Param("ref"), upcoming)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}
