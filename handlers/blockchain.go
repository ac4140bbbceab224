package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"ticketchain-backend/contracts"
	"ticketchain-backend/logging"
)

// ChainReader is the read side of the TicketChain contract.
type ChainReader interface {
	Status(ctx context.Context) (*contracts.ChainStatus, error)
	GetCreditScore(ctx context.Context, wallet string) (*contracts.CreditScore, error)
	GetEvent(ctx context.Context, chainEventID int64) (*contracts.ChainEvent, error)
}

// BlockchainHandler serves contract reads. chain is nil when the mirror is
// not configured.
type BlockchainHandler struct {
	chain ChainReader
	log   logging.Logger
}

func NewBlockchainHandler(chain ChainReader, log logging.Logger) *BlockchainHandler {
	return &BlockchainHandler{chain: chain, log: log}
}

func (h *BlockchainHandler) unavailable(c *gin.Context) bool {
	if h.chain != nil {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Blockchain integration is not configured", "code": "unavailable"})
	return true
}

func (h *BlockchainHandler) chainError(c *gin.Context, err error) {
	h.log.Warn(c.Request.Context(), "chain read failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read from blockchain", "code": "chain_error"})
}

func (h *BlockchainHandler) Status(c *gin.Context) {
	if h.chain == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	st, err := h.chain.Status(c.Request.Context())
	if err != nil {
		h.log.Warn(c.Request.Context(), "chain status failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"enabled": true, "connected": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "connected": true, "chain": st})
}

func (h *BlockchainHandler) GetCreditScore(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	wallet := c.Param("wallet")
	if !common.IsHexAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address", "code": "validation"})
		return
	}
	score, err := h.chain.GetCreditScore(c.Request.Context(), wallet)
	if err != nil {
		h.chainError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (h *BlockchainHandler) GetEvent(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	id, err := strconv.ParseInt(c.Param("chainId"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid blockchain event id", "code": "validation"})
		return
	}
	ev, err := h.chain.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.chainError(c, err)
		return
	}
	if !ev.Exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found on chain", "code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, ev)
}
