package handlers

import (
	"net/http"
	"strconv"

	"pocketsync/internal/http/middleware"
	"pocketsync/internal/logger"

	"github.com/gin-gonic/gin"
)

// ListTransactions returns the owner's committed transactions from the
// remote ledger, newest first.
func (h *Handler) ListTransactions(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	txs, err := h.Transactions.GetByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		logger.Error("failed to list transactions", "owner_id", ownerID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
