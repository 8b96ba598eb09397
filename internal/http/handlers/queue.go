package handlers

import (
	"errors"
	"net/http"
	"time"

	"pocketsync/internal/domain"
	"pocketsync/internal/queue"
	"pocketsync/internal/service"
	syncpkg "pocketsync/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type enqueueRequest struct {
	Amount     *decimal.Decimal `json:"amount"`
	Merchant   string           `json:"merchant"`
	Category   string           `json:"category"`
	OccurredAt time.Time        `json:"occurred_at"`
	Notes      string           `json:"notes"`
}

// GetQueue returns the listing with pending/failed counts and the
// connectivity and sync flags.
func (h *Handler) GetQueue(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, q.Snapshot())
}

func (h *Handler) AddToQueue(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Amount == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "amount is required"})
		return
	}

	item, err := q.AddToQueue(c.Request.Context(), domain.TransactionPayload{
		Amount:     *req.Amount,
		Merchant:   req.Merchant,
		Category:   req.Category,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrInvalidPayload):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, queue.ErrNotAuthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue transaction"})
		}
		return
	}

	c.JSON(http.StatusCreated, item)
}

// SyncQueue drains the queue now. A request that has nothing to do answers
// 202 with the reason instead of an error.
func (h *Handler) SyncQueue(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}

	res, reason, err := q.Sync(c.Request.Context())
	writeSyncResult(c, res, reason, err)
}

func (h *Handler) RetryQueueItem(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}

	res, reason, err := q.RetryItem(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "queue item not found"})
	case errors.Is(err, syncpkg.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		writeSyncResult(c, res, reason, err)
	}
}

func writeSyncResult(c *gin.Context, res *syncpkg.DrainResult, reason service.SkipReason, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}
	if res == nil {
		c.JSON(http.StatusAccepted, gin.H{"skipped": reason})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RemoveFromQueue(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}

	if err := q.RemoveFromQueue(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "queue item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove queue item"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearSynced(c *gin.Context) {
	q, ok := h.queueFor(c)
	if !ok {
		return
	}

	n, err := q.ClearSynced(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear synced items"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
