package handlers

import (
	"context"
	"errors"
	"net/http"

	"pocketsync/internal/domain"
	"pocketsync/internal/http/middleware"
	"pocketsync/internal/service"
	"pocketsync/internal/session"

	"github.com/gin-gonic/gin"
)

// TransactionLister reads committed transactions from the remote ledger.
type TransactionLister interface {
	GetByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.CommittedTransaction, error)
}

// ConnectivityReporter is the connectivity monitor as seen by the API.
type ConnectivityReporter interface {
	Online() bool
	Set(online bool) bool
}

type Handler struct {
	Sessions     *session.Manager
	Transactions TransactionLister
	Connectivity ConnectivityReporter
	AuditService *service.AuditService
}

func NewHandler(sessions *session.Manager, txs TransactionLister, conn ConnectivityReporter, audit *service.AuditService) *Handler {
	return &Handler{
		Sessions:     sessions,
		Transactions: txs,
		Connectivity: conn,
		AuditService: audit,
	}
}

// queueFor returns the caller's open session, writing the error response
// when there is none.
func (h *Handler) queueFor(c *gin.Context) (*service.OfflineQueue, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	q, err := h.Sessions.Get(ownerID)
	if errors.Is(err, session.ErrSessionNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "no open session, POST /api/v1/session first"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return q, true
}
