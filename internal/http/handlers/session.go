package handlers

import (
	"errors"
	"net/http"

	"pocketsync/internal/http/middleware"
	"pocketsync/internal/logger"
	"pocketsync/internal/session"

	"github.com/gin-gonic/gin"
)

// OpenSession starts the owner's queue session at login. Calling it again
// returns the existing session.
func (h *Handler) OpenSession(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	q, err := h.Sessions.Open(c.Request.Context(), ownerID)
	if err != nil {
		logger.Error("failed to open session", "owner_id", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open session"})
		return
	}

	c.JSON(http.StatusCreated, q.Snapshot())
}

// CloseSession ends the owner's session at logout.
func (h *Handler) CloseSession(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Sessions.Close(c.Request.Context(), ownerID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close session"})
		return
	}
	c.Status(http.StatusNoContent)
}
