package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (h *Handler) GetConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.Connectivity.Online()})
}

// SetConnectivity records the online indicator reported by the UI.
func (h *Handler) SetConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online is required"})
		return
	}

	changed := h.Connectivity.Set(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": *req.Online, "changed": changed})
}
