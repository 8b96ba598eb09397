package http

import (
	"pocketsync/internal/config"
	"pocketsync/internal/http/handlers"
	"pocketsync/internal/http/middleware"
	"pocketsync/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts health checks, the queue API, the notice stream
// and /metrics on r.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub) {
	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	v1.Use(middleware.JWT())
	registerAPIRoutes(v1, h, middleware.OwnerRateLimit("sync", cfg.SyncRateLimit, cfg.SyncRateWindow))

	r.GET("/ws", middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow), ws.HandleWS(hub, cfg.AllowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, syncRL gin.HandlerFunc) {
	// Session lifetime (login/logout)
	api.POST("/session", h.OpenSession)
	api.DELETE("/session", h.CloseSession)

	queue := api.Group("/queue")
	{
		queue.GET("", h.GetQueue)
		queue.POST("", h.AddToQueue)
		queue.POST("/sync", syncRL, h.SyncQueue)
		queue.DELETE("/synced", h.ClearSynced)
		queue.DELETE("/:id", h.RemoveFromQueue)
		queue.POST("/:id/retry", syncRL, h.RetryQueueItem)
	}

	api.GET("/connectivity", h.GetConnectivity)
	api.PUT("/connectivity", h.SetConnectivity)

	api.GET("/transactions", h.ListTransactions)
}
