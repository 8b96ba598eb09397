package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"pocketsync/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	ledger    *pgxpool.Pool
	queue     *sql.DB
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. ledger is the remote
// Postgres pool, queue the local SQLite queue database.
func NewHealthHandler(ledger *pgxpool.Pool, queue *sql.DB, version string) *HealthHandler {
	return &HealthHandler{
		ledger:    ledger,
		queue:     queue,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness returns simple alive status (for k8s liveness probe)
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports the queue database as required. The ledger and Redis
// are reported but never fail readiness: the queue exists to absorb their
// outages.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.pingQueue(ctx); err != nil {
		checks["queue_db"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["queue_db"] = "healthy"
	}

	if err := h.pingLedger(ctx); err != nil {
		checks["ledger"] = "degraded: " + err.Error()
	} else {
		checks["ledger"] = "healthy"
	}

	if err := middleware.RedisReady(ctx); err != nil {
		checks["redis"] = "degraded: " + err.Error()
	} else {
		checks["redis"] = "healthy"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	checks["memory_alloc_mb"] = formatMB(m.Alloc)

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// Health is a combined endpoint for basic health checks
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.pingQueue(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "queue database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *HealthHandler) pingQueue(ctx context.Context) error {
	if h.queue == nil {
		return fmt.Errorf("not configured")
	}
	return h.queue.PingContext(ctx)
}

func (h *HealthHandler) pingLedger(ctx context.Context) error {
	if h.ledger == nil {
		return fmt.Errorf("not configured")
	}
	return h.ledger.Ping(ctx)
}

func formatMB(bytes uint64) string {
	mb := float64(bytes) / 1024 / 1024
	return fmt.Sprintf("%.2f", mb)
}
