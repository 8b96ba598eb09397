package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pocketsync/internal/config"
	"pocketsync/internal/connectivity"
	"pocketsync/internal/db"
	"pocketsync/internal/events"
	httpServer "pocketsync/internal/http"
	"pocketsync/internal/http/handlers"
	"pocketsync/internal/http/middleware"
	"pocketsync/internal/logger"
	"pocketsync/internal/queue"
	"pocketsync/internal/repository"
	"pocketsync/internal/retry"
	"pocketsync/internal/service"
	"pocketsync/internal/session"
	syncpkg "pocketsync/internal/sync"
	"pocketsync/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.SetJWTSecret(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := &retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	}

	dbPool := db.Connect(cfg.DatabaseURL, policy)
	defer dbPool.Close()

	queueDB, err := db.OpenSQLite(cfg.QueueDBPath)
	if err != nil {
		logger.Fatal("failed to open queue database", "path", cfg.QueueDBPath, "error", err)
	}
	defer queueDB.Close()

	store, err := queue.NewSQLiteStore(ctx, queueDB)
	if err != nil {
		logger.Fatal("failed to prepare queue store", "error", err)
	}

	bus := events.NewBus()

	var probe connectivity.Probe = connectivity.NewInterfaceProbe()
	if cfg.AssumeOnlineStart {
		probe = connectivity.ProbeFunc(func() bool { return true })
	}
	monitor := connectivity.NewMonitor(probe, bus)
	if !cfg.AssumeOnlineStart {
		go monitor.Run(ctx, cfg.ProbeInterval)
	}
	logger.Info("connectivity monitor started", "online", monitor.Online(), "interval", cfg.ProbeInterval.String())

	txRepo := repository.NewTransactionRepository(dbPool, policy)
	auditService := service.NewAuditService(repository.NewAuditRepository(dbPool, policy))

	sessions := session.NewManager(ctx, session.Deps{
		Store:        store,
		Remote:       txRepo,
		Connectivity: monitor,
		Bus:          bus,
		Audit:        auditService,
		Sync: syncpkg.Config{
			MaxRetries:      cfg.MaxRetries,
			DuplicateWindow: cfg.DuplicateWindow,
			RemoteTimeout:   cfg.RemoteTimeout,
		},
	})

	hub := ws.NewHub(bus, monitor)
	hub.Start()

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer middleware.CloseRedisRateLimiter()

	r := gin.Default()

	// CORS for the web client (served from a different origin)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
	r.Use(middleware.Metrics())

	h := handlers.NewHandler(sessions, txRepo, monitor, auditService)
	health := handlers.NewHealthHandler(dbPool, queueDB, cfg.Version)
	httpServer.RegisterRoutes(r, cfg, h, health, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// in-flight drains finish before the stores close
	sessions.CloseAll()
	hub.Stop()

	logger.Info("server exited")
}
