package db

import (
	"context"
	"fmt"
	"time"

	"pocketsync/internal/logger"
	"pocketsync/internal/retry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultConnectTimeout applies when the DSN sets no connect_timeout.
const DefaultConnectTimeout = 5 * time.Second

// Connect opens the remote ledger pool; failures are fatal.
func Connect(dsn string, policy *retry.Policy) *pgxpool.Pool {
	pool, err := ConnectContext(context.Background(), dsn, policy)
	if err != nil {
		logger.Fatal("failed to connect to ledger database", "error", err)
	}
	logger.Info("database connected")
	return pool
}

// ConnectContext creates the pool and pings it under the shared retry policy.
func ConnectContext(ctx context.Context, dsn string, policy *retry.Policy) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	timeout := cfg.ConnConfig.ConnectTimeout
	err = policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PoolConfig parses dsn and bounds every new connection attempt.
func PoolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnConfig.ConnectTimeout <= 0 {
		cfg.ConnConfig.ConnectTimeout = DefaultConnectTimeout
	}
	return cfg, nil
}
