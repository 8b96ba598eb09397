package repository

import (
	"context"
	"encoding/json"

	"pocketsync/internal/domain"
	"pocketsync/internal/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db     *pgxpool.Pool
	policy *retry.Policy
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool, policy *retry.Policy) *AuditRepository {
	return &AuditRepository{db: db, policy: policy}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	detailsJSON, err := json.Marshal(log.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	return r.policy.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO audit_logs (owner_id, action, category, details, ip, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, log.OwnerID, log.Action, log.Category, detailsJSON, log.IP, log.UserAgent)
		return err
	})
}

// GetByOwner returns the most recent audit logs for an owner
func (r *AuditRepository) GetByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, action, category, details, ip, user_agent, created_at
		FROM audit_logs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

func scanAuditLogs(rows pgx.Rows) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	for rows.Next() {
		var log domain.AuditLog
		var detailsJSON []byte
		if err := rows.Scan(&log.ID, &log.OwnerID, &log.Action, &log.Category, &detailsJSON, &log.IP, &log.UserAgent, &log.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
			log.Details = make(map[string]interface{})
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
