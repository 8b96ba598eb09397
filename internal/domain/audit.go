package domain

import "time"

// AuditLog represents an audit log entry for queue and sync actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	OwnerID   string                 `db:"owner_id" json:"owner_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategorySession = "session"
	AuditCategoryQueue   = "queue"
	AuditCategorySync    = "sync"
)

// Audit actions
const (
	AuditActionSessionOpen  = "session_open"
	AuditActionSessionClose = "session_close"

	AuditActionQueueRemove      = "queue_remove"
	AuditActionQueueClearSynced = "queue_clear_synced"
	AuditActionQueueRetry       = "queue_retry"

	AuditActionSyncDrain = "sync_drain"
)
