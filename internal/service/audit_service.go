package service

import (
	"context"
	"time"

	"pocketsync/internal/domain"
	"pocketsync/internal/logger"
)

// AuditWriter persists audit entries.
type AuditWriter interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// auditWriteTimeout bounds one audit insert. Entries are written after the
// request that caused them may have ended, so the caller's deadline is not used.
const auditWriteTimeout = 5 * time.Second

// AuditService handles audit logging. A nil *AuditService discards entries.
type AuditService struct {
	repo AuditWriter
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditWriter) *AuditService {
	return &AuditService{repo: repo}
}

// Log creates a new audit log entry. Failures are logged, never returned.
func (s *AuditService) Log(ctx context.Context, ownerID, action, category string, details map[string]interface{}) {
	s.LogWithRequest(ctx, ownerID, action, category, "", "", details)
}

// LogWithRequest creates an audit log with request info (IP, User-Agent)
func (s *AuditService) LogWithRequest(ctx context.Context, ownerID, action, category, ip, userAgent string, details map[string]interface{}) {
	if s == nil || s.repo == nil {
		return
	}
	log := &domain.AuditLog{
		OwnerID:   ownerID,
		Action:    action,
		Category:  category,
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "owner_id", ownerID)
	}
}

// LogSession logs a session open or close
func (s *AuditService) LogSession(ctx context.Context, ownerID string, open bool, ip, userAgent string) {
	action := domain.AuditActionSessionClose
	if open {
		action = domain.AuditActionSessionOpen
	}
	s.LogWithRequest(ctx, ownerID, action, domain.AuditCategorySession, ip, userAgent, nil)
}

// LogDrain logs the counts of a finished drain
func (s *AuditService) LogDrain(ctx context.Context, ownerID string, synced, duplicates, failed int) {
	s.Log(ctx, ownerID, domain.AuditActionSyncDrain, domain.AuditCategorySync, map[string]interface{}{
		"synced":     synced,
		"duplicates": duplicates,
		"failed":     failed,
	})
}
