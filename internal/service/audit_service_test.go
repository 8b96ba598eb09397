package service

import (
	"context"
	"testing"

	"pocketsync/internal/domain"
)

type ctxRecorder struct {
	ctx context.Context
}

func (r *ctxRecorder) Create(ctx context.Context, _ *domain.AuditLog) error {
	r.ctx = ctx
	return nil
}

func TestAuditService_WriteOutlivesCallerWithDeadline(t *testing.T) {
	rec := &ctxRecorder{}
	svc := NewAuditService(rec)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	svc.LogDrain(parent, "owner-1", 1, 0, 0)

	if rec.ctx == nil {
		t.Fatal("audit entry not written")
	}
	if _, ok := rec.ctx.Deadline(); !ok {
		t.Fatal("audit write has no deadline")
	}
	if err := rec.ctx.Err(); err != nil {
		t.Fatalf("audit write saw caller cancellation: %v", err)
	}
}

func TestAuditService_NilDiscards(t *testing.T) {
	var svc *AuditService
	svc.LogSession(context.Background(), "owner-1", true, "", "")
}
