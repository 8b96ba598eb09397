// Package queue is the local holding area for transactions entered while the
// remote ledger is unreachable.
package queue

import (
	"context"
	"errors"
	"time"

	"pocketsync/internal/domain"
)

var (
	ErrNotAuthenticated  = errors.New("owner is not authenticated")
	ErrInvalidPayload    = errors.New("invalid transaction payload")
	ErrNotFound          = errors.New("queue item not found")
	ErrInvalidTransition = errors.New("invalid sync status transition")
)

// PersistenceError reports a failed write or read of the local store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "queue " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Update is a partial update of a queue item. Nil fields are left unchanged.
//
// Setting Status also maintains synced_at: it is stamped (SyncedAt or now)
// when the status becomes synced and cleared for any other status.
type Update struct {
	Status     *domain.SyncStatus
	SyncedAt   *time.Time
	RetryCount *int
	// ErrorMessage writes the message; an empty string clears it.
	ErrorMessage *string
}

// Store holds queue items; every operation is scoped to one owner.
type Store interface {
	Enqueue(ctx context.Context, ownerID string, payload domain.TransactionPayload) (*domain.QueuedTransaction, error)
	// List returns items in the given statuses (all when none are given),
	// oldest first.
	List(ctx context.Context, ownerID string, statuses ...domain.SyncStatus) ([]*domain.QueuedTransaction, error)
	Get(ctx context.Context, ownerID, id string) (*domain.QueuedTransaction, error)
	// Update applies u; a record that no longer exists is logged and skipped.
	// A status change the item state machine forbids returns ErrInvalidTransition.
	Update(ctx context.Context, ownerID, id string, u Update) error
	Delete(ctx context.Context, ownerID, id string) error
	DeleteWhere(ctx context.Context, ownerID string, status domain.SyncStatus) (int64, error)
	// RecoverInterrupted marks items left in syncing by a previous process as failed.
	RecoverInterrupted(ctx context.Context, ownerID string) (int64, error)
}

// StatusPtr is shorthand for building an Update.
func StatusPtr(s domain.SyncStatus) *domain.SyncStatus { return &s }

// StringPtr is shorthand for building an Update.
func StringPtr(s string) *string { return &s }

// IntPtr is shorthand for building an Update.
func IntPtr(n int) *int { return &n }
