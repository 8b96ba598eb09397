package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus is the lifecycle state of a queued transaction.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

const (
	DefaultCategory = "Uncategorized"
	DefaultSyncNote = "Synced from offline queue"
	SourceOffline   = "offline_queue"
)

// Valid reports whether s is one of the four known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// CanTransition encodes the item state machine:
// pending -> syncing, syncing -> synced|failed, failed -> syncing. synced is terminal.
func (s SyncStatus) CanTransition(to SyncStatus) bool {
	switch s {
	case SyncStatusPending:
		return to == SyncStatusSyncing
	case SyncStatusSyncing:
		return to == SyncStatusSynced || to == SyncStatusFailed
	case SyncStatusFailed:
		return to == SyncStatusSyncing
	}
	return false
}

// From lists the statuses that may move to s.
func (s SyncStatus) From() []SyncStatus {
	var out []SyncStatus
	for _, from := range []SyncStatus{SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusFailed} {
		if from.CanTransition(s) {
			out = append(out, from)
		}
	}
	return out
}

// TransactionPayload is what the user entered while offline.
type TransactionPayload struct {
	Amount     decimal.Decimal `json:"amount"`
	Merchant   string          `json:"merchant"`
	Category   string          `json:"category,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Notes      string          `json:"notes,omitempty"`
}

// QueuedTransaction is a locally persisted transaction awaiting remote confirmation.
type QueuedTransaction struct {
	ID              string             `json:"id"`
	OwnerID         string             `json:"owner_id"`
	TransactionData TransactionPayload `json:"transaction_data"`
	CreatedAt       time.Time          `json:"created_at"`
	SyncedAt        *time.Time         `json:"synced_at"`
	SyncStatus      SyncStatus         `json:"sync_status"`
	RetryCount      int                `json:"retry_count"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
}

// CommittedTransaction is the canonical record held by the remote ledger.
type CommittedTransaction struct {
	ID          int64           `db:"id" json:"id"`
	OwnerID     string          `db:"owner_id" json:"owner_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Merchant    string          `db:"merchant" json:"merchant"`
	Category    string          `db:"category" json:"category"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	Notes       string          `db:"notes" json:"notes"`
	Source      string          `db:"source" json:"source"`
	QueueItemID string          `db:"queue_item_id" json:"queue_item_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ToCommitted derives the remote record from a queue item, applying the
// category and notes defaults.
func (q *QueuedTransaction) ToCommitted() *CommittedTransaction {
	p := q.TransactionData

	category := p.Category
	if category == "" {
		category = DefaultCategory
	}
	notes := p.Notes
	if notes == "" {
		notes = DefaultSyncNote
	}

	return &CommittedTransaction{
		OwnerID:     q.OwnerID,
		Amount:      p.Amount,
		Merchant:    p.Merchant,
		Category:    category,
		OccurredAt:  p.OccurredAt,
		Notes:       notes,
		Source:      SourceOffline,
		QueueItemID: q.ID,
	}
}
