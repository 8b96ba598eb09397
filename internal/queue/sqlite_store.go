package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pocketsync/internal/domain"
	"pocketsync/internal/logger"

	"github.com/google/uuid"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS offline_queue (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT    NOT NULL UNIQUE,
	owner_id         TEXT    NOT NULL,
	transaction_data TEXT    NOT NULL,
	created_at       INTEGER NOT NULL,
	synced_at        INTEGER,
	sync_status      TEXT    NOT NULL DEFAULT 'pending'
		CHECK (sync_status IN ('pending', 'syncing', 'synced', 'failed')),
	retry_count      INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
	error_message    TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_offline_queue_owner_status
	ON offline_queue (owner_id, sync_status, created_at)`,
}

const selectColumns = `id, owner_id, transaction_data, created_at, synced_at, sync_status, retry_count, error_message`

// SQLiteStore keeps the queue in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*SQLiteStore)

// WithClock replaces time.Now for created_at and synced_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore creates the queue schema if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, &PersistenceError{Op: "init", Err: err}
		}
	}
	return s, nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, ownerID string, payload domain.TransactionPayload) (*domain.QueuedTransaction, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, &PersistenceError{Op: "enqueue", Err: ErrNotAuthenticated}
	}
	if err := validatePayload(&payload); err != nil {
		return nil, &PersistenceError{Op: "enqueue", Err: err}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &PersistenceError{Op: "enqueue", Err: err}
	}

	item := &domain.QueuedTransaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		TransactionData: payload,
		CreatedAt:       s.now().UTC(),
		SyncStatus:      domain.SyncStatusPending,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offline_queue (id, owner_id, transaction_data, created_at, sync_status, retry_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		item.ID, item.OwnerID, string(data), item.CreatedAt.UnixNano(), string(item.SyncStatus),
	)
	if err != nil {
		return nil, &PersistenceError{Op: "enqueue", Err: err}
	}

	logger.Debug("queue item stored", "owner_id", ownerID, "id", item.ID)
	return item, nil
}

func validatePayload(p *domain.TransactionPayload) error {
	p.Merchant = strings.TrimSpace(p.Merchant)
	p.Category = strings.TrimSpace(p.Category)
	if p.Merchant == "" {
		return fmt.Errorf("%w: merchant is required", ErrInvalidPayload)
	}
	if p.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrInvalidPayload)
	}
	p.OccurredAt = p.OccurredAt.UTC()
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, ownerID string, statuses ...domain.SyncStatus) ([]*domain.QueuedTransaction, error) {
	query := `SELECT ` + selectColumns + ` FROM offline_queue WHERE owner_id = ?`
	args := []any{ownerID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND sync_status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var items []*domain.QueuedTransaction
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return items, nil
}

func (s *SQLiteStore) Get(ctx context.Context, ownerID, id string) (*domain.QueuedTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM offline_queue WHERE owner_id = ? AND id = ?`,
		ownerID, id,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return item, nil
}

func (s *SQLiteStore) Update(ctx context.Context, ownerID, id string, u Update) error {
	var (
		sets []string
		args []any
	)

	if u.Status != nil {
		sets = append(sets, "sync_status = ?")
		args = append(args, string(*u.Status))

		if *u.Status == domain.SyncStatusSynced {
			at := s.now()
			if u.SyncedAt != nil {
				at = *u.SyncedAt
			}
			sets = append(sets, "synced_at = ?")
			args = append(args, at.UTC().UnixNano())
		} else {
			sets = append(sets, "synced_at = NULL")
		}
	}
	if u.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *u.RetryCount)
	}
	if u.ErrorMessage != nil {
		if *u.ErrorMessage == "" {
			sets = append(sets, "error_message = NULL")
		} else {
			sets = append(sets, "error_message = ?")
			args = append(args, *u.ErrorMessage)
		}
	}
	if len(sets) == 0 {
		return nil
	}

	where := `WHERE owner_id = ? AND id = ?`
	args = append(args, ownerID, id)
	if u.Status != nil {
		from := u.Status.From()
		if len(from) == 0 {
			return &PersistenceError{Op: "update", Err: fmt.Errorf("%w: to %s", ErrInvalidTransition, *u.Status)}
		}
		where += ` AND sync_status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
		for _, st := range from {
			args = append(args, string(st))
		}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE offline_queue SET `+strings.Join(sets, ", ")+` `+where, args...)
	if err != nil {
		return &PersistenceError{Op: "update", Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT sync_status FROM offline_queue WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Warn("queue item vanished before update", "owner_id", ownerID, "id", id)
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "update", Err: err}
	}
	return &PersistenceError{Op: "update", Err: fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, *u.Status)}
}

func (s *SQLiteStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM offline_queue WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, ownerID string, status domain.SyncStatus) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM offline_queue WHERE owner_id = ? AND sync_status = ?`, ownerID, string(status))
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) RecoverInterrupted(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE offline_queue
		 SET sync_status = 'failed', retry_count = retry_count + 1,
		     error_message = 'sync interrupted', synced_at = NULL
		 WHERE owner_id = ? AND sync_status = 'syncing'`,
		ownerID,
	)
	if err != nil {
		return 0, &PersistenceError{Op: "recover", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.QueuedTransaction, error) {
	var (
		item      domain.QueuedTransaction
		data      string
		createdAt int64
		syncedAt  sql.NullInt64
		status    string
		errMsg    sql.NullString
	)

	if err := row.Scan(&item.ID, &item.OwnerID, &data, &createdAt, &syncedAt, &status, &item.RetryCount, &errMsg); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &item.TransactionData); err != nil {
		return nil, fmt.Errorf("decode transaction_data of %s: %w", item.ID, err)
	}

	item.CreatedAt = time.Unix(0, createdAt).UTC()
	item.SyncStatus = domain.SyncStatus(status)
	if syncedAt.Valid {
		t := time.Unix(0, syncedAt.Int64).UTC()
		item.SyncedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		item.ErrorMessage = &msg
	}
	return &item, nil
}
