package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pocketsync/internal/domain"
	"pocketsync/internal/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TransactionRepository is the remote ledger of committed transactions.
type TransactionRepository struct {
	db     *pgxpool.Pool
	policy *retry.Policy
}

func NewTransactionRepository(db *pgxpool.Pool, policy *retry.Policy) *TransactionRepository {
	return &TransactionRepository{db: db, policy: policy}
}

const transactionColumns = `id, owner_id, amount::text, merchant, category, occurred_at, notes, source, COALESCE(queue_item_id, ''), created_at`

// FindDuplicate returns the earliest committed transaction of the owner with
// the same amount and merchant and an occurred_at within ±window, or nil.
func (r *TransactionRepository) FindDuplicate(ctx context.Context, ownerID string, amount decimal.Decimal, merchant string, occurredAt time.Time, window time.Duration) (*domain.CommittedTransaction, error) {
	var found *domain.CommittedTransaction

	err := r.policy.Do(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx,
			`SELECT `+transactionColumns+`
			 FROM transactions
			 WHERE owner_id = $1
			   AND amount = $2::numeric
			   AND merchant = $3
			   AND occurred_at BETWEEN $4 AND $5
			 ORDER BY id
			 LIMIT 1`,
			ownerID, amount.String(), merchant, occurredAt.Add(-window), occurredAt.Add(window),
		)
		tx, err := scanTransaction(row)
		if errors.Is(err, pgx.ErrNoRows) {
			found = nil
			return nil
		}
		if err != nil {
			return err
		}
		found = tx
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return found, nil
}

// Commit inserts tx and returns its id. Committing the same queue item twice
// returns the existing row, so a retried insert never creates a second one.
func (r *TransactionRepository) Commit(ctx context.Context, tx *domain.CommittedTransaction) (int64, error) {
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.db.QueryRow(ctx,
			`INSERT INTO transactions (owner_id, amount, merchant, category, occurred_at, notes, source, queue_item_id)
			 VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, NULLIF($8, ''))
			 ON CONFLICT (owner_id, queue_item_id) WHERE queue_item_id IS NOT NULL
			 DO UPDATE SET queue_item_id = EXCLUDED.queue_item_id
			 RETURNING id, created_at`,
			tx.OwnerID, tx.Amount.String(), tx.Merchant, tx.Category, tx.OccurredAt, tx.Notes, tx.Source, tx.QueueItemID,
		).Scan(&tx.ID, &tx.CreatedAt)
	})
	if err != nil {
		return 0, err
	}
	return tx.ID, nil
}

// GetByOwner returns the owner's most recent committed transactions.
func (r *TransactionRepository) GetByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.CommittedTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []*domain.CommittedTransaction
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx,
			`SELECT `+transactionColumns+`
			 FROM transactions
			 WHERE owner_id = $1
			 ORDER BY occurred_at DESC, id DESC
			 LIMIT $2`,
			ownerID, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			tx, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			out = append(out, tx)
		}
		return rows.Err()
	})
	return out, err
}

func scanTransaction(row pgx.Row) (*domain.CommittedTransaction, error) {
	var (
		tx     domain.CommittedTransaction
		amount string
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &amount, &tx.Merchant, &tx.Category, &tx.OccurredAt, &tx.Notes, &tx.Source, &tx.QueueItemID, &tx.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = d
	return &tx, nil
}
