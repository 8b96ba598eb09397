// Package sync drains an owner's offline queue into the remote ledger.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pocketsync/internal/domain"
	"pocketsync/internal/events"
	"pocketsync/internal/logger"
	"pocketsync/internal/queue"

	"github.com/shopspring/decimal"
)

const (
	DefaultMaxRetries      = 5
	DefaultDuplicateWindow = 60 * time.Second
	DefaultRemoteTimeout   = 15 * time.Second

	DuplicateMessage = "Duplicate transaction: already exists"
)

var (
	ErrDrainInProgress = errors.New("a sync drain is already in progress")
	ErrNotRetryable    = errors.New("queue item cannot be retried")
)

// Remote is the ledger the queue is drained into.
type Remote interface {
	// FindDuplicate returns a committed transaction of the owner with the same
	// amount and merchant whose occurred_at lies within window of occurredAt,
	// or nil when there is none.
	FindDuplicate(ctx context.Context, ownerID string, amount decimal.Decimal, merchant string, occurredAt time.Time, window time.Duration) (*domain.CommittedTransaction, error)
	Commit(ctx context.Context, tx *domain.CommittedTransaction) (int64, error)
}

// CommitError is a remote failure recorded on a single queue item.
type CommitError struct {
	ItemID string
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.ItemID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

type Outcome string

const (
	OutcomeSynced    Outcome = "synced"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped is an item that changed state before the drain reached it.
	OutcomeSkipped   Outcome = "skipped"
)

type ItemResult struct {
	ID          string  `json:"id"`
	Outcome     Outcome `json:"outcome"`
	CommittedID int64   `json:"committed_id,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// DrainResult summarises one pass over the queue.
type DrainResult struct {
	OwnerID    string        `json:"owner_id"`
	Synced     int           `json:"synced"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Items      []ItemResult  `json:"items"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r *DrainResult) Processed() int {
	return len(r.Items)
}

type Config struct {
	MaxRetries      int
	DuplicateWindow time.Duration
	// RemoteTimeout bounds each ledger call. A call that runs out of time
	// fails the item like any other remote error.
	RemoteTimeout   time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGuard shares g with other engines. Without it the engine has a guard
// of its own.
func WithGuard(g *Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// Engine drains an owner's queue. Drains for one owner never overlap.
type Engine struct {
	store  queue.Store
	remote Remote
	bus    *events.Bus
	cfg    Config
	now    func() time.Time
	guard  *Guard
}

func NewEngine(store queue.Store, remote Remote, bus *events.Bus, cfg Config, opts ...Option) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	e := &Engine{
		store:  store,
		remote: remote,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		guard:  NewGuard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Busy reports whether a drain is in flight for ownerID.
func (e *Engine) Busy(ownerID string) bool {
	return e.guard.Busy(ownerID)
}

func (e *Engine) MaxRetries() int {
	return e.cfg.MaxRetries
}

// Drainable returns the items the next drain would process, oldest first.
func (e *Engine) Drainable(ctx context.Context, ownerID string) ([]*domain.QueuedTransaction, error) {
	items, err := e.store.List(ctx, ownerID, domain.SyncStatusPending, domain.SyncStatusFailed)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.RetryCount < e.cfg.MaxRetries {
			out = append(out, it)
		}
	}
	return out, nil
}

// Drain pushes the owner's drainable items to the remote ledger one at a time.
// Item failures are recorded on the item and do not stop the drain. Once
// started, the drain runs to completion even if ctx is cancelled; each
// remote call is bounded by RemoteTimeout instead.
func (e *Engine) Drain(ctx context.Context, ownerID string) (*DrainResult, error) {
	if !e.guard.TryAcquire(ownerID) {
		drainsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrDrainInProgress
	}
	defer e.guard.Release(ownerID)

	ctx = context.WithoutCancel(ctx)
	items, err := e.Drainable(ctx, ownerID)
	if err != nil {
		drainsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return e.run(ctx, ownerID, items), nil
}

// SyncItem pushes a single pending or failed item regardless of its retry
// count. It is the manual retry for items the automatic drain skips.
func (e *Engine) SyncItem(ctx context.Context, ownerID, id string) (*DrainResult, error) {
	if !e.guard.TryAcquire(ownerID) {
		drainsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrDrainInProgress
	}
	defer e.guard.Release(ownerID)

	ctx = context.WithoutCancel(ctx)
	item, err := e.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if item.SyncStatus != domain.SyncStatusPending && item.SyncStatus != domain.SyncStatusFailed {
		return nil, fmt.Errorf("%w: item is %s", ErrNotRetryable, item.SyncStatus)
	}
	return e.run(ctx, ownerID, []*domain.QueuedTransaction{item}), nil
}

func (e *Engine) run(ctx context.Context, ownerID string, items []*domain.QueuedTransaction) *DrainResult {
	res := &DrainResult{OwnerID: ownerID, Items: make([]ItemResult, 0, len(items))}
	if len(items) == 0 {
		drainsTotal.WithLabelValues("empty").Inc()
		return res
	}

	start := time.Now()
	log := logger.ForOwner(ownerID)
	log.Info("sync drain started", "items", len(items))

	for _, item := range items {
		r := e.syncItem(ctx, item)
		switch r.Outcome {
		case OutcomeSynced:
			res.Synced++
		case OutcomeDuplicate:
			res.Duplicates++
		case OutcomeFailed:
			res.Failed++
		case OutcomeSkipped:
			continue
		}
		itemsTotal.WithLabelValues(string(r.Outcome)).Inc()
		res.Items = append(res.Items, r)
	}

	if len(res.Items) == 0 {
		drainsTotal.WithLabelValues("empty").Inc()
		return res
	}

	res.Duration = time.Since(start)
	drainDuration.Observe(res.Duration.Seconds())
	if res.Failed > 0 {
		drainsTotal.WithLabelValues("partial").Inc()
	} else {
		drainsTotal.WithLabelValues("completed").Inc()
	}

	log.Info("sync drain finished",
		"synced", res.Synced,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	e.publishSummary(res)
	return res
}

func (e *Engine) syncItem(ctx context.Context, item *domain.QueuedTransaction) ItemResult {
	log := logger.ForOwner(item.OwnerID).With("item_id", item.ID)

	err := e.store.Update(ctx, item.OwnerID, item.ID, queue.Update{
		Status: queue.StatusPtr(domain.SyncStatusSyncing),
	})
	if errors.Is(err, queue.ErrInvalidTransition) {
		log.Warn("queue item changed before sync, skipping", "error", err)
		return ItemResult{ID: item.ID, Outcome: OutcomeSkipped}
	}
	if err != nil {
		log.Error("failed to mark item syncing", "error", err)
		return ItemResult{ID: item.ID, Outcome: OutcomeFailed, Error: err.Error()}
	}

	p := item.TransactionData
	var dup *domain.CommittedTransaction
	err = e.withTimeout(ctx, func(ctx context.Context) (err error) {
		dup, err = e.remote.FindDuplicate(ctx, item.OwnerID, p.Amount, p.Merchant, p.OccurredAt, e.cfg.DuplicateWindow)
		return err
	})
	if err != nil {
		return e.fail(ctx, item, &CommitError{ItemID: item.ID, Err: err})
	}
	if dup != nil {
		log.Info("duplicate found, marking synced", "committed_id", dup.ID)
		e.markSynced(ctx, item, queue.StringPtr(DuplicateMessage))
		return ItemResult{ID: item.ID, Outcome: OutcomeDuplicate, CommittedID: dup.ID}
	}

	var id int64
	err = e.withTimeout(ctx, func(ctx context.Context) (err error) {
		id, err = e.remote.Commit(ctx, item.ToCommitted())
		return err
	})
	if err != nil {
		return e.fail(ctx, item, &CommitError{ItemID: item.ID, Err: err})
	}

	e.markSynced(ctx, item, queue.StringPtr(""))
	log.Debug("item committed", "committed_id", id)
	return ItemResult{ID: item.ID, Outcome: OutcomeSynced, CommittedID: id}
}

// withTimeout runs a ledger call under RemoteTimeout.
func (e *Engine) withTimeout(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()
	return call(ctx)
}

func (e *Engine) markSynced(ctx context.Context, item *domain.QueuedTransaction, msg *string) {
	at := e.now().UTC()
	err := e.store.Update(ctx, item.OwnerID, item.ID, queue.Update{
		Status:       queue.StatusPtr(domain.SyncStatusSynced),
		SyncedAt:     &at,
		ErrorMessage: msg,
	})
	if err != nil {
		logger.Error("failed to mark item synced", "owner_id", item.OwnerID, "item_id", item.ID, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, item *domain.QueuedTransaction, cerr *CommitError) ItemResult {
	logger.Warn("sync item failed", "owner_id", item.OwnerID, "item_id", item.ID, "retry_count", item.RetryCount+1, "error", cerr.Err)

	msg := cerr.Err.Error()
	err := e.store.Update(ctx, item.OwnerID, item.ID, queue.Update{
		Status:       queue.StatusPtr(domain.SyncStatusFailed),
		RetryCount:   queue.IntPtr(item.RetryCount + 1),
		ErrorMessage: &msg,
	})
	if err != nil {
		logger.Error("failed to record item failure", "owner_id", item.OwnerID, "item_id", item.ID, "error", err)
	}
	return ItemResult{ID: item.ID, Outcome: OutcomeFailed, Error: msg}
}

func (e *Engine) publishSummary(res *DrainResult) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.SyncSummary{
		OwnerID:    res.OwnerID,
		Synced:     res.Synced,
		Duplicates: res.Duplicates,
		Failed:     res.Failed,
	})
	e.bus.Publish(SummaryNotice(res))
}

// SummaryNotice is the single user-facing notice sent after a drain.
func SummaryNotice(res *DrainResult) events.Notice {
	ok := res.Synced + res.Duplicates
	if res.Failed == 0 {
		return events.Notice{
			OwnerID: res.OwnerID,
			Level:   events.NoticeSuccess,
			Message: fmt.Sprintf("Synced %d %s", ok, plural(ok)),
		}
	}
	if ok == 0 {
		return events.Notice{
			OwnerID: res.OwnerID,
			Level:   events.NoticeError,
			Message: fmt.Sprintf("Failed to sync %d %s", res.Failed, plural(res.Failed)),
		}
	}
	return events.Notice{
		OwnerID: res.OwnerID,
		Level:   events.NoticeWarning,
		Message: fmt.Sprintf("Synced %d %s, %d failed", ok, plural(ok), res.Failed),
	}
}

func plural(n int) string {
	if n == 1 {
		return "transaction"
	}
	return "transactions"
}
