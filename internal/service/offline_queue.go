package service

import (
	"context"
	"errors"
	"sync"

	"pocketsync/internal/domain"
	"pocketsync/internal/events"
	"pocketsync/internal/logger"
	"pocketsync/internal/queue"
	syncpkg "pocketsync/internal/sync"
)

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
}

// SkipReason explains why a sync request did nothing.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipOffline    SkipReason = "offline"
	SkipInProgress SkipReason = "sync_in_progress"
	SkipEmpty      SkipReason = "nothing_to_sync"
	SkipClosed     SkipReason = "session_closed"
)

// QueueSnapshot is the read-only view the UI renders.
type QueueSnapshot struct {
	Queue        []*domain.QueuedTransaction `json:"queue"`
	PendingCount int                         `json:"pending_count"`
	FailedCount  int                         `json:"failed_count"`
	IsOnline     bool                        `json:"is_online"`
	IsSyncing    bool                        `json:"is_syncing"`
}

// OfflineQueue is the one surface the HTTP and WebSocket layers use for an
// owner's queue. It lives as long as the owner's session.
type OfflineQueue struct {
	ownerID string
	store   queue.Store
	engine  *syncpkg.Engine
	conn    Connectivity
	bus     *events.Bus
	audit   *AuditService

	mu    sync.RWMutex
	items []*domain.QueuedTransaction
	pend  int
	fail  int

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	closed bool
	wg     sync.WaitGroup
}

func NewOfflineQueue(ownerID string, store queue.Store, engine *syncpkg.Engine, conn Connectivity, bus *events.Bus, audit *AuditService) *OfflineQueue {
	return &OfflineQueue{
		ownerID: ownerID,
		store:   store,
		engine:  engine,
		conn:    conn,
		bus:     bus,
		audit:   audit,
		unsub:   func() {},
	}
}

func (q *OfflineQueue) OwnerID() string {
	return q.ownerID
}

// Start loads the listing and subscribes to connectivity changes. Auto-sync
// runs on ctx until Close. When already online with work queued, a drain is
// started right away.
func (q *OfflineQueue) Start(ctx context.Context) error {
	q.ctx, q.cancel = context.WithCancel(ctx)

	if err := q.Refresh(q.ctx); err != nil {
		q.cancel()
		return err
	}
	if q.bus != nil {
		q.unsub = q.bus.Subscribe(events.KindConnectivityChanged, q.onConnectivity)
	}
	if q.conn.Online() {
		q.autoSync()
	}
	return nil
}

// Close stops auto-sync and waits for every in-flight drain of the session,
// manual ones included. Later sync requests are skipped.
func (q *OfflineQueue) Close() {
	q.unsub()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *OfflineQueue) onConnectivity(ev events.Event) {
	if c, ok := ev.(events.ConnectivityChanged); ok && c.Online {
		q.autoSync()
	}
}

func (q *OfflineQueue) autoSync() {
	if q.ctx == nil || q.engine.Busy(q.ownerID) {
		return
	}

	q.mu.RLock()
	empty := q.pend == 0 && q.fail == 0
	q.mu.RUnlock()
	if empty || !q.begin() {
		return
	}

	go func() {
		defer q.wg.Done()
		if _, reason, err := q.Sync(q.ctx); err != nil {
			logger.Error("auto-sync failed", "owner_id", q.ownerID, "error", err)
		} else if reason != SkipNone {
			logger.Debug("auto-sync skipped", "owner_id", q.ownerID, "reason", string(reason))
		}
	}()
}

// begin registers an operation that may drain, so Close can wait for it.
// It returns false once the session is closed.
func (q *OfflineQueue) begin() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.wg.Add(1)
	return true
}

// AddToQueue stores a transaction entered while offline. A persistence
// failure is logged and returned with a nil record.
func (q *OfflineQueue) AddToQueue(ctx context.Context, payload domain.TransactionPayload) (*domain.QueuedTransaction, error) {
	item, err := q.store.Enqueue(ctx, q.ownerID, payload)
	if err != nil {
		logger.Error("failed to queue transaction", "owner_id", q.ownerID, "error", err)
		return nil, err
	}
	q.refreshQuietly(ctx)
	return item, nil
}

// SyncAll drains the queue. It returns (nil, nil) when offline, when a drain
// is already running, or when nothing is drainable.
func (q *OfflineQueue) SyncAll(ctx context.Context) (*syncpkg.DrainResult, error) {
	res, _, err := q.Sync(ctx)
	return res, err
}

// Sync is SyncAll with the reason a request was skipped.
func (q *OfflineQueue) Sync(ctx context.Context) (*syncpkg.DrainResult, SkipReason, error) {
	if !q.begin() {
		return nil, SkipClosed, nil
	}
	defer q.wg.Done()

	if !q.conn.Online() {
		return nil, SkipOffline, nil
	}
	if q.engine.Busy(q.ownerID) {
		return nil, SkipInProgress, nil
	}
	drainable, err := q.engine.Drainable(ctx, q.ownerID)
	if err != nil {
		return nil, SkipNone, err
	}
	if len(drainable) == 0 {
		return nil, SkipEmpty, nil
	}

	res, err := q.engine.Drain(ctx, q.ownerID)
	if errors.Is(err, syncpkg.ErrDrainInProgress) {
		return nil, SkipInProgress, nil
	}
	if err != nil {
		return nil, SkipNone, err
	}

	q.refreshQuietly(context.WithoutCancel(ctx))
	q.audit.LogDrain(context.WithoutCancel(ctx), q.ownerID, res.Synced, res.Duplicates, res.Failed)
	return res, SkipNone, nil
}

// RetryItem immediately pushes one pending or failed item, including one
// that has used up its automatic retries.
func (q *OfflineQueue) RetryItem(ctx context.Context, id string) (*syncpkg.DrainResult, SkipReason, error) {
	if !q.begin() {
		return nil, SkipClosed, nil
	}
	defer q.wg.Done()

	if !q.conn.Online() {
		return nil, SkipOffline, nil
	}
	res, err := q.engine.SyncItem(ctx, q.ownerID, id)
	if errors.Is(err, syncpkg.ErrDrainInProgress) {
		return nil, SkipInProgress, nil
	}
	if err != nil {
		return nil, SkipNone, err
	}

	q.refreshQuietly(context.WithoutCancel(ctx))
	q.audit.Log(context.WithoutCancel(ctx), q.ownerID, domain.AuditActionQueueRetry, domain.AuditCategoryQueue, map[string]interface{}{
		"item_id": id,
		"synced":  res.Synced + res.Duplicates,
	})
	return res, SkipNone, nil
}

func (q *OfflineQueue) RemoveFromQueue(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, q.ownerID, id); err != nil {
		if !errors.Is(err, queue.ErrNotFound) {
			logger.Error("failed to remove queue item", "owner_id", q.ownerID, "id", id, "error", err)
		}
		return err
	}
	q.audit.Log(ctx, q.ownerID, domain.AuditActionQueueRemove, domain.AuditCategoryQueue, map[string]interface{}{"item_id": id})
	q.refreshQuietly(ctx)
	return nil
}

// ClearSynced removes every synced item and returns how many were removed.
func (q *OfflineQueue) ClearSynced(ctx context.Context) (int64, error) {
	n, err := q.store.DeleteWhere(ctx, q.ownerID, domain.SyncStatusSynced)
	if err != nil {
		logger.Error("failed to clear synced items", "owner_id", q.ownerID, "error", err)
		return 0, err
	}
	if n > 0 {
		q.audit.Log(ctx, q.ownerID, domain.AuditActionQueueClearSynced, domain.AuditCategoryQueue, map[string]interface{}{"removed": n})
	}
	q.refreshQuietly(ctx)
	return n, nil
}

// Refresh reloads the listing, recomputes the counts and publishes QueueChanged.
func (q *OfflineQueue) Refresh(ctx context.Context) error {
	items, err := q.store.List(ctx, q.ownerID)
	if err != nil {
		return err
	}

	pend, fail := 0, 0
	for _, it := range items {
		switch it.SyncStatus {
		case domain.SyncStatusPending:
			pend++
		case domain.SyncStatusFailed:
			fail++
		}
	}

	q.mu.Lock()
	q.items, q.pend, q.fail = items, pend, fail
	q.mu.Unlock()

	if q.bus != nil {
		q.bus.Publish(events.QueueChanged{
			OwnerID:      q.ownerID,
			Total:        len(items),
			PendingCount: pend,
			FailedCount:  fail,
		})
	}
	return nil
}

func (q *OfflineQueue) refreshQuietly(ctx context.Context) {
	if err := q.Refresh(ctx); err != nil {
		logger.Warn("failed to refresh queue listing", "owner_id", q.ownerID, "error", err)
	}
}

// Snapshot returns the listing as of the last refresh with live connectivity
// and sync flags.
func (q *OfflineQueue) Snapshot() QueueSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	items := make([]*domain.QueuedTransaction, len(q.items))
	copy(items, q.items)
	return QueueSnapshot{
		Queue:        items,
		PendingCount: q.pend,
		FailedCount:  q.fail,
		IsOnline:     q.conn.Online(),
		IsSyncing:    q.engine.Busy(q.ownerID),
	}
}
