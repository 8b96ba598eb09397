package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pocketsync/internal/connectivity"
	"pocketsync/internal/db"
	"pocketsync/internal/domain"
	"pocketsync/internal/events"
	"pocketsync/internal/queue"
	syncpkg "pocketsync/internal/sync"

	"github.com/shopspring/decimal"
)

type memLedger struct {
	mu      sync.Mutex
	rows    []*domain.CommittedTransaction
	commits int
	gate    chan struct{}
	entered chan struct{}
}

func (l *memLedger) FindDuplicate(_ context.Context, ownerID string, amount decimal.Decimal, merchant string, at time.Time, window time.Duration) (*domain.CommittedTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		d := r.OccurredAt.Sub(at)
		if d < 0 {
			d = -d
		}
		if r.OwnerID == ownerID && r.Merchant == merchant && r.Amount.Equal(amount) && d <= window {
			return r, nil
		}
	}
	return nil, nil
}

func (l *memLedger) Commit(_ context.Context, tx *domain.CommittedTransaction) (int64, error) {
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commits++
	tx.ID = int64(len(l.rows) + 1)
	l.rows = append(l.rows, tx)
	return tx.ID, nil
}

func (l *memLedger) commitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits
}

type auditRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditRecorder) Create(_ context.Context, log *domain.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type fixture struct {
	q       *OfflineQueue
	store   queue.Store
	ledger  *memLedger
	monitor *connectivity.Monitor
	bus     *events.Bus
	audit   *auditRecorder
}

func newFixture(t *testing.T, owner string, online bool) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := queue.NewSQLiteStore(context.Background(), conn)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	bus := events.NewBus()
	ledger := &memLedger{}
	monitor := connectivity.NewMonitor(connectivity.ProbeFunc(func() bool { return online }), bus)
	engine := syncpkg.NewEngine(store, ledger, bus, syncpkg.Config{})
	rec := &auditRecorder{}

	q := NewOfflineQueue(owner, store, engine, monitor, bus, NewAuditService(rec))
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(q.Close)

	return &fixture{q: q, store: store, ledger: ledger, monitor: monitor, bus: bus, audit: rec}
}

func cafeLuna() domain.TransactionPayload {
	return domain.TransactionPayload{
		Amount:     decimal.RequireFromString("-42.50"),
		Merchant:   "Cafe Luna",
		OccurredAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestOfflineQueue_ReconnectAutoSyncs(t *testing.T) {
	f := newFixture(t, "owner-1", false)
	ctx := context.Background()

	summaries := make(chan events.SyncSummary, 1)
	f.bus.Subscribe(events.KindSyncSummary, func(ev events.Event) {
		summaries <- ev.(events.SyncSummary)
	})

	item, err := f.q.AddToQueue(ctx, cafeLuna())
	if err != nil {
		t.Fatalf("AddToQueue: %v", err)
	}
	snap := f.q.Snapshot()
	if snap.PendingCount != 1 || snap.IsOnline {
		t.Fatalf("snapshot = %+v; want 1 pending while offline", snap)
	}

	f.monitor.Set(true)

	select {
	case s := <-summaries:
		if s.Synced != 1 || s.OwnerID != "owner-1" {
			t.Fatalf("summary = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("auto-sync did not run after reconnect")
	}

	f.q.Close()
	got, _ := f.store.Get(ctx, "owner-1", item.ID)
	if got.SyncStatus != domain.SyncStatusSynced || got.SyncedAt == nil {
		t.Fatalf("item = %+v; want synced", got)
	}
	if snap := f.q.Snapshot(); snap.PendingCount != 0 {
		t.Fatalf("pending_count = %d; want 0", snap.PendingCount)
	}
}

func TestOfflineQueue_SyncAllNoOps(t *testing.T) {
	f := newFixture(t, "owner-1", false)
	ctx := context.Background()

	f.q.AddToQueue(ctx, cafeLuna())

	res, reason, err := f.q.Sync(ctx)
	if res != nil || err != nil || reason != SkipOffline {
		t.Fatalf("offline Sync = %v, %q, %v", res, reason, err)
	}

	online := newFixture(t, "owner-2", true)
	res, reason, err = online.q.Sync(ctx)
	if res != nil || err != nil || reason != SkipEmpty {
		t.Fatalf("empty Sync = %v, %q, %v", res, reason, err)
	}
	if online.ledger.commitCount() != 0 {
		t.Fatal("no-op sync reached the ledger")
	}
}

func TestOfflineQueue_ConcurrentSyncAllCommitsOnce(t *testing.T) {
	f := newFixture(t, "owner-1", true)
	f.ledger.gate = make(chan struct{})
	f.ledger.entered = make(chan struct{}, 1)
	ctx := context.Background()

	f.q.AddToQueue(ctx, cafeLuna())

	first := make(chan *syncpkg.DrainResult, 1)
	go func() {
		res, _ := f.q.SyncAll(ctx)
		first <- res
	}()
	<-f.ledger.entered

	if !f.q.Snapshot().IsSyncing {
		t.Fatal("IsSyncing false during drain")
	}
	res, err := f.q.SyncAll(ctx)
	if res != nil || err != nil {
		t.Fatalf("second SyncAll = %v, %v; want no-op", res, err)
	}

	close(f.ledger.gate)
	if r := <-first; r == nil || r.Synced != 1 {
		t.Fatalf("first SyncAll = %+v", r)
	}
	if n := f.ledger.commitCount(); n != 1 {
		t.Fatalf("commits = %d; want 1", n)
	}
}

func TestOfflineQueue_AddToQueueFailureReturnsNil(t *testing.T) {
	f := newFixture(t, "", false)

	item, err := f.q.AddToQueue(context.Background(), cafeLuna())
	if item != nil {
		t.Fatalf("item = %+v; want nil", item)
	}
	var perr *queue.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, queue.ErrNotAuthenticated) {
		t.Fatalf("err = %v; want PersistenceError(ErrNotAuthenticated)", err)
	}
}

func TestOfflineQueue_RemoveAndClearSynced(t *testing.T) {
	f := newFixture(t, "owner-1", false)
	ctx := context.Background()

	keep, _ := f.q.AddToQueue(ctx, cafeLuna())
	gone, _ := f.q.AddToQueue(ctx, cafeLuna())

	if err := f.q.RemoveFromQueue(ctx, gone.ID); err != nil {
		t.Fatalf("RemoveFromQueue: %v", err)
	}
	if err := f.q.RemoveFromQueue(ctx, gone.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("second remove err = %v; want ErrNotFound", err)
	}
	if snap := f.q.Snapshot(); len(snap.Queue) != 1 || snap.Queue[0].ID != keep.ID {
		t.Fatalf("queue after remove = %+v", snap.Queue)
	}

	f.monitor.Set(true)
	f.q.Close()

	n, err := f.q.ClearSynced(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ClearSynced = %d, %v; want 1", n, err)
	}
	if snap := f.q.Snapshot(); len(snap.Queue) != 0 {
		t.Fatalf("queue after clear = %d items", len(snap.Queue))
	}

	f.audit.mu.Lock()
	defer f.audit.mu.Unlock()
	want := map[string]bool{
		domain.AuditActionQueueRemove:      false,
		domain.AuditActionSyncDrain:        false,
		domain.AuditActionQueueClearSynced: false,
	}
	for _, a := range f.audit.actions {
		want[a] = true
	}
	for action, seen := range want {
		if !seen {
			t.Errorf("audit action %s not recorded", action)
		}
	}
}

func TestOfflineQueue_CloseUnsubscribes(t *testing.T) {
	f := newFixture(t, "owner-1", false)

	if n := f.bus.Subscribers(events.KindConnectivityChanged); n != 1 {
		t.Fatalf("subscribers = %d; want 1", n)
	}
	f.q.Close()
	if n := f.bus.Subscribers(events.KindConnectivityChanged); n != 0 {
		t.Fatalf("subscribers after Close = %d; want 0", n)
	}

	f.q.AddToQueue(context.Background(), cafeLuna())
	f.monitor.Set(true)
	if f.ledger.commitCount() != 0 {
		t.Fatal("closed queue still auto-synced")
	}
}

func TestOfflineQueue_QueueChangedEvents(t *testing.T) {
	f := newFixture(t, "owner-1", false)

	var got []events.QueueChanged
	f.bus.Subscribe(events.KindQueueChanged, func(ev events.Event) {
		got = append(got, ev.(events.QueueChanged))
	})

	f.q.AddToQueue(context.Background(), cafeLuna())

	if len(got) != 1 || got[0].PendingCount != 1 || got[0].Total != 1 {
		t.Fatalf("queue-changed events = %+v", got)
	}
}

func TestOfflineQueue_CloseWaitsForManualSync(t *testing.T) {
	f := newFixture(t, "owner-1", true)
	f.ledger.gate = make(chan struct{})
	f.ledger.entered = make(chan struct{}, 1)
	ctx := context.Background()

	f.q.AddToQueue(ctx, cafeLuna())
	go f.q.Sync(ctx)
	<-f.ledger.entered

	closed := make(chan struct{})
	go func() {
		f.q.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a manual drain was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.ledger.gate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the drain finished")
	}

	if _, reason, err := f.q.Sync(ctx); reason != SkipClosed || err != nil {
		t.Fatalf("Sync after Close = %q, %v; want %q", reason, err, SkipClosed)
	}
	if _, reason, _ := f.q.RetryItem(ctx, "any"); reason != SkipClosed {
		t.Fatalf("RetryItem after Close = %q; want %q", reason, SkipClosed)
	}
}
