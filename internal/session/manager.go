// Package session scopes each owner's queue façade to the lifetime of their
// login, so no queue state outlives a logout or leaks between owners.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pocketsync/internal/events"
	"pocketsync/internal/logger"
	"pocketsync/internal/queue"
	"pocketsync/internal/service"
	syncpkg "pocketsync/internal/sync"
)

var (
	ErrSessionNotFound = errors.New("no open session for owner")
	ErrOwnerRequired   = errors.New("owner id is required")
)

// Deps are the process-wide collaborators shared by every session.
type Deps struct {
	Store        queue.Store
	Remote       syncpkg.Remote
	Connectivity service.Connectivity
	Bus          *events.Bus
	Audit        *service.AuditService
	Sync         syncpkg.Config
}

// Manager owns the open sessions of the process.
type Manager struct {
	deps Deps
	base context.Context

	// guard outlives sessions so a drain from a closed session and one from
	// its replacement never overlap.
	guard *syncpkg.Guard

	mu       sync.Mutex
	sessions map[string]*service.OfflineQueue
}

// NewManager creates a manager whose sessions run under base.
func NewManager(base context.Context, deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		base:     base,
		guard:    syncpkg.NewGuard(),
		sessions: make(map[string]*service.OfflineQueue),
	}
}

// Open returns the owner's session, creating it on first login. Items left
// in syncing by a previous process are recovered before the session starts,
// unless a drain from an earlier session of the owner is still running.
func (m *Manager) Open(ctx context.Context, ownerID string) (*service.OfflineQueue, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	q, created, err := m.open(ctx, ownerID)
	if err != nil || !created {
		return q, err
	}

	m.deps.Audit.LogSession(ctx, ownerID, true, "", "")
	return q, nil
}

func (m *Manager) open(ctx context.Context, ownerID string) (*service.OfflineQueue, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.sessions[ownerID]; ok {
		return q, false, nil
	}

	if err := m.recover(ctx, ownerID); err != nil {
		return nil, false, err
	}

	engine := syncpkg.NewEngine(m.deps.Store, m.deps.Remote, m.deps.Bus, m.deps.Sync, syncpkg.WithGuard(m.guard))
	q := service.NewOfflineQueue(ownerID, m.deps.Store, engine, m.deps.Connectivity, m.deps.Bus, m.deps.Audit)
	if err := q.Start(m.base); err != nil {
		return nil, false, err
	}

	m.sessions[ownerID] = q
	logger.Info("session opened", "owner_id", ownerID, "open_sessions", len(m.sessions))
	return q, true, nil
}

// recover resets items stuck in syncing. The items of a drain that is still
// running belong to it, so recovery waits for the next login.
func (m *Manager) recover(ctx context.Context, ownerID string) error {
	if !m.guard.TryAcquire(ownerID) {
		logger.Warn("drain still running, skipping recovery", "owner_id", ownerID)
		return nil
	}
	defer m.guard.Release(ownerID)

	n, err := m.deps.Store.RecoverInterrupted(ctx, ownerID)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("recovered interrupted queue items", "owner_id", ownerID, "count", n)
	}
	return nil
}

func (m *Manager) Get(ownerID string) (*service.OfflineQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.sessions[ownerID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return q, nil
}

// Close ends the owner's session at logout. An in-flight drain finishes first.
func (m *Manager) Close(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	q, ok := m.sessions[ownerID]
	delete(m.sessions, ownerID)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	q.Close()
	m.deps.Audit.LogSession(ctx, ownerID, false, "", "")
	logger.Info("session closed", "owner_id", ownerID)
	return nil
}

// CloseAll ends every session; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*service.OfflineQueue)
	m.mu.Unlock()

	for _, q := range sessions {
		q.Close()
	}
	if len(sessions) > 0 {
		logger.Info("all sessions closed", "count", len(sessions))
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
