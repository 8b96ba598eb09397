package sync

import (
	stdsync "sync"
)

// Guard tracks which owners have a drain in flight. Every engine of the
// process shares one Guard, so an owner's drains never overlap even when a
// session is closed and reopened while a drain is still running.
type Guard struct {
	mu      stdsync.Mutex
	running map[string]bool
}

func NewGuard() *Guard {
	return &Guard{running: make(map[string]bool)}
}

// TryAcquire marks ownerID busy. It returns false when it already was.
func (g *Guard) TryAcquire(ownerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[ownerID] {
		return false
	}
	g.running[ownerID] = true
	return true
}

func (g *Guard) Release(ownerID string) {
	g.mu.Lock()
	delete(g.running, ownerID)
	g.mu.Unlock()
}

func (g *Guard) Busy(ownerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[ownerID]
}
