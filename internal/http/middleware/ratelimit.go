package middleware

import (
	"sync"
	"time"
)

type clientInfo struct {
	start time.Time
	count int
}

// memoryLimiter is a fixed-window counter used when Redis is unavailable.
type memoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	now     func() time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{clients: make(map[string]*clientInfo), now: time.Now}
}

// hit counts a request for key and returns the count in the current window.
func (l *memoryLimiter) hit(key string, window time.Duration) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ci, ok := l.clients[key]
	if !ok || now.Sub(ci.start) > window {
		l.clients[key] = &clientInfo{start: now, count: 1}
		l.sweep(now, window)
		return 1
	}
	ci.count++
	return int64(ci.count)
}

// sweep drops expired windows so the map does not grow with every client seen.
func (l *memoryLimiter) sweep(now time.Time, window time.Duration) {
	if len(l.clients) < 1024 {
		return
	}
	for k, ci := range l.clients {
		if now.Sub(ci.start) > window {
			delete(l.clients, k)
		}
	}
}

var fallback = newMemoryLimiter()
