// Package events is a small typed publish/subscribe bus that connects the
// connectivity monitor, the sync engine, the queue façade and the notice hub.
package events

import (
	"sync"

	"pocketsync/internal/logger"
)

type Kind string

const (
	KindConnectivityChanged Kind = "connectivity-changed"
	KindQueueChanged        Kind = "queue-changed"
	KindSyncSummary         Kind = "sync-summary"
	KindNotice              Kind = "notice"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	Kind() Kind
}

// ConnectivityChanged is published on every online/offline transition.
type ConnectivityChanged struct {
	Online bool
}

func (ConnectivityChanged) Kind() Kind { return KindConnectivityChanged }

// QueueChanged is published after each listing refresh of an owner's queue.
type QueueChanged struct {
	OwnerID      string
	Total        int
	PendingCount int
	FailedCount  int
}

func (QueueChanged) Kind() Kind { return KindQueueChanged }

// SyncSummary is published once per drain that processed at least one item.
type SyncSummary struct {
	OwnerID    string
	Synced     int
	Duplicates int
	Failed     int
}

func (SyncSummary) Kind() Kind { return KindSyncSummary }

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing toast. An empty OwnerID addresses every connected owner.
type Notice struct {
	OwnerID string
	Level   NoticeLevel
	Message string
}

func (Notice) Kind() Kind { return KindNotice }

type Handler func(Event)

type subscription struct {
	id int64
	fn Handler
}

// Bus dispatches events synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	seq    int64
	byKind map[Kind][]subscription
}

func NewBus() *Bus {
	return &Bus{byKind: make(map[Kind][]subscription)}
}

// Subscribe registers fn for kind and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(kind Kind, fn Handler) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.byKind[kind] = append(b.byKind[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.byKind[kind]
			for i, s := range subs {
				if s.id == id {
					b.byKind[kind] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to the current subscribers of its kind. A panicking
// handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.byKind[ev.Kind()]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "kind", string(ev.Kind()), "panic", r)
		}
	}()
	s.fn(ev)
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKind[kind])
}
