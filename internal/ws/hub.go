package ws

import (
	"encoding/json"
	"sync"

	"pocketsync/internal/events"
	"pocketsync/internal/logger"
)

// ConnectivityReporter accepts the online indicator reported by the UI.
type ConnectivityReporter interface {
	Online() bool
	Set(online bool) bool
}

// Hub fans bus events out to the owner's open WebSocket connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	bus      *events.Bus
	reporter ConnectivityReporter
	unsubs   []func()
}

func NewHub(bus *events.Bus, reporter ConnectivityReporter) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		bus:      bus,
		reporter: reporter,
	}
}

// Start subscribes the hub to the bus.
func (h *Hub) Start() {
	h.unsubs = append(h.unsubs,
		h.bus.Subscribe(events.KindNotice, h.onEvent),
		h.bus.Subscribe(events.KindQueueChanged, h.onEvent),
		h.bus.Subscribe(events.KindSyncSummary, h.onEvent),
		h.bus.Subscribe(events.KindConnectivityChanged, h.onEvent),
	)
}

// Stop unsubscribes and closes every connection.
func (h *Hub) Stop() {
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil

	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.OwnerID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.OwnerID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	logger.Debug("ws client registered", "owner_id", c.OwnerID, "connections", n)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.OwnerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.OwnerID)
		}
	}
	h.mu.Unlock()

	logger.Debug("ws client unregistered", "owner_id", c.OwnerID)
}

// Connections returns the number of open connections for ownerID.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

func (h *Hub) onEvent(ev events.Event) {
	var (
		owner string
		msg   any
	)
	switch e := ev.(type) {
	case events.Notice:
		owner = e.OwnerID
		msg = NoticeMessage{Type: MsgNotice, Level: string(e.Level), Message: e.Message}
	case events.QueueChanged:
		owner = e.OwnerID
		msg = QueueMessage{Type: MsgQueue, Total: e.Total, PendingCount: e.PendingCount, FailedCount: e.FailedCount}
	case events.SyncSummary:
		owner = e.OwnerID
		msg = SyncSummaryMessage{Type: MsgSyncSummary, Synced: e.Synced, Duplicates: e.Duplicates, Failed: e.Failed}
	case events.ConnectivityChanged:
		msg = ConnectivityMessage{Type: MsgConnectivity, Online: e.Online}
	default:
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws encode failed", "kind", string(ev.Kind()), "error", err)
		return
	}
	h.send(owner, b)
}

// send delivers b to ownerID's connections, or to everyone when ownerID is empty.
func (h *Hub) send(ownerID string, b []byte) {
	h.mu.RLock()
	var targets []*Client
	if ownerID == "" {
		for _, set := range h.clients {
			for c := range set {
				targets = append(targets, c)
			}
		}
	} else {
		for c := range h.clients[ownerID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(b)
	}
}

func (h *Hub) handleMessage(c *Client, raw []byte) {
	var in InboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		c.sendJSON(ErrorMessage{Type: MsgError, Message: "invalid message"})
		return
	}

	switch in.Type {
	case MsgPing:
		c.sendJSON(map[string]string{"type": MsgPong})
	case MsgConnectivity:
		if in.Online == nil {
			c.sendJSON(ErrorMessage{Type: MsgError, Message: "online is required"})
			return
		}
		if h.reporter != nil {
			h.reporter.Set(*in.Online)
		}
	default:
		c.sendJSON(ErrorMessage{Type: MsgError, Message: "unknown message type"})
	}
}
