// Package connectivity tracks whether the device believes it is online.
//
// The state reflects local network interfaces and what the UI reports. It is
// never confirmed against the remote ledger, so it can be a false positive;
// the sync engine's per-item failure path covers that case.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"pocketsync/internal/events"
	"pocketsync/internal/logger"
)

const (
	OnlineMessage  = "You're back online"
	OfflineMessage = "You're offline. Transactions will be queued"
)

// Probe reads the platform's connectivity indicator.
type Probe interface {
	Online() bool
}

type ProbeFunc func() bool

func (f ProbeFunc) Online() bool { return f() }

// InterfaceProbe reports online when at least one non-loopback interface is up
// and has an address.
type InterfaceProbe struct {
	interfaces func() ([]net.Interface, error)
}

func NewInterfaceProbe() *InterfaceProbe {
	return &InterfaceProbe{interfaces: net.Interfaces}
}

func (p *InterfaceProbe) Online() bool {
	ifaces, err := p.interfaces()
	if err != nil {
		logger.Warn("failed to list network interfaces", "error", err)
		return false
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// Monitor holds the current online state and publishes transitions.
// A state reported through Set stands until the probe's own reading changes.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	lastProbe bool
	probe     Probe
	bus       *events.Bus
}

// NewMonitor takes its initial value from probe. No event is published for it.
func NewMonitor(probe Probe, bus *events.Bus) *Monitor {
	online := probe.Online()
	return &Monitor{
		online:    online,
		lastProbe: online,
		probe:     probe,
		bus:       bus,
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records a reported state. It returns true when the state changed.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.mu.Unlock()

	logger.Info("connectivity changed", "online", online)
	m.publish(online)
	return true
}

// Refresh re-reads the probe and applies the result when the reading differs
// from the previous one. It returns true when the state changed.
func (m *Monitor) Refresh() bool {
	reading := m.probe.Online()

	m.mu.Lock()
	if reading == m.lastProbe {
		m.mu.Unlock()
		return false
	}
	m.lastProbe = reading
	m.mu.Unlock()

	return m.Set(reading)
}

// Run polls the probe every interval until ctx is done. A non-positive
// interval returns immediately.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}

func (m *Monitor) publish(online bool) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.ConnectivityChanged{Online: online})

	notice := events.Notice{Level: events.NoticeSuccess, Message: OnlineMessage}
	if !online {
		notice = events.Notice{Level: events.NoticeWarning, Message: OfflineMessage}
	}
	m.bus.Publish(notice)
}
