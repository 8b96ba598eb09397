package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"pocketsync/internal/events"
)

func TestNewMonitor_InitialValueFromProbe(t *testing.T) {
	bus := events.NewBus()
	published := 0
	bus.Subscribe(events.KindConnectivityChanged, func(events.Event) { published++ })

	m := NewMonitor(ProbeFunc(func() bool { return true }), bus)

	if !m.Online() {
		t.Fatal("expected online from probe")
	}
	if published != 0 {
		t.Fatalf("initial value published %d events", published)
	}
}

func TestSet_PublishesOnTransitionOnly(t *testing.T) {
	bus := events.NewBus()
	var changes []bool
	var notices []events.Notice
	bus.Subscribe(events.KindConnectivityChanged, func(ev events.Event) {
		changes = append(changes, ev.(events.ConnectivityChanged).Online)
	})
	bus.Subscribe(events.KindNotice, func(ev events.Event) {
		notices = append(notices, ev.(events.Notice))
	})

	m := NewMonitor(ProbeFunc(func() bool { return false }), bus)

	if m.Set(false) {
		t.Fatal("Set(false) while offline reported a change")
	}
	if !m.Set(true) {
		t.Fatal("Set(true) did not report a change")
	}
	m.Set(true)
	m.Set(false)

	if len(changes) != 2 || changes[0] != true || changes[1] != false {
		t.Fatalf("changes = %v; want [true false]", changes)
	}
	if len(notices) != 2 {
		t.Fatalf("notices = %d; want 2", len(notices))
	}
	if notices[0].Message != OnlineMessage || notices[0].Level != events.NoticeSuccess {
		t.Errorf("online notice = %+v", notices[0])
	}
	if notices[1].Message != OfflineMessage || notices[1].Level != events.NoticeWarning {
		t.Errorf("offline notice = %+v", notices[1])
	}
	if notices[0].OwnerID != "" {
		t.Errorf("connectivity notices are broadcast, got owner %q", notices[0].OwnerID)
	}
}

func TestRun_PollsProbe(t *testing.T) {
	var state atomic.Bool
	bus := events.NewBus()
	changed := make(chan bool, 4)
	bus.Subscribe(events.KindConnectivityChanged, func(ev events.Event) {
		changed <- ev.(events.ConnectivityChanged).Online
	})

	m := NewMonitor(ProbeFunc(state.Load), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 5*time.Millisecond)

	state.Store(true)
	select {
	case online := <-changed:
		if !online {
			t.Fatal("expected online transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("probe change not observed")
	}
}

func TestRefresh_ReportedStateStandsUntilProbeChanges(t *testing.T) {
	var state atomic.Bool
	state.Store(true)
	bus := events.NewBus()
	var notices atomic.Int32
	bus.Subscribe(events.KindNotice, func(events.Event) { notices.Add(1) })

	m := NewMonitor(ProbeFunc(state.Load), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 5*time.Millisecond)

	m.Set(false)
	time.Sleep(50 * time.Millisecond)
	if m.Online() {
		t.Fatal("poll overwrote the reported offline state")
	}
	if n := notices.Load(); n != 1 {
		t.Fatalf("notices = %d; want 1", n)
	}

	if m.Refresh() {
		t.Fatal("Refresh with an unchanged reading reported a change")
	}

	state.Store(false)
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.RLock()
		seen := !m.lastProbe
		m.mu.RUnlock()
		if seen {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("probe reading offline was not observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	state.Store(true)
	for !m.Online() {
		if time.Now().After(deadline) {
			t.Fatal("probe transition back online was not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_ZeroIntervalReturns(t *testing.T) {
	m := NewMonitor(ProbeFunc(func() bool { return true }), nil)
	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval did not return")
	}
}

func TestInterfaceProbe(t *testing.T) {
	p := &InterfaceProbe{interfaces: func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}}
	if p.Online() {
		t.Fatal("loopback only should be offline")
	}

	p.interfaces = func() ([]net.Interface, error) { return nil, errors.New("no access") }
	if p.Online() {
		t.Fatal("listing error should be offline")
	}

	p.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "eth0", Flags: 0}}, nil
	}
	if p.Online() {
		t.Fatal("down interface should be offline")
	}
}
