package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func testPolicy(attempts int) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	p := &Policy{
		MaxAttempts: attempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    300 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return p, &slept
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	p, slept := testPolicy(3)
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d; want 3", calls)
	}
	if len(*slept) != 2 || (*slept)[0] != 100*time.Millisecond || (*slept)[1] != 200*time.Millisecond {
		t.Fatalf("delays = %v; want [100ms 200ms]", *slept)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	p, slept := testPolicy(5)
	permanent := errors.New("constraint violation")
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v; want permanent", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Fatalf("calls=%d sleeps=%d; want 1/0", calls, len(*slept))
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	p, _ := testPolicy(2)
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	if !errors.Is(err, errFlaky) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDo_DoesNotRetryCancellation(t *testing.T) {
	p, _ := testPolicy(5)
	p.Retryable = func(error) bool { return true }
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	if !errors.Is(err, context.DeadlineExceeded) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDo_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Retryable:   func(error) bool { return true },
	}
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errFlaky
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errFlaky) {
			t.Fatalf("err = %v; want last op error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}

func TestDelay_CapsAndJitters(t *testing.T) {
	p := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	if d := p.Delay(5); d != 250*time.Millisecond {
		t.Fatalf("Delay(5) = %v; want cap 250ms", d)
	}

	p.Jitter = 0.5
	p.rand = func() float64 { return 0 }
	if d := p.Delay(0); d != 50*time.Millisecond {
		t.Fatalf("low jitter = %v; want 50ms", d)
	}
	p.rand = func() float64 { return 1 }
	if d := p.Delay(0); d != 150*time.Millisecond {
		t.Fatalf("high jitter = %v; want 150ms", d)
	}
}

func TestNilPolicyUsesDefault(t *testing.T) {
	var p *Policy
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
	if IsTransient(errors.New("syntax error")) {
		t.Fatal("plain error should not be transient")
	}
	if !IsTransient(timeoutErr{}) {
		t.Fatal("network timeout should be transient")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
