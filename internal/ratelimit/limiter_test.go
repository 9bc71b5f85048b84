package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/timing"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newManual(rate float64, burst int) (*Limiter, *timing.ManualClock) {
	clock := timing.NewManualClock(epoch)
	return New(rate, burst, clock, nil), clock
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// waitAsync runs Wait on its own goroutine and returns its result channel
// once the limiter has scheduled its wake-up timer.
func waitAsync(t *testing.T, ctx context.Context, l *Limiter, clock *timing.ManualClock) <-chan error {
	t.Helper()
	before := clock.Pending()
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()

	deadline := time.Now().Add(time.Second)
	for clock.Pending() == before {
		if time.Now().After(deadline) {
			t.Fatal("Wait did not schedule a timer")
		}
		time.Sleep(time.Millisecond)
	}
	return done
}

func assertBlocked(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("Wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func receive(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
	return nil
}

func TestNewStartsFull(t *testing.T) {
	l, _ := newManual(1, 10)
	if got := l.Tokens(); !near(got, 10) {
		t.Errorf("Tokens() = %v, want 10", got)
	}
}

func TestAllowConsumesBurst(t *testing.T) {
	l, _ := newManual(1, 5)
	for i := range 5 {
		if !l.Allow() {
			t.Fatalf("Allow() failed on request %d", i+1)
		}
	}
	if l.Allow() {
		t.Error("Allow() succeeded on an empty bucket")
	}
}

func TestRefill(t *testing.T) {
	l, clock := newManual(10, 10)
	l.Drain()

	clock.Advance(200 * time.Millisecond)
	if got := l.Tokens(); !near(got, 2) {
		t.Errorf("Tokens() after 200ms at 10/s = %v, want 2", got)
	}

	clock.Advance(time.Hour)
	if got := l.Tokens(); !near(got, 10) {
		t.Errorf("Tokens() = %v, want capped at 10", got)
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l, clock := newManual(10, 1)
	if !l.Allow() {
		t.Fatal("first Allow() failed")
	}

	done := waitAsync(t, context.Background(), l, clock)
	assertBlocked(t, done)

	clock.Advance(101 * time.Millisecond)
	if err := receive(t, done); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if l.Allow() {
		t.Error("Wait did not consume the refilled token")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l, clock := newManual(0.1, 1)
	l.Drain()

	ctx, cancel := context.WithCancel(context.Background())
	done := waitAsync(t, ctx, l, clock)
	cancel()

	if err := receive(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if got := clock.Pending(); got != 0 {
		t.Errorf("%d timers left after cancel, want 0", got)
	}
}

func TestWaitWithExpiredContext(t *testing.T) {
	l, _ := newManual(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if !near(l.Tokens(), 1) {
		t.Error("a cancelled Wait consumed a token")
	}
}

func TestCooldownBlocksUntilExpiry(t *testing.T) {
	l, clock := newManual(100, 10)
	l.SetCooldown(3 * time.Second)

	if l.Allow() {
		t.Fatal("Allow() succeeded during cooldown")
	}
	if got := l.CooldownRemaining(); got != 3*time.Second {
		t.Errorf("CooldownRemaining() = %v, want 3s", got)
	}

	done := waitAsync(t, context.Background(), l, clock)
	clock.Advance(2 * time.Second)
	assertBlocked(t, done)

	clock.Advance(time.Second)
	if err := receive(t, done); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if got := l.CooldownRemaining(); got != 0 {
		t.Errorf("CooldownRemaining() = %v after expiry, want 0", got)
	}
}

func TestCooldownMerge(t *testing.T) {
	tests := []struct {
		name   string
		first  time.Duration
		second time.Duration
		want   time.Duration
	}{
		{"shorter is ignored", 5 * time.Second, time.Second, 5 * time.Second},
		{"longer extends", time.Second, 4 * time.Second, 4 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newManual(1, 1)
			l.SetCooldown(tt.first)
			l.SetCooldown(tt.second)
			if got := l.CooldownRemaining(); got != tt.want {
				t.Errorf("CooldownRemaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcurrentAllowNeverExceedsBurst(t *testing.T) {
	l, _ := newManual(5, 20)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 20 {
		t.Errorf("granted %d tokens, want 20", got)
	}
}

func TestForAPIDefaults(t *testing.T) {
	l := ForAPI(0, 0, nil)
	if l.rate != constants.DefaultRequestsPerSecond {
		t.Errorf("rate = %v, want %v", l.rate, constants.DefaultRequestsPerSecond)
	}
	if l.burst != constants.DefaultRequestBurst {
		t.Errorf("burst = %v, want %v", l.burst, constants.DefaultRequestBurst)
	}

	l = ForAPI(2.5, 3, nil)
	if l.rate != 2.5 || l.burst != 3 {
		t.Errorf("ForAPI(2.5, 3) = rate %v burst %v", l.rate, l.burst)
	}
}

func TestWaitRealClock(t *testing.T) {
	l := New(50, 1, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 3 {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	}
}
