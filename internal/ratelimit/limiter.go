// Package ratelimit paces page requests to the dashboard API with a token
// bucket shared by every list of one client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/logging"
	"github.com/voltline/evdash/internal/timing"
)

// slowWait is the wait above which Wait logs a warning.
const slowWait = 2 * time.Second

// Limiter is a token bucket: bursts of up to burst requests, refilled at rate
// tokens per second. A cooldown, set when the server answered 429, blocks
// every caller until it expires whatever tokens are available.
type Limiter struct {
	clock  timing.Clock
	logger *logging.Logger
	rate   float64
	burst  float64

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	cooldown time.Time
	lastWarn time.Time
}

// New creates a full bucket. A nil clock uses real time and a nil logger
// discards warnings.
func New(rate float64, burst int, clock timing.Clock, logger *logging.Logger) *Limiter {
	if clock == nil {
		clock = timing.Real()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Limiter{
		clock:  clock,
		logger: logger,
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   clock.Now(),
	}
}

// ForAPI creates the limiter of one API client. Non-positive settings fall
// back to the defaults.
func ForAPI(requestsPerSecond float64, burst int, logger *logging.Logger) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = constants.DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = constants.DefaultRequestBurst
	}
	return New(requestsPerSecond, burst, nil, logger)
}

// Allow takes a token if one is available now.
func (l *Limiter) Allow() bool {
	return l.reserve() == 0
}

// Wait blocks until a token is taken or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	start := l.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay := l.reserve()
		if delay == 0 {
			if waited := l.clock.Now().Sub(start); waited > slowWait {
				l.logger.Debug().Dur("waited", waited).Msg("rate limit wait completed")
			}
			return nil
		}
		l.warn(delay)

		ready := make(chan struct{})
		t := l.clock.AfterFunc(delay, func() { close(ready) })
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-ready:
		}
	}
}

// Drain empties the bucket so the next callers wait for a refill.
func (l *Limiter) Drain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = 0
	l.last = l.clock.Now()
}

// SetCooldown blocks callers for d. A shorter cooldown never replaces a
// longer one that is still running.
func (l *Limiter) SetCooldown(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.clock.Now().Add(d); until.After(l.cooldown) {
		l.cooldown = until
	}
}

// CooldownRemaining returns how long the current cooldown lasts, or zero.
func (l *Limiter) CooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.cooldown.Sub(l.clock.Now()), 0)
}

// Tokens returns the tokens available now.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(l.clock.Now())
	return l.tokens
}

// reserve takes a token and returns zero, or returns how long until one
// could be taken.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Before(l.cooldown) {
		return l.cooldown.Sub(now)
	}
	l.refillLocked(now)
	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	if l.rate <= 0 {
		return time.Second
	}
	// Round up so the retry never lands just short of a whole token.
	return time.Duration((1-l.tokens)/l.rate*float64(time.Second)) + time.Nanosecond
}

func (l *Limiter) refillLocked(now time.Time) {
	if elapsed := now.Sub(l.last); elapsed > 0 {
		l.tokens = min(l.tokens+elapsed.Seconds()*l.rate, l.burst)
	}
	l.last = now
}

// warn logs long waits at most once every ten seconds.
func (l *Limiter) warn(delay time.Duration) {
	if delay <= slowWait {
		return
	}
	l.mu.Lock()
	now := l.clock.Now()
	quiet := now.Sub(l.lastWarn) > 10*time.Second
	if quiet {
		l.lastWarn = now
	}
	l.mu.Unlock()

	if quiet {
		l.logger.Warn().Dur("wait", delay).Msg("rate limited: waiting for API capacity")
	}
}
