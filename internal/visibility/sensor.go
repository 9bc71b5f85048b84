package visibility

import (
	"sync"
	"time"

	"github.com/voltline/evdash/internal/timing"
)

// Source reports sentinel geometry whenever it changes. Watch returns a
// function that stops the reports.
type Source interface {
	Watch(notify func(Geometry)) (stop func())
}

// Options configures a Sensor.
type Options struct {
	// RootMargin grows the viewport so the sentinel counts as visible
	// before it is actually on screen (pre-fetch distance).
	RootMargin float64
	// Threshold is the visible ratio required to count as intersecting.
	Threshold float64
	// Throttle is the minimum spacing between two notifications.
	Throttle time.Duration
	Clock    timing.Clock
}

// Sensor observes a sentinel and calls onVisible at most once per throttle
// window while the sentinel intersects the viewport and the sensor is enabled.
//
// A visibility report inside the throttle window schedules a single deferred
// notification for the remainder of the window; a newer report replaces it.
// The deferred notification re-checks enabled and intersecting when it fires.
type Sensor struct {
	opts      Options
	onVisible func()

	mu           sync.Mutex
	enabled      bool
	intersecting bool
	hasFired     bool
	lastFired    time.Time
	deferred     timing.Timer
	deferredGen  uint64
	stopWatch    func()
	disposed     bool
}

// NewSensor creates an enabled sensor. Nothing is reported until Observe is called.
func NewSensor(opts Options, onVisible func()) *Sensor {
	if opts.Clock == nil {
		opts.Clock = timing.Real()
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	return &Sensor{
		opts:      opts,
		onVisible: onVisible,
		enabled:   true,
	}
}

// Observe starts watching src, replacing any previous source.
func (s *Sensor) Observe(src Source) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	prev := s.stopWatch
	s.stopWatch = nil
	s.intersecting = false
	s.mu.Unlock()

	if prev != nil {
		prev()
	}

	stop := src.Watch(s.report)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stopWatch = stop
	s.mu.Unlock()
}

// SetEnabled turns notifications on or off. Enabling does not fire by
// itself; the next geometry report is evaluated against the new setting, so
// a view re-reports after rendering new rows.
func (s *Sensor) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.enabled = enabled
}

// Enabled reports whether notifications are currently allowed.
func (s *Sensor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Dispose stops observation and clears any deferred notification.
func (s *Sensor) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.cancelDeferredLocked()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (s *Sensor) report(g Geometry) {
	entry := Evaluate(g, s.opts.RootMargin)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.intersecting = entry.Visible(s.opts.Threshold)
	if !s.intersecting || !s.enabled {
		s.mu.Unlock()
		return
	}
	fire := s.triggerLocked()
	s.mu.Unlock()

	if fire {
		s.onVisible()
	}
}

// triggerLocked returns true when the caller should notify immediately.
// Otherwise it schedules the deferred notification.
func (s *Sensor) triggerLocked() bool {
	now := s.opts.Clock.Now()
	elapsed := now.Sub(s.lastFired)
	if !s.hasFired || elapsed >= s.opts.Throttle {
		s.cancelDeferredLocked()
		s.markFiredLocked(now)
		return true
	}

	s.cancelDeferredLocked()
	gen := s.deferredGen
	s.deferred = s.opts.Clock.AfterFunc(s.opts.Throttle-elapsed, func() {
		s.fireDeferred(gen)
	})
	return false
}

func (s *Sensor) fireDeferred(gen uint64) {
	s.mu.Lock()
	if s.disposed || gen != s.deferredGen {
		s.mu.Unlock()
		return
	}
	s.deferred = nil
	if !s.enabled || !s.intersecting {
		s.mu.Unlock()
		return
	}
	s.markFiredLocked(s.opts.Clock.Now())
	s.mu.Unlock()

	s.onVisible()
}

func (s *Sensor) cancelDeferredLocked() {
	s.deferredGen++
	if s.deferred != nil {
		s.deferred.Stop()
		s.deferred = nil
	}
}

func (s *Sensor) markFiredLocked(now time.Time) {
	s.hasFired = true
	s.lastFired = now
}
