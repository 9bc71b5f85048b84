package timing

import (
	"sync"
	"time"
)

// Debouncer delays delivery of rapidly changing values until the input has
// been quiet for the configured delay. Only the latest value is delivered.
//
// Each Push restarts the quiet period. A generation counter guards against a
// timer whose callback was already running when it was superseded: only the
// callback belonging to the latest Push may emit.
type Debouncer[T any] struct {
	clock Clock
	delay time.Duration
	emit  func(T)

	mu         sync.Mutex
	timer      Timer
	generation uint64
	pending    T
	hasPending bool
	disposed   bool
}

// NewDebouncer creates a Debouncer that calls emit with the latest value once
// delay has passed without another Push. A zero delay emits synchronously.
func NewDebouncer[T any](delay time.Duration, clock Clock, emit func(T)) *Debouncer[T] {
	if clock == nil {
		clock = Real()
	}
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{
		clock: clock,
		delay: delay,
		emit:  emit,
	}
}

// Push records value and restarts the quiet period.
func (d *Debouncer[T]) Push(value T) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if d.delay == 0 {
		d.hasPending = false
		var zero T
		d.pending = zero
		d.mu.Unlock()
		d.emit(value)
		return
	}

	gen := d.generation
	d.pending = value
	d.hasPending = true
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
	d.mu.Unlock()
}

// Flush delivers the pending value immediately, if there is one.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.disposed || !d.hasPending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	value := d.takePendingLocked()
	d.mu.Unlock()

	d.emit(value)
}

// Pending reports whether a value is waiting for its quiet period to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending
}

// Dispose cancels any pending emission. Later Push calls are ignored.
func (d *Debouncer[T]) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disposed = true
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.takePendingLocked()
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.disposed || gen != d.generation || !d.hasPending {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	value := d.takePendingLocked()
	d.mu.Unlock()

	d.emit(value)
}

func (d *Debouncer[T]) takePendingLocked() T {
	value := d.pending
	var zero T
	d.pending = zero
	d.hasPending = false
	return value
}
