package listsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/logging"
	"github.com/voltline/evdash/internal/timing"
	"github.com/voltline/evdash/internal/visibility"
)

// Options configures a Controller.
type Options[T Item] struct {
	// Name identifies the list in logs and events ("stations", "wallets", ...).
	Name   string
	Source DataSource[T]
	// Params is the initial query. A zero PageSize uses the default.
	Params QueryParameters
	// Validate adds resource-specific parameter checks.
	Validate func(QueryParameters) error

	// SearchDebounce is the quiet period for SetSearch. Zero applies immediately.
	SearchDebounce time.Duration
	// Visibility configures the sentinel sensor. Its Clock is ignored in favor of Clock.
	Visibility visibility.Options
	Clock      timing.Clock

	Logger   *logging.Logger
	EventBus *events.EventBus

	// Disabled creates the controller without fetching until SetEnabled(true).
	Disabled bool
}

// inflight identifies the request the controller is waiting for.
type inflight struct {
	token     uint64
	pageIndex int
	reset     bool
	reissued  bool // reset re-issued after the source reported a cancellation
}

// Controller is the state machine for one synchronized list. It exclusively
// owns the accumulated items and the SyncState; views read Snapshots.
//
// All fetches go through a Sequencer, so at most one request is outstanding.
// A parameter change or Refresh cancels it and starts a new generation; any
// response that is not for the request the controller is waiting for is
// discarded, whatever order responses arrive in.
type Controller[T Item] struct {
	name     string
	validate func(QueryParameters) error
	seq      *Sequencer[T]
	acc      *Accumulator[T]
	search   *timing.Debouncer[string]
	sensor   *visibility.Sensor
	logger   *logging.Logger
	bus      *events.EventBus

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      SyncState
	params     QueryParameters
	err        error
	failedPage int // page that failed while loading more, -1 if none
	enabled    bool
	mounted    bool
	dirty      bool // params changed while a fetch could not be issued
	pending    *inflight
	closed     bool
	version    uint64

	listeners    map[int]func(Snapshot[T])
	nextListener int
}

// NewController validates the initial parameters and builds an idle controller.
// Nothing is fetched until Mount.
func NewController[T Item](opts Options[T]) (*Controller[T], error) {
	if opts.Source == nil {
		return nil, errors.New("listsync: data source is required")
	}
	if opts.Params.PageSize == 0 {
		opts.Params.PageSize = constants.DefaultPageSize
	}
	if opts.Clock == nil {
		opts.Clock = timing.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Name == "" {
		opts.Name = "list"
	}

	c := &Controller[T]{
		name:       opts.Name,
		validate:   opts.Validate,
		seq:        NewSequencer(opts.Source),
		acc:        NewAccumulator[T](),
		logger:     opts.Logger.Component("listsync"),
		bus:        opts.EventBus,
		params:     opts.Params.Clone(),
		failedPage: -1,
		enabled:    !opts.Disabled,
		listeners:  make(map[int]func(Snapshot[T])),
	}
	if err := c.check(c.params); err != nil {
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.search = timing.NewDebouncer(opts.SearchDebounce, opts.Clock, c.applySearch)

	vis := opts.Visibility
	vis.Clock = opts.Clock
	c.sensor = visibility.NewSensor(vis, c.onVisible)
	c.sensor.SetEnabled(false)

	return c, nil
}

// Name returns the list name.
func (c *Controller[T]) Name() string {
	return c.name
}

// Mount starts the list. The first page is requested if the controller is enabled.
func (c *Controller[T]) Mount() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mounted = true
	if c.enabled && c.state == StateIdle {
		c.startResetLocked("mount")
	}
	snap, ls := c.changedLocked()
	c.mu.Unlock()

	deliver(snap, ls)
	return nil
}

// SetEnabled gates fetching. Disabling cancels an outstanding request without
// starting a new generation: an interrupted first page leaves the list Idle,
// an interrupted follow-up page leaves it Ready with the pages it already
// has. Enabling a mounted Idle list, or one whose parameters changed while
// disabled, loads page 0.
func (c *Controller[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	if c.closed || c.enabled == enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = enabled

	if !enabled {
		if c.pending != nil {
			c.seq.CancelOutstanding()
			c.pending = nil
		}
		c.sensor.SetEnabled(false)
		switch c.state {
		case StateLoadingInitial:
			c.dirty = true
			c.setStateLocked(StateIdle)
		case StateLoadingMore:
			c.setStateLocked(StateReady)
		}
	} else if c.mounted && (c.state == StateIdle || c.dirty) {
		c.startResetLocked("enabled")
	} else {
		c.syncSensorLocked()
	}

	snap, ls := c.changedLocked()
	c.mu.Unlock()

	deliver(snap, ls)
}

// SetSearch records search text. It takes effect after the debounce period.
func (c *Controller[T]) SetSearch(text string) {
	c.search.Push(text)
}

// FlushSearch applies pending search text immediately.
func (c *Controller[T]) FlushSearch() {
	c.search.Flush()
}

// SetFilter sets or clears (empty value) one filter. The change applies immediately.
func (c *Controller[T]) SetFilter(key, value string) error {
	return c.update(func(p QueryParameters) QueryParameters {
		return p.WithFilter(key, value)
	})
}

// SetSort changes the sort order.
func (c *Controller[T]) SetSort(sort SortOrder) error {
	return c.update(func(p QueryParameters) QueryParameters {
		return p.WithSort(sort)
	})
}

// SetParameters replaces the whole query.
func (c *Controller[T]) SetParameters(params QueryParameters) error {
	if params.PageSize == 0 {
		params.PageSize = constants.DefaultPageSize
	}
	return c.update(func(QueryParameters) QueryParameters {
		return params.Clone()
	})
}

// Params returns the current query.
func (c *Controller[T]) Params() QueryParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Clone()
}

// LoadMore requests the next page. It does nothing unless the list is Ready
// with another page, or in Error after a failed follow-up page (which is
// retried). It reports whether a request was issued.
func (c *Controller[T]) LoadMore() bool {
	c.mu.Lock()
	if c.closed || !c.mounted || !c.enabled {
		c.mu.Unlock()
		return false
	}

	issued := false
	switch c.state {
	case StateReady:
		if c.acc.HasNextPage() {
			c.startMoreLocked(c.acc.CurrentPage() + 1)
			issued = true
		}
	case StateError:
		if c.failedPage > 0 {
			c.startMoreLocked(c.failedPage)
			issued = true
		}
	}

	var snap Snapshot[T]
	var ls []func(Snapshot[T])
	if issued {
		snap, ls = c.changedLocked()
	}
	c.mu.Unlock()

	deliver(snap, ls)
	return issued
}

// Refresh reloads page 0 with the current parameters, whatever the state.
func (c *Controller[T]) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	if c.enabled {
		c.startResetLocked("refresh")
	} else {
		c.dirty = true
	}
	snap, ls := c.changedLocked()
	c.mu.Unlock()

	deliver(snap, ls)
}

// AttachSentinel starts observing src; when it becomes visible the next page is requested.
func (c *Controller[T]) AttachSentinel(src visibility.Source) {
	c.sensor.Observe(src)
}

// State returns the current snapshot.
func (c *Controller[T]) State() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change.
// Snapshots may arrive out of order from different goroutines; use Version.
func (c *Controller[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// WaitFor blocks until cond holds for the current snapshot, ctx ends, or
// the controller is closed.
func (c *Controller[T]) WaitFor(ctx context.Context, cond func(Snapshot[T]) bool) (Snapshot[T], error) {
	notify := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(Snapshot[T]) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		snap := c.State()
		if cond(snap) {
			return snap, nil
		}
		if snap.Closed {
			return snap, ErrClosed
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-notify:
		}
	}
}

// Close tears the list down: the outstanding request is cancelled and the
// debounce and throttle timers are cleared. The controller cannot be reused.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	inFlight := c.seq.Outstanding()
	c.seq.CancelOutstanding()
	c.cancel()
	snap, ls := c.changedLocked()
	c.listeners = make(map[int]func(Snapshot[T]))
	c.mu.Unlock()

	c.search.Dispose()
	c.sensor.Dispose()
	c.logger.Debug().Str("list", c.name).Bool("cancelled_in_flight", inFlight).Msg("list closed")

	deliver(snap, ls)
}

func (c *Controller[T]) check(p QueryParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if c.validate != nil {
		return c.validate(p)
	}
	return nil
}

func (c *Controller[T]) applySearch(text string) {
	err := c.update(func(p QueryParameters) QueryParameters {
		return p.WithSearch(text)
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Warn().Err(err).Str("list", c.name).Msg("search ignored")
	}
}

func (c *Controller[T]) update(change func(QueryParameters) QueryParameters) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	next := change(c.params)
	if err := c.check(next); err != nil {
		c.mu.Unlock()
		return err
	}
	if next.Equal(c.params) {
		c.mu.Unlock()
		return nil
	}

	c.params = next
	if c.mounted && c.enabled {
		c.startResetLocked("parameters changed")
	} else {
		c.dirty = true
	}
	snap, ls := c.changedLocked()
	c.mu.Unlock()

	deliver(snap, ls)
	return nil
}

// onVisible is called by the sensor without any sensor lock held.
func (c *Controller[T]) onVisible() {
	c.LoadMore()
}

func (c *Controller[T]) startResetLocked(reason string) {
	gen := c.seq.Reset()
	call := c.seq.Start(c.ctx, c.params, 0)
	c.pending = &inflight{token: call.Token(), pageIndex: 0, reset: true}
	c.err = nil
	c.failedPage = -1
	c.dirty = false
	c.setStateLocked(StateLoadingInitial)
	c.sensor.SetEnabled(false)

	c.logger.Debug().
		Str("list", c.name).
		Uint64("generation", gen).
		Str("reason", reason).
		Str("params", c.params.String()).
		Msg("loading first page")

	go c.run(call)
}

func (c *Controller[T]) startMoreLocked(pageIndex int) {
	call := c.seq.Start(c.ctx, c.params, pageIndex)
	c.pending = &inflight{token: call.Token(), pageIndex: pageIndex, reset: false}
	c.err = nil
	c.setStateLocked(StateLoadingMore)
	c.sensor.SetEnabled(false)

	c.logger.Debug().
		Str("list", c.name).
		Uint64("generation", call.Request().Generation).
		Int("page", pageIndex).
		Msg("loading next page")

	go c.run(call)
}

func (c *Controller[T]) run(call *Call[T]) {
	res, err := call.Wait()
	req := call.Request()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	waiting := c.pending != nil && c.pending.token == call.Token()
	if !waiting || !c.seq.IsCurrent(req.Generation) {
		c.discardLocked(req, err)
		c.mu.Unlock()
		return
	}
	reset, reissued := c.pending.reset, c.pending.reissued
	c.pending = nil

	switch {
	case IsCancelled(err) && reset && !reissued:
		// The source gave up on its own; the list still needs page 0.
		c.logger.Debug().Str("list", c.name).Msg("first page cancelled by source, reissuing")
		c.startResetLocked("source cancelled")
		c.pending.reissued = true

	case IsCancelled(err) && !reset:
		c.logger.Debug().Str("list", c.name).Int("page", req.PageIndex).Msg("request cancelled")
		c.setStateLocked(StateReady)
		c.syncSensorLocked()

	case IsCancelled(err):
		err = fmt.Errorf("first page: %w", err)
		fallthrough

	case err != nil:
		c.err = err
		if reset {
			c.acc.Clear()
			c.failedPage = -1
		} else {
			c.failedPage = req.PageIndex
		}
		c.setStateLocked(StateError)
		c.logger.Warn().
			Err(err).
			Str("list", c.name).
			Int("page", req.PageIndex).
			Int("kept_items", c.acc.Len()).
			Msg("page fetch failed")
		c.publishLocked(events.EventListFetchFailed, req.PageIndex, err)

	default:
		added := c.acc.Apply(res, req.PageIndex, reset)
		c.setStateLocked(StateReady)
		c.logger.Debug().
			Str("list", c.name).
			Int("page", req.PageIndex).
			Int("added", added).
			Int("items", c.acc.Len()).
			Int("total", c.acc.Total()).
			Bool("has_more", c.acc.HasNextPage()).
			Msg("page applied")
		c.publishLocked(events.EventListPageApplied, req.PageIndex, nil)
		c.syncSensorLocked()
	}

	snap, ls := c.changedLocked()
	c.mu.Unlock()

	deliver(snap, ls)
}

func (c *Controller[T]) discardLocked(req PageRequest, err error) {
	if IsCancelled(err) {
		c.logger.Debug().
			Str("list", c.name).
			Uint64("generation", req.Generation).
			Int("page", req.PageIndex).
			Msg("superseded request cancelled")
		return
	}
	c.logger.Debug().
		Str("list", c.name).
		Uint64("generation", req.Generation).
		Int("page", req.PageIndex).
		Msg("discarding stale response")
	c.publishLocked(events.EventListStaleDiscarded, req.PageIndex, err)
}

func (c *Controller[T]) syncSensorLocked() {
	c.sensor.SetEnabled(c.enabled && c.state == StateReady && c.acc.HasNextPage())
}

func (c *Controller[T]) setStateLocked(next SyncState) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	if c.bus != nil {
		c.bus.PublishList(events.EventListStateChange, events.ListEvent{
			List:        c.name,
			Generation:  c.seq.Generation(),
			OldState:    prev.String(),
			NewState:    next.String(),
			Items:       c.acc.Len(),
			Total:       c.acc.Total(),
			HasNextPage: c.acc.HasNextPage(),
		})
	}
}

func (c *Controller[T]) publishLocked(eventType events.EventType, pageIndex int, err error) {
	if c.bus == nil {
		return
	}
	c.bus.PublishList(eventType, events.ListEvent{
		List:        c.name,
		Generation:  c.seq.Generation(),
		PageIndex:   pageIndex,
		NewState:    c.state.String(),
		Items:       c.acc.Len(),
		Total:       c.acc.Total(),
		HasNextPage: c.acc.HasNextPage(),
		Error:       err,
	})
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	list := c.acc.Snapshot()
	return Snapshot[T]{
		State:            c.state,
		Items:            list.Items,
		Total:            list.Total,
		HasNextPage:      list.HasNextPage,
		CurrentPageIndex: list.CurrentPageIndex,
		Err:              c.err,
		Params:           c.params.Clone(),
		Generation:       c.seq.Generation(),
		Version:          c.version,
		Closed:           c.closed,
	}
}

// changedLocked bumps the version and captures what listeners must receive.
func (c *Controller[T]) changedLocked() (Snapshot[T], []func(Snapshot[T])) {
	c.version++
	if len(c.listeners) == 0 {
		return Snapshot[T]{}, nil
	}
	ls := make([]func(Snapshot[T]), 0, len(c.listeners))
	for _, fn := range c.listeners {
		ls = append(ls, fn)
	}
	return c.snapshotLocked(), ls
}

func deliver[T Item](snap Snapshot[T], listeners []func(Snapshot[T])) {
	for _, fn := range listeners {
		fn(snap)
	}
}
