package listsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/timing"
	"github.com/voltline/evdash/internal/visibility"
)

type fixture struct {
	src   *scriptedSource
	clock *timing.ManualClock
	ctrl  *Controller[testItem]
}

func newFixture(t *testing.T, honorCancel bool, mutate func(*Options[testItem])) *fixture {
	t.Helper()
	src := newScriptedSource(honorCancel)
	clock := timing.NewManualClock(time.Unix(0, 0))
	opts := Options[testItem]{
		Name:           "stations",
		Source:         src,
		Params:         NewQueryParameters(20),
		SearchDebounce: 300 * time.Millisecond,
		Clock:          clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(ctrl.Close)
	return &fixture{src: src, clock: clock, ctrl: ctrl}
}

// loadFirstPage mounts and answers page 0 with 20 of 57 items.
func (f *fixture) loadFirstPage(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Mount(); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	call := f.src.next(t)
	if call.pageIndex != 0 || call.pageSize != 20 {
		t.Fatalf("first fetch = page %d size %d, want page 0 size 20", call.pageIndex, call.pageSize)
	}
	call.succeed(makeItems(1, 20), 57, true)
	waitFor(t, f.ctrl, "first page", isReady[testItem])
}

// loadSecondPage requests page 1 and answers with ids 16..40 (5 overlap).
func (f *fixture) loadSecondPage(t *testing.T) {
	t.Helper()
	if !f.ctrl.LoadMore() {
		t.Fatal("LoadMore() = false, want true")
	}
	call := f.src.next(t)
	if call.pageIndex != 1 {
		t.Fatalf("LoadMore fetched page %d, want 1", call.pageIndex)
	}
	call.succeed(makeItems(16, 40), 57, true)
	waitFor(t, f.ctrl, "second page", func(s Snapshot[testItem]) bool {
		return s.State == StateReady && s.CurrentPageIndex == 1
	})
}

func TestController_ScenarioA_FirstPage(t *testing.T) {
	f := newFixture(t, false, nil)

	if got := f.ctrl.State().State; got != StateIdle {
		t.Fatalf("initial state = %s, want idle", got)
	}
	f.loadFirstPage(t)

	snap := f.ctrl.State()
	if len(snap.Items) != 20 {
		t.Errorf("len(Items) = %d, want 20", len(snap.Items))
	}
	if !snap.HasNextPage {
		t.Error("HasNextPage = false, want true")
	}
	if snap.Total != 57 {
		t.Errorf("Total = %d, want 57", snap.Total)
	}
	if snap.IsLoadingInitial() || snap.IsLoadingMore() {
		t.Error("snapshot still reports loading")
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
}

func TestController_ScenarioB_DeduplicatesOverlap(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)
	before := f.ctrl.State().Items

	f.loadSecondPage(t)

	snap := f.ctrl.State()
	if len(snap.Items) != 40 {
		t.Fatalf("len(Items) = %d, want 40", len(snap.Items))
	}
	assertUniqueIDs(t, snap.Items)
	for i, it := range before {
		if snap.Items[i].ID != it.ID {
			t.Errorf("Items[%d] = %s, want %s (existing items must keep their order)", i, snap.Items[i].ID, it.ID)
		}
	}
	if snap.Items[39].ID != "id-040" {
		t.Errorf("last item = %s, want id-040", snap.Items[39].ID)
	}
}

func TestController_ScenarioC_SearchDuringLoadMore(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)
	f.loadSecondPage(t)

	if !f.ctrl.LoadMore() {
		t.Fatal("LoadMore() = false, want true")
	}
	pageThree := f.src.next(t)
	if pageThree.pageIndex != 2 {
		t.Fatalf("fetched page %d, want 2", pageThree.pageIndex)
	}

	f.ctrl.SetSearch("fast")
	f.clock.Advance(300 * time.Millisecond)

	reset := f.src.next(t)
	if reset.pageIndex != 0 || reset.params.Search != "fast" {
		t.Fatalf("reset fetch = page %d search %q, want page 0 search \"fast\"", reset.pageIndex, reset.params.Search)
	}

	select {
	case <-pageThree.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded page fetch was not cancelled")
	}

	reset.succeed(makeItems(101, 105), 5, false)
	waitFor(t, f.ctrl, "reset page", func(s Snapshot[testItem]) bool {
		return s.State == StateReady && len(s.Items) == 5
	})

	// The late page arrives after the reset already resolved.
	pageThree.succeed(makeItems(41, 57), 57, false)
	time.Sleep(50 * time.Millisecond)

	snap := f.ctrl.State()
	if len(snap.Items) != 5 {
		t.Errorf("len(Items) = %d after late response, want 5", len(snap.Items))
	}
	if snap.State != StateReady {
		t.Errorf("state = %s, want ready", snap.State)
	}
	if snap.HasNextPage {
		t.Error("HasNextPage = true, want false from the reset page")
	}
}

func TestController_ScenarioD_Refresh(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)
	f.loadSecondPage(t)

	f.ctrl.Refresh()

	snap := f.ctrl.State()
	if snap.State != StateLoadingInitial {
		t.Fatalf("state after Refresh = %s, want loading_initial", snap.State)
	}
	if len(snap.Items) != 40 {
		t.Errorf("len(Items) while reloading = %d, want 40 until page 0 arrives", len(snap.Items))
	}

	call := f.src.next(t)
	if call.pageIndex != 0 {
		t.Fatalf("refresh fetched page %d, want 0", call.pageIndex)
	}
	call.succeed(makeItems(201, 220), 60, true)

	snap = waitFor(t, f.ctrl, "refreshed page", isReady[testItem])
	if len(snap.Items) != 20 || snap.Items[0].ID != "id-201" {
		t.Errorf("items after refresh = %d starting %s, want 20 starting id-201", len(snap.Items), snap.Items[0].ID)
	}
	if snap.CurrentPageIndex != 0 {
		t.Errorf("CurrentPageIndex = %d, want 0", snap.CurrentPageIndex)
	}
}

func TestController_ScenarioE_LoadMoreFailureKeepsItems(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)

	f.ctrl.LoadMore()
	call := f.src.next(t)
	cause := errors.New("503 service unavailable")
	call.fail(cause)

	snap := waitFor(t, f.ctrl, "error state", func(s Snapshot[testItem]) bool {
		return s.State == StateError
	})
	if len(snap.Items) != 20 {
		t.Errorf("len(Items) = %d, want 20 (kept)", len(snap.Items))
	}
	if snap.IsLoadingMore() {
		t.Error("IsLoadingMore() = true, want false")
	}
	var fe *FetchError
	if !errors.As(snap.Err, &fe) {
		t.Fatalf("Err = %v, want *FetchError", snap.Err)
	}
	if fe.PageIndex != 1 || !errors.Is(snap.Err, cause) {
		t.Errorf("FetchError = %+v, want page 1 wrapping cause", fe)
	}

	// Retrying from the error state asks for the same page again.
	if !f.ctrl.LoadMore() {
		t.Fatal("LoadMore() retry = false, want true")
	}
	retry := f.src.next(t)
	if retry.pageIndex != 1 {
		t.Fatalf("retry fetched page %d, want 1", retry.pageIndex)
	}
	retry.succeed(makeItems(21, 40), 57, true)
	snap = waitFor(t, f.ctrl, "retry", isReady[testItem])
	if len(snap.Items) != 40 || snap.Err != nil {
		t.Errorf("after retry: %d items, err %v; want 40, nil", len(snap.Items), snap.Err)
	}
}

func TestController_InitialFailureClearsItems(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)

	f.ctrl.Refresh()
	f.src.next(t).fail(errors.New("connection refused"))

	snap := waitFor(t, f.ctrl, "error state", func(s Snapshot[testItem]) bool {
		return s.State == StateError
	})
	if len(snap.Items) != 0 {
		t.Errorf("len(Items) = %d, want 0 after initial failure", len(snap.Items))
	}
	if f.ctrl.LoadMore() {
		t.Error("LoadMore() after initial failure = true, want false")
	}

	f.ctrl.Refresh()
	f.src.next(t).succeed(makeItems(1, 3), 3, false)
	snap = waitFor(t, f.ctrl, "recovered", isReady[testItem])
	if len(snap.Items) != 3 || snap.Err != nil {
		t.Errorf("after refresh: %d items, err %v", len(snap.Items), snap.Err)
	}
}

func TestController_LoadMoreIsIdempotentWhileLoading(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)

	issued := 0
	for i := 0; i < 5; i++ {
		if f.ctrl.LoadMore() {
			issued++
		}
	}
	if issued != 1 {
		t.Errorf("LoadMore() issued %d requests, want 1", issued)
	}

	call := f.src.next(t)
	f.src.expectNone(t)
	call.succeed(makeItems(21, 40), 57, true)
	waitFor(t, f.ctrl, "page 1", isReady[testItem])
}

func TestController_LoadMoreWithoutNextPage(t *testing.T) {
	f := newFixture(t, false, nil)
	f.ctrl.Mount()
	f.src.next(t).succeed(makeItems(1, 7), 7, false)
	waitFor(t, f.ctrl, "ready", isReady[testItem])

	if f.ctrl.LoadMore() {
		t.Error("LoadMore() = true with no next page")
	}
	f.src.expectNone(t)
}

func TestController_TrustsServerHasMore(t *testing.T) {
	f := newFixture(t, false, nil)
	f.ctrl.Mount()
	// Client-side arithmetic would say 20 < 57 means more pages; the server says no.
	f.src.next(t).succeed(makeItems(1, 20), 57, false)

	snap := waitFor(t, f.ctrl, "ready", isReady[testItem])
	if snap.HasNextPage {
		t.Error("HasNextPage = true, want server-reported false")
	}
}

func TestController_CancelledFetchIsNotAnError(t *testing.T) {
	f := newFixture(t, true, nil)
	f.ctrl.Mount()
	first := f.src.next(t)

	if err := f.ctrl.SetFilter("status", "available"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	second := f.src.next(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("first fetch was not cancelled")
	}

	second.succeed(makeItems(1, 2), 2, false)
	snap := waitFor(t, f.ctrl, "ready", isReady[testItem])
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
	if v, _ := snap.Params.Filter("status"); v != "available" {
		t.Errorf("status filter = %q, want available", v)
	}
}

func TestController_EqualParametersDoNotReset(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)

	if err := f.ctrl.SetFilter("status", "available"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	f.src.next(t).succeed(makeItems(1, 5), 5, false)
	waitFor(t, f.ctrl, "filtered", func(s Snapshot[testItem]) bool {
		return s.State == StateReady && len(s.Items) == 5
	})

	if err := f.ctrl.SetFilter("status", "available"); err != nil {
		t.Fatalf("SetFilter() repeat error = %v", err)
	}
	if err := f.ctrl.SetSort(SortOrder{}); err != nil {
		t.Fatalf("SetSort() error = %v", err)
	}
	f.src.expectNone(t)
}

func TestController_ParameterErrorIssuesNoRequest(t *testing.T) {
	f := newFixture(t, false, func(o *Options[testItem]) {
		o.Validate = func(p QueryParameters) error {
			if v, ok := p.Filter("status"); ok && v != "available" && v != "offline" {
				return &ParameterError{Field: "status", Reason: "unknown status " + v}
			}
			return nil
		}
	})
	f.loadFirstPage(t)

	err := f.ctrl.SetFilter("status", "exploded")
	if !IsParameterError(err) {
		t.Fatalf("SetFilter() error = %v, want ParameterError", err)
	}
	if err := f.ctrl.SetParameters(NewQueryParameters(500)); !IsParameterError(err) {
		t.Errorf("SetParameters(page size 500) error = %v, want ParameterError", err)
	}
	f.src.expectNone(t)

	if _, ok := f.ctrl.Params().Filter("status"); ok {
		t.Error("rejected filter was stored")
	}
}

func TestNewController_RejectsInvalidInitialParameters(t *testing.T) {
	_, err := NewController(Options[testItem]{
		Source: newScriptedSource(false),
		Params: NewQueryParameters(-1),
	})
	if !IsParameterError(err) {
		t.Errorf("NewController() error = %v, want ParameterError", err)
	}

	if _, err := NewController(Options[testItem]{}); err == nil {
		t.Error("NewController() without source: error = nil")
	}
}

func TestController_SearchIsDebounced(t *testing.T) {
	f := newFixture(t, false, nil)
	f.loadFirstPage(t)

	for _, text := range []string{"a", "ab", "abb"} {
		f.ctrl.SetSearch(text)
		f.clock.Advance(100 * time.Millisecond)
	}
	f.src.expectNone(t)

	f.clock.Advance(200 * time.Millisecond)
	call := f.src.next(t)
	if call.params.Search != "abb" {
		t.Errorf("search = %q, want %q", call.params.Search, "abb")
	}
	f.src.expectNone(t)
	call.succeed(nil, 0, false)
	waitFor(t, f.ctrl, "search result", isReady[testItem])
}

func TestController_DisabledUntilEnabled(t *testing.T) {
	f := newFixture(t, false, func(o *Options[testItem]) { o.Disabled = true })

	f.ctrl.Mount()
	f.src.expectNone(t)
	if got := f.ctrl.State().State; got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}

	f.ctrl.SetEnabled(true)
	f.src.next(t).succeed(makeItems(1, 3), 3, false)
	waitFor(t, f.ctrl, "ready", isReady[testItem])
}

func TestController_CloseCancelsAndClearsTimers(t *testing.T) {
	f := newFixture(t, true, func(o *Options[testItem]) {
		o.Visibility = visibility.Options{Throttle: time.Second}
	})
	f.ctrl.Mount()
	call := f.src.next(t)

	f.ctrl.SetSearch("pending")
	f.ctrl.Close()

	select {
	case <-call.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("outstanding fetch not cancelled on Close")
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers after Close = %d, want 0", n)
	}

	f.clock.Advance(time.Second)
	f.src.expectNone(t)

	if err := f.ctrl.Mount(); !errors.Is(err, ErrClosed) {
		t.Errorf("Mount() after Close error = %v, want ErrClosed", err)
	}
	if err := f.ctrl.SetFilter("status", "offline"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetFilter() after Close error = %v, want ErrClosed", err)
	}
	if f.ctrl.LoadMore() {
		t.Error("LoadMore() after Close = true")
	}
	if !f.ctrl.State().Closed {
		t.Error("State().Closed = false")
	}
}

func TestController_SentinelTriggersLoadMore(t *testing.T) {
	f := newFixture(t, false, func(o *Options[testItem]) {
		o.Visibility = visibility.Options{Throttle: 0}
	})
	vp := visibility.NewScrollViewport(10)
	vp.SetContentHeight(20)
	f.ctrl.AttachSentinel(vp)

	f.loadFirstPage(t)
	f.src.expectNone(t)

	vp.ScrollToEnd()
	call := f.src.next(t)
	if call.pageIndex != 1 {
		t.Fatalf("sentinel fetched page %d, want 1", call.pageIndex)
	}
	call.succeed(makeItems(21, 23), 23, false)
	snap := waitFor(t, f.ctrl, "page 1", isReady[testItem])
	if len(snap.Items) != 23 {
		t.Errorf("len(Items) = %d, want 23", len(snap.Items))
	}

	// No more pages: scrolling again must not fetch.
	vp.SetContentHeight(23)
	vp.ScrollToEnd()
	f.src.expectNone(t)
}

func TestController_PublishesEvents(t *testing.T) {
	bus := events.NewEventBus(50)
	defer bus.Close()
	applied := bus.Subscribe(events.EventListPageApplied)
	failed := bus.Subscribe(events.EventListFetchFailed)

	f := newFixture(t, false, func(o *Options[testItem]) { o.EventBus = bus })
	f.loadFirstPage(t)

	select {
	case ev := <-applied:
		le := ev.(*events.ListEvent)
		if le.List != "stations" || le.Items != 20 || le.Total != 57 {
			t.Errorf("page event = %+v", le)
		}
	case <-time.After(time.Second):
		t.Fatal("no page applied event")
	}

	f.ctrl.LoadMore()
	f.src.next(t).fail(errors.New("timeout"))
	select {
	case ev := <-failed:
		if ev.(*events.ListEvent).PageIndex != 1 {
			t.Errorf("failure event page = %d, want 1", ev.(*events.ListEvent).PageIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("no fetch failed event")
	}
}

func TestController_SubscribeReceivesSnapshots(t *testing.T) {
	f := newFixture(t, false, nil)

	states := make(chan SyncState, 10)
	unsubscribe := f.ctrl.Subscribe(func(s Snapshot[testItem]) { states <- s.State })
	defer unsubscribe()

	f.loadFirstPage(t)

	sawLoading := false
	for {
		select {
		case st := <-states:
			if st == StateLoadingInitial {
				sawLoading = true
			}
			if st == StateReady {
				if !sawLoading {
					t.Error("ready snapshot arrived without a loading snapshot")
				}
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no ready snapshot delivered")
		}
	}
}

func TestController_WaitForHonorsContext(t *testing.T) {
	f := newFixture(t, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ctrl.WaitFor(ctx, isReady[testItem])
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitFor() error = %v, want deadline exceeded", err)
	}
}

func TestController_PauseDuringLoadMoreKeepsPages(t *testing.T) {
	f := newFixture(t, true, nil)
	f.loadFirstPage(t)
	f.loadSecondPage(t)
	gen := f.ctrl.State().Generation

	if !f.ctrl.LoadMore() {
		t.Fatal("LoadMore() = false, want true")
	}
	pageTwo := f.src.next(t)
	f.ctrl.SetEnabled(false)

	select {
	case <-pageTwo.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("in-flight page was not cancelled by pause")
	}
	snap := f.ctrl.State()
	if snap.State != StateReady || len(snap.Items) != 40 || snap.Generation != gen {
		t.Fatalf("after pause: state=%s items=%d gen=%d, want ready 40 gen=%d", snap.State, len(snap.Items), snap.Generation, gen)
	}
	if f.ctrl.LoadMore() {
		t.Error("LoadMore() while paused = true, want false")
	}

	f.ctrl.SetEnabled(true)
	f.src.expectNone(t)

	if !f.ctrl.LoadMore() {
		t.Fatal("LoadMore() after resume = false, want true")
	}
	call := f.src.next(t)
	if call.pageIndex != 2 {
		t.Fatalf("resume fetched page %d, want 2", call.pageIndex)
	}
	call.succeed(makeItems(41, 57), 57, false)
	snap = waitFor(t, f.ctrl, "page 2", func(s Snapshot[testItem]) bool {
		return s.State == StateReady && s.CurrentPageIndex == 2
	})
	if len(snap.Items) != 57 || snap.Generation != gen {
		t.Errorf("after resume: items=%d gen=%d, want 57 gen=%d", len(snap.Items), snap.Generation, gen)
	}
}

func TestController_PauseDuringFirstPageReloadsOnResume(t *testing.T) {
	f := newFixture(t, true, nil)
	f.ctrl.Mount()
	first := f.src.next(t)
	gen := f.ctrl.State().Generation

	f.ctrl.SetEnabled(false)
	<-first.ctx.Done()
	if snap := f.ctrl.State(); snap.State != StateIdle || snap.Generation != gen {
		t.Fatalf("after pause: state=%s gen=%d, want idle gen=%d", snap.State, snap.Generation, gen)
	}

	f.ctrl.SetEnabled(true)
	call := f.src.next(t)
	if call.pageIndex != 0 {
		t.Fatalf("resume fetched page %d, want 0", call.pageIndex)
	}
	call.succeed(makeItems(1, 20), 57, true)
	snap := waitFor(t, f.ctrl, "first page", isReady[testItem])
	if snap.Generation != gen+1 {
		t.Errorf("Generation = %d, want %d", snap.Generation, gen+1)
	}
}

func TestController_StaleInitialResponseIsIgnored(t *testing.T) {
	f := newFixture(t, false, nil)
	f.ctrl.Mount()
	older := f.src.next(t)

	if err := f.ctrl.SetFilter("status", "available"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	newer := f.src.next(t)
	if v, _ := newer.params.Filter("status"); v != "available" {
		t.Fatalf("second reset filter = %q, want available", v)
	}

	// The older reset answers first, while the newer one is still loading.
	older.succeed(makeItems(1, 20), 57, true)
	time.Sleep(50 * time.Millisecond)
	if snap := f.ctrl.State(); snap.State != StateLoadingInitial || len(snap.Items) != 0 {
		t.Fatalf("after stale reply: state=%s items=%d, want loading_initial with 0 items", snap.State, len(snap.Items))
	}

	newer.succeed(makeItems(101, 102), 2, false)
	snap := waitFor(t, f.ctrl, "newer reset", isReady[testItem])
	if len(snap.Items) != 2 || snap.Items[0].ID != "id-101" || snap.HasNextPage {
		t.Errorf("items=%d first=%s more=%v, want the newer reset's 2 items", len(snap.Items), snap.Items[0].ID, snap.HasNextPage)
	}
}

func TestController_StaleInitialResponseAfterNewerResolved(t *testing.T) {
	f := newFixture(t, false, nil)
	f.ctrl.Mount()
	older := f.src.next(t)

	f.ctrl.Refresh()
	newer := f.src.next(t)
	newer.succeed(makeItems(101, 105), 5, false)
	waitFor(t, f.ctrl, "newer reset", isReady[testItem])

	older.succeed(makeItems(1, 20), 57, true)
	time.Sleep(50 * time.Millisecond)

	snap := f.ctrl.State()
	if snap.State != StateReady || len(snap.Items) != 5 || snap.Total != 5 || snap.HasNextPage {
		t.Errorf("after late reply: state=%s items=%d total=%d more=%v, want ready 5 5 false",
			snap.State, len(snap.Items), snap.Total, snap.HasNextPage)
	}
}

func TestController_ParameterChangeLeavesError(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, f *fixture)
		check  func(QueryParameters) bool
	}{
		{
			name: "filter",
			change: func(t *testing.T, f *fixture) {
				if err := f.ctrl.SetFilter("status", "available"); err != nil {
					t.Fatalf("SetFilter() error = %v", err)
				}
			},
			check: func(p QueryParameters) bool { v, _ := p.Filter("status"); return v == "available" },
		},
		{
			name: "search",
			change: func(_ *testing.T, f *fixture) {
				f.ctrl.SetSearch("tesla")
				f.clock.Advance(300 * time.Millisecond)
			},
			check: func(p QueryParameters) bool { return p.Search == "tesla" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, nil)
			f.ctrl.Mount()
			f.src.next(t).fail(errors.New("502 bad gateway"))
			waitFor(t, f.ctrl, "error state", func(s Snapshot[testItem]) bool { return s.State == StateError })

			tt.change(t, f)
			call := f.src.next(t)
			if call.pageIndex != 0 || !tt.check(call.params) {
				t.Fatalf("fetch after %s change = page %d %s", tt.name, call.pageIndex, call.params.String())
			}
			if snap := f.ctrl.State(); snap.State != StateLoadingInitial || snap.Err != nil {
				t.Fatalf("state=%s err=%v, want loading_initial and no error", snap.State, snap.Err)
			}

			call.succeed(makeItems(1, 4), 4, false)
			snap := waitFor(t, f.ctrl, "ready", isReady[testItem])
			if len(snap.Items) != 4 || snap.Err != nil {
				t.Errorf("items=%d err=%v, want 4 and nil", len(snap.Items), snap.Err)
			}
		})
	}
}

func TestController_SourceCancelledFirstPageIsReissued(t *testing.T) {
	f := newFixture(t, false, nil)
	f.ctrl.Mount()

	f.src.next(t).fail(context.Canceled)
	again := f.src.next(t)
	if again.pageIndex != 0 {
		t.Fatalf("reissued page %d, want 0", again.pageIndex)
	}
	again.succeed(makeItems(1, 3), 3, false)
	waitFor(t, f.ctrl, "ready", isReady[testItem])

	// A second cancellation in a row is reported instead of looping.
	f.ctrl.Refresh()
	f.src.next(t).fail(context.Canceled)
	f.src.next(t).fail(context.Canceled)
	snap := waitFor(t, f.ctrl, "error", func(s Snapshot[testItem]) bool { return s.State == StateError })
	if !IsCancelled(snap.Err) {
		t.Errorf("Err = %v, want a cancellation", snap.Err)
	}
	f.src.expectNone(t)
}
