package cli

import (
	"context"
	"fmt"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/events"
	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/visibility"
)

// viewportRows is the height of the terminal list view, in rows.
const viewportRows = 20

// offscreen keeps the sentinel out of view until the first page is rendered.
const offscreen = 1 << 20

// pager drives a list controller the way a scrolling view does: after every
// rendered page it moves a viewport to the end of the rows, and the sentinel
// sensor asks the controller for the next page.
type pager[T listsync.Item] struct {
	ctrl *listsync.Controller[T]
	vp   *visibility.ScrollViewport
}

func newPager[T listsync.Item](cfg *config.Config, src *api.Resource[T], params listsync.QueryParameters, bus *events.EventBus) (*pager[T], error) {
	if params.PageSize == 0 {
		params = params.WithPageSize(cfg.Sync.PageSize)
	}
	ctrl, err := listsync.NewController(listsync.Options[T]{
		Name:           src.Name(),
		Source:         src,
		Params:         params,
		Validate:       src.Validate,
		SearchDebounce: cfg.Sync.SearchDebounce(),
		Visibility: visibility.Options{
			RootMargin: cfg.Sync.PrefetchMargin,
			Threshold:  cfg.Sync.Threshold,
			Throttle:   cfg.Sync.ScrollThrottle(),
		},
		Logger:   GetLogger(),
		EventBus: bus,
	})
	if err != nil {
		return nil, err
	}

	vp := visibility.NewScrollViewport(viewportRows)
	vp.SetContentHeight(offscreen)
	ctrl.AttachSentinel(vp)
	return &pager[T]{ctrl: ctrl, vp: vp}, nil
}

// start mounts the list and waits for the first page.
func (p *pager[T]) start(ctx context.Context) (listsync.Snapshot[T], error) {
	if err := p.ctrl.Mount(); err != nil {
		return listsync.Snapshot[T]{}, err
	}
	return p.settle(ctx, -1)
}

// next scrolls to the end of the rendered rows and waits for the page that
// the sentinel requests. It reports false when there is nothing more to load.
func (p *pager[T]) next(ctx context.Context) (listsync.Snapshot[T], bool, error) {
	snap := p.ctrl.State()
	if snap.State != listsync.StateReady || !snap.HasNextPage {
		return snap, false, nil
	}

	p.vp.SetContentHeight(float64(len(snap.Items)))
	p.vp.ScrollToEnd()

	snap, err := p.settle(ctx, snap.CurrentPageIndex)
	return snap, err == nil, err
}

// retry re-requests a failed follow-up page.
func (p *pager[T]) retry(ctx context.Context) (listsync.Snapshot[T], error) {
	before := p.ctrl.State()
	if !p.ctrl.LoadMore() {
		return before, fmt.Errorf("%s: nothing to retry", p.ctrl.Name())
	}
	return p.settle(ctx, before.CurrentPageIndex)
}

// settle waits until a page after afterPage is applied or the list fails.
func (p *pager[T]) settle(ctx context.Context, afterPage int) (listsync.Snapshot[T], error) {
	snap, err := p.ctrl.WaitFor(ctx, func(s listsync.Snapshot[T]) bool {
		switch s.State {
		case listsync.StateError:
			return true
		case listsync.StateReady:
			return s.CurrentPageIndex > afterPage
		}
		return false
	})
	if err != nil {
		return snap, err
	}
	if snap.State == listsync.StateError {
		return snap, snap.Err
	}
	return snap, nil
}

func (p *pager[T]) close() {
	p.ctrl.Close()
}
