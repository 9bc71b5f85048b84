package listsync

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type testItem struct {
	ID   string
	Name string
}

func (i testItem) GetID() string { return i.ID }

// makeItems returns items with IDs id-<from> .. id-<to> inclusive.
func makeItems(from, to int) []testItem {
	out := make([]testItem, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, testItem{ID: fmt.Sprintf("id-%03d", n), Name: fmt.Sprintf("item %d", n)})
	}
	return out
}

type fetchReply struct {
	res PageResult[testItem]
	err error
}

// fetchCall is one FetchPage invocation waiting for the test to answer it.
type fetchCall struct {
	ctx       context.Context
	params    QueryParameters
	pageIndex int
	pageSize  int
	reply     chan fetchReply
}

func (f *fetchCall) succeed(items []testItem, total int, hasMore bool) {
	f.reply <- fetchReply{res: PageResult[testItem]{Items: items, Total: total, HasMore: hasMore}}
}

func (f *fetchCall) fail(err error) {
	f.reply <- fetchReply{err: err}
}

// scriptedSource hands every fetch to the test. With honorCancel unset it
// ignores cancellation, so late responses can be delivered after a reset.
type scriptedSource struct {
	calls       chan *fetchCall
	honorCancel bool
}

func newScriptedSource(honorCancel bool) *scriptedSource {
	return &scriptedSource{calls: make(chan *fetchCall, 16), honorCancel: honorCancel}
}

func (s *scriptedSource) FetchPage(ctx context.Context, params QueryParameters, pageIndex, pageSize int) (PageResult[testItem], error) {
	call := &fetchCall{
		ctx:       ctx,
		params:    params,
		pageIndex: pageIndex,
		pageSize:  pageSize,
		reply:     make(chan fetchReply, 1),
	}
	s.calls <- call

	if s.honorCancel {
		select {
		case r := <-call.reply:
			return r.res, r.err
		case <-ctx.Done():
			return PageResult[testItem]{}, ctx.Err()
		}
	}
	r := <-call.reply
	return r.res, r.err
}

func (s *scriptedSource) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fetch")
		return nil
	}
}

func (s *scriptedSource) expectNone(t *testing.T) {
	t.Helper()
	select {
	case call := <-s.calls:
		t.Fatalf("unexpected fetch for page %d (search %q)", call.pageIndex, call.params.Search)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor[T Item](t *testing.T, c *Controller[T], desc string, cond func(Snapshot[T]) bool) Snapshot[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := c.WaitFor(ctx, cond)
	if err != nil {
		t.Fatalf("waiting for %s: %v (state %s, %d items)", desc, err, snap.State, len(snap.Items))
	}
	return snap
}

func isReady[T Item](s Snapshot[T]) bool { return s.State == StateReady }

func assertUniqueIDs[T Item](t *testing.T, items []T) {
	t.Helper()
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.GetID()] {
			t.Errorf("duplicate id %s", it.GetID())
		}
		seen[it.GetID()] = true
	}
}
