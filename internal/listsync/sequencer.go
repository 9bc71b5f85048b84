package listsync

import (
	"context"
	"errors"
	"sync"
)

// Sequencer issues page fetches for one list. It keeps at most one request
// outstanding, stamps every request with the current generation, and cancels
// the previous request whenever a new one is issued.
type Sequencer[T Item] struct {
	source DataSource[T]

	mu         sync.Mutex
	generation uint64
	nextToken  uint64
	token      uint64
	cancel     context.CancelFunc
}

// NewSequencer creates a Sequencer over source.
func NewSequencer[T Item](source DataSource[T]) *Sequencer[T] {
	return &Sequencer[T]{source: source}
}

// Generation returns the current generation.
func (s *Sequencer[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// IsCurrent reports whether generation is still current.
func (s *Sequencer[T]) IsCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == generation
}

// Reset starts a new generation and cancels the outstanding request.
// It returns the new generation.
func (s *Sequencer[T]) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.cancelLocked()
	return s.generation
}

// CancelOutstanding cancels the outstanding request, if any.
func (s *Sequencer[T]) CancelOutstanding() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Outstanding reports whether a request is in flight.
func (s *Sequencer[T]) Outstanding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start registers a request as the outstanding one, cancelling its
// predecessor, without calling the data source yet. Registration order is
// therefore decided by the caller, not by goroutine scheduling. Call Wait to
// perform the fetch.
func (s *Sequencer[T]) Start(ctx context.Context, params QueryParameters, pageIndex int) *Call[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	callCtx, cancel := context.WithCancel(ctx)
	s.nextToken++
	s.token = s.nextToken
	s.cancel = cancel

	return &Call[T]{
		seq:    s,
		ctx:    callCtx,
		cancel: cancel,
		token:  s.token,
		req: PageRequest{
			Params:     params,
			PageIndex:  pageIndex,
			Generation: s.generation,
		},
	}
}

func (s *Sequencer[T]) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Sequencer[T]) finish(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.cancel = nil
	}
}

// Call is one issued request.
type Call[T Item] struct {
	seq    *Sequencer[T]
	ctx    context.Context
	cancel context.CancelFunc
	token  uint64
	req    PageRequest
}

// Request returns the request as issued.
func (c *Call[T]) Request() PageRequest {
	return c.req
}

// Token identifies the call among all calls of its sequencer.
func (c *Call[T]) Token() uint64 {
	return c.token
}

// Wait performs the fetch. A call cancelled before or during the fetch
// returns ErrCancelled even if the data source produced a result. Other
// failures are wrapped in a FetchError.
func (c *Call[T]) Wait() (PageResult[T], error) {
	defer c.cancel()
	defer c.seq.finish(c.token)

	if errors.Is(c.ctx.Err(), context.Canceled) {
		return PageResult[T]{}, ErrCancelled
	}

	res, err := c.seq.source.FetchPage(c.ctx, c.req.Params, c.req.PageIndex, c.req.Params.PageSize)

	// A deadline from the caller's context is a failure, not a cancellation.
	if errors.Is(c.ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return PageResult[T]{}, ErrCancelled
	}
	if err != nil {
		return PageResult[T]{}, &FetchError{
			PageIndex:  c.req.PageIndex,
			Generation: c.req.Generation,
			Err:        err,
		}
	}
	return res, nil
}
