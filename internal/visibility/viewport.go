package visibility

import "sync"

// ScrollViewport models a vertically scrolling list with a sentinel placed
// directly after the last row. It implements Source for the sentinel and is
// used by terminal views and tests in place of a platform visibility API.
type ScrollViewport struct {
	mu             sync.Mutex
	height         float64
	offset         float64
	contentHeight  float64
	sentinelHeight float64
	watchers       map[int]func(Geometry)
	nextID         int
}

// NewScrollViewport creates a viewport of the given visible height.
func NewScrollViewport(height float64) *ScrollViewport {
	return &ScrollViewport{
		height:         height,
		sentinelHeight: 1,
		watchers:       make(map[int]func(Geometry)),
	}
}

// Watch registers notify and immediately reports the current geometry.
func (v *ScrollViewport) Watch(notify func(Geometry)) func() {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.watchers[id] = notify
	g := v.geometryLocked()
	v.mu.Unlock()

	notify(g)

	return func() {
		v.mu.Lock()
		delete(v.watchers, id)
		v.mu.Unlock()
	}
}

// SetContentHeight updates the height of the rendered rows.
func (v *ScrollViewport) SetContentHeight(h float64) {
	v.update(func() {
		v.contentHeight = h
		v.clampLocked()
	})
}

// ScrollTo moves the top of the viewport to offset, clamped to the content.
func (v *ScrollViewport) ScrollTo(offset float64) {
	v.update(func() {
		v.offset = offset
		v.clampLocked()
	})
}

// ScrollBy moves the viewport by delta.
func (v *ScrollViewport) ScrollBy(delta float64) {
	v.update(func() {
		v.offset += delta
		v.clampLocked()
	})
}

// ScrollToEnd moves the viewport so the last row is at the bottom edge.
func (v *ScrollViewport) ScrollToEnd() {
	v.update(func() {
		v.offset = v.contentHeight
		v.clampLocked()
	})
}

// Offset returns the current scroll offset.
func (v *ScrollViewport) Offset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// Geometry returns the current sentinel geometry.
func (v *ScrollViewport) Geometry() Geometry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.geometryLocked()
}

func (v *ScrollViewport) update(mutate func()) {
	v.mu.Lock()
	mutate()
	g := v.geometryLocked()
	watchers := make([]func(Geometry), 0, len(v.watchers))
	for _, w := range v.watchers {
		watchers = append(watchers, w)
	}
	v.mu.Unlock()

	for _, w := range watchers {
		w(g)
	}
}

func (v *ScrollViewport) clampLocked() {
	maxOffset := v.contentHeight + v.sentinelHeight - v.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if v.offset > maxOffset {
		v.offset = maxOffset
	}
	if v.offset < 0 {
		v.offset = 0
	}
}

func (v *ScrollViewport) geometryLocked() Geometry {
	return Geometry{
		Viewport: Rect{X: 0, Y: v.offset, Width: 1, Height: v.height},
		Target:   Rect{X: 0, Y: v.contentHeight, Width: 1, Height: v.sentinelHeight},
	}
}
