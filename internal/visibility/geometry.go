// Package visibility detects when a sentinel element scrolls into a viewport
// and turns that into throttled "load more" notifications.
package visibility

// Rect is an axis-aligned rectangle in scroll-content coordinates.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

func (r Rect) Bottom() float64 { return r.Y + r.Height }
func (r Rect) Right() float64  { return r.X + r.Width }

// Expand grows the rectangle by margin on every side. A negative margin shrinks it.
func (r Rect) Expand(margin float64) Rect {
	out := Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
	if out.Width < 0 {
		out.Width = 0
	}
	if out.Height < 0 {
		out.Height = 0
	}
	return out
}

// Intersect returns the overlapping region and whether the rectangles touch.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.Right(), o.Right())
	y2 := min(r.Bottom(), o.Bottom())
	if x2 < x1 || y2 < y1 {
		return Rect{}, false
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// Geometry is one observation of the sentinel and its scroll root.
type Geometry struct {
	Viewport Rect
	Target   Rect
}

// Entry is the result of evaluating a Geometry against a margin.
type Entry struct {
	Intersecting bool
	Ratio        float64
}

// Evaluate computes how much of the target is inside the viewport after the
// viewport has been grown by rootMargin. A zero-area target counts as fully
// visible when it lies inside the grown viewport.
func Evaluate(g Geometry, rootMargin float64) Entry {
	root := g.Viewport.Expand(rootMargin)
	overlap, ok := root.Intersect(g.Target)
	if !ok {
		return Entry{}
	}

	area := g.Target.Width * g.Target.Height
	if area <= 0 {
		return Entry{Intersecting: true, Ratio: 1}
	}
	return Entry{Intersecting: true, Ratio: (overlap.Width * overlap.Height) / area}
}

// Visible applies the threshold rule: with threshold 0 any touch counts,
// otherwise the visible ratio must reach threshold.
func (e Entry) Visible(threshold float64) bool {
	if !e.Intersecting {
		return false
	}
	if threshold <= 0 {
		return true
	}
	return e.Ratio >= threshold
}
