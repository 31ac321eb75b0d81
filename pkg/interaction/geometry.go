// Package interaction implements direct manipulation of the overlay rectangle:
// dragging it by its header and resizing it from its corner handle.
package interaction

// Limits applied while resizing.
const (
	MinWidth  = 300
	MinHeight = 200
	// DefaultMargin keeps the resize corner this far from the viewport edge.
	DefaultMargin = 20
)

// Rect is the overlay position and size in viewport pixels.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Point is a position in viewport pixels.
type Point struct {
	X, Y int
}

// Viewport is the visible area the overlay must stay within.
type Viewport struct {
	Width, Height int
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

func clamp(v, lo, hi int) int {
	// lo wins when the range is empty
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// ClampMove keeps the whole rectangle inside the viewport:
// 0 <= x <= vw-w and 0 <= y <= vh-h. When the rectangle is larger than the
// viewport it is pinned to the top-left.
func ClampMove(r Rect, vp Viewport) Rect {
	r.X = clamp(r.X, 0, vp.Width-r.Width)
	r.Y = clamp(r.Y, 0, vp.Height-r.Height)
	return r
}

// ClampResize bounds the size between the minimum and the space left between
// the rectangle's origin and the viewport edge minus margin. The minimum wins.
func ClampResize(r Rect, vp Viewport, margin int) Rect {
	r.Width = clamp(r.Width, MinWidth, vp.Width-r.X-margin)
	r.Height = clamp(r.Height, MinHeight, vp.Height-r.Y-margin)
	return r
}
