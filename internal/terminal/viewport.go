package terminal

// Viewport is an inclusive row/column rectangle over the session buffer.
type Viewport struct {
	Left, Top, Right, Bottom int
}

// Height 返回行数；Bottom 在 Top 之前时为 0。
func (v Viewport) Height() int {
	if v.Bottom < v.Top {
		return 0
	}
	return v.Bottom - v.Top + 1
}

func (v Viewport) Width() int {
	if v.Right < v.Left {
		return 0
	}
	return v.Right - v.Left + 1
}

// ToExclusive converts to a half-open rectangle. An empty viewport maps to
// an empty rectangle anchored at Top.
func (v Viewport) ToExclusive() Rect {
	if v.Height() == 0 {
		return Rect{Left: v.Left, Top: v.Top, Right: v.Left + v.Width(), Bottom: v.Top}
	}
	return Rect{Left: v.Left, Top: v.Top, Right: v.Right + 1, Bottom: v.Bottom + 1}
}

// Rect is a half-open rectangle: [Left, Right) x [Top, Bottom).
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int {
	if r.Right < r.Left {
		return 0
	}
	return r.Right - r.Left
}

func (r Rect) Height() int {
	if r.Bottom < r.Top {
		return 0
	}
	return r.Bottom - r.Top
}

// PixelRect is a Rect expressed in device pixels.
type PixelRect struct {
	Left, Top, Right, Bottom int
}

func (p PixelRect) Width() int  { return p.Right - p.Left }
func (p PixelRect) Height() int { return p.Bottom - p.Top }
