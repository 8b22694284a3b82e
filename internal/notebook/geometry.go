package notebook

import "termbook/internal/terminal"

// Metrics are the empirical per-row constants used when a block is frozen.
type Metrics struct {
	RowPixels    float64
	HeaderPixels float64
}

// DefaultMetrics matches a 16px row with a 16px block header.
var DefaultMetrics = Metrics{RowPixels: 16, HeaderPixels: 16}

// Handoff records the geometry computed when a block is frozen.
type Handoff struct {
	Rows          int
	ViewHeight    float64
	FakeHeight    float64
	ControlHeight float64
	// BottomMargin is applied to the frozen control so its content does not
	// jump while its layout height catches up with the truncated view.
	BottomMargin float64
}

// ComputeHandoff derives the frozen control's bottom margin. Degenerate input
// (no rows, control not laid out yet) still produces a value; it is cosmetic.
func ComputeHandoff(rows int, view terminal.PixelRect, scale, controlHeight float64, m Metrics) Handoff {
	if scale <= 0 {
		scale = 1
	}
	if rows < 0 {
		rows = 0
	}
	if m.RowPixels <= 0 {
		m.RowPixels = DefaultMetrics.RowPixels
	}
	viewHeight := float64(view.Height()) * scale
	return Handoff{
		Rows:          rows,
		ViewHeight:    viewHeight,
		FakeHeight:    (m.HeaderPixels + m.RowPixels*float64(rows)) * scale,
		ControlHeight: controlHeight,
		BottomMargin:  -(controlHeight - viewHeight),
	}
}
