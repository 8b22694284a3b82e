package notebook

import (
	"context"
	"errors"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/terminal"
)

var (
	// ErrDetached is returned by a control whose live connection was cleared.
	ErrDetached = errors.New("control detached from connection")
	// ErrNonMonotonicBoundary 表示 fork 行号没有严格大于活动 block 的起始行。
	ErrNonMonotonicBoundary = errors.New("fork boundary does not advance past the active block")
)

// Thickness is a layout margin in device-independent pixels.
type Thickness struct {
	Left, Top, Right, Bottom float64
}

// Control is the UI surface bound to a Block. Implementations belong to the
// UI layer; a Block only keeps a reference to it.
type Control interface {
	SendInput(text string) error
	// ActualHeight is the rendered height in device-independent pixels.
	ActualHeight() float64
	SetMargin(Thickness)
	// SetConnection wires the control to the live connection; nil detaches it.
	SetConnection(conn connection.Connection)
}

// ControlSpec carries what a factory needs to build a Block's control.
type ControlSpec struct {
	BlockID    string
	Settings   config.Settings
	Appearance config.Appearance
	View       *terminal.BlockRenderData
	Connection connection.Connection
	// Scale is the display scale factor the frozen geometry is computed with.
	Scale float64
}

// ControlFactory builds the control for a newly created Block.
type ControlFactory func(spec ControlSpec) Control

// Dispatcher is the UI-affine execution context.
type Dispatcher interface {
	HasAccess(ctx context.Context) bool
	Post(fn func(ctx context.Context)) error
}

// Display reports the current raw-pixels-per-view-pixel ratio.
type Display interface {
	ScaleFactor() float64
}

// StaticDisplay is a Display with a fixed scale factor.
type StaticDisplay float64

func (d StaticDisplay) ScaleFactor() float64 {
	if d <= 0 {
		return 1
	}
	return float64(d)
}
