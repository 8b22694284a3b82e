package tui

import (
	"math"
	"sync"

	"termbook/internal/connection"
	"termbook/internal/notebook"
	"termbook/internal/terminal"
)

// blockControl 是 block 在 TUI 中的控件。高度只在渲染时更新，因此总是落后一帧。
type blockControl struct {
	id         string
	view       *terminal.BlockRenderData
	cellHeight float64
	scale      float64

	mu     sync.Mutex
	conn   connection.Connection
	margin notebook.Thickness
	height float64
}

func (c *blockControl) SendInput(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return notebook.ErrDetached
	}
	_, err := conn.Write([]byte(text))
	return err
}

func (c *blockControl) ActualHeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *blockControl) SetMargin(t notebook.Thickness) {
	c.mu.Lock()
	c.margin = t
	c.mu.Unlock()
}

func (c *blockControl) SetConnection(conn connection.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// layout returns the rows to show for this block. A live control measures
// itself from its content; a detached one keeps its last height, shifted by
// its bottom margin. The margin is in scaled pixels, so the frozen height is
// divided by the scaled cell height.
func (c *blockControl) layout(lines []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.height = float64(len(lines)) * c.cellHeight
		return lines
	}
	rows := int(math.Round((c.height + c.margin.Bottom) / (c.cellHeight * c.scale)))
	if rows < 0 {
		rows = 0
	}
	if rows <= len(lines) {
		return lines[:rows]
	}
	out := append([]string(nil), lines...)
	for len(out) < rows {
		out = append(out, "")
	}
	return out
}

// Controls 在 notebook 创建 block 时构造控件，并按 block id 供渲染查找。
// 把 Factory 作为 notebook.Options.NewControl 传入。
type Controls struct {
	mu       sync.Mutex
	controls map[string]*blockControl
}

func NewControls() *Controls {
	return &Controls{controls: make(map[string]*blockControl)}
}

func (r *Controls) Factory(spec notebook.ControlSpec) notebook.Control {
	cellHeight := float64(spec.Settings.CellHeight)
	if cellHeight <= 0 {
		cellHeight = 16
	}
	scale := spec.Scale
	if scale <= 0 {
		scale = 1
	}
	c := &blockControl{id: spec.BlockID, view: spec.View, cellHeight: cellHeight, scale: scale, conn: spec.Connection}
	r.mu.Lock()
	r.controls[spec.BlockID] = c
	r.mu.Unlock()
	return c
}

func (r *Controls) lookup(id string) *blockControl {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controls[id]
}
