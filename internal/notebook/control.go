package notebook

import (
	"sync"

	"termbook/internal/connection"
	"termbook/internal/terminal"
)

// BasicControl is a UI-less Control. Its height is the view's row count at
// the last Measure call times the cell height, so like a real layout it lags
// behind the content until measured again.
type BasicControl struct {
	view       *terminal.BlockRenderData
	cellHeight float64

	mu     sync.Mutex
	conn   connection.Connection
	margin Thickness
	height float64
}

// NewBasicControl is a ControlFactory.
func NewBasicControl(spec ControlSpec) Control {
	cellHeight := float64(spec.Settings.CellHeight)
	if cellHeight <= 0 {
		cellHeight = 16
	}
	c := &BasicControl{view: spec.View, cellHeight: cellHeight, conn: spec.Connection}
	c.Measure()
	return c
}

func (c *BasicControl) SendInput(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDetached
	}
	_, err := conn.Write([]byte(text))
	return err
}

// Measure 按视图当前行数刷新高度。
func (c *BasicControl) Measure() {
	c.view.LockConsole()
	rows := c.view.GetViewport().Height()
	c.view.UnlockConsole()
	c.mu.Lock()
	c.height = float64(rows) * c.cellHeight
	c.mu.Unlock()
}

func (c *BasicControl) ActualHeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *BasicControl) SetMargin(t Thickness) {
	c.mu.Lock()
	c.margin = t
	c.mu.Unlock()
}

func (c *BasicControl) Margin() Thickness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.margin
}

func (c *BasicControl) SetConnection(conn connection.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Connected 报告控件是否仍连接到实时连接。
func (c *BasicControl) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
