package terminal

import "sync/atomic"

// BlockRenderData is a read-only window onto the rows of a Session starting at
// a fixed row. Until SetBottom is called the window extends to the live
// cursor row.
type BlockRenderData struct {
	session *Session
	start   int
	bottom  atomic.Int64
	fixed   atomic.Bool
}

func NewBlockRenderData(s *Session, start int) *BlockRenderData {
	if start < 0 {
		start = 0
	}
	return &BlockRenderData{session: s, start: start}
}

// Start 返回窗口的起始行。
func (r *BlockRenderData) Start() int {
	return r.start
}

// SetBottom fixes the closing row (inclusive). The view stops tracking the cursor.
func (r *BlockRenderData) SetBottom(row int) {
	r.bottom.Store(int64(row))
	r.fixed.Store(true)
}

// Bottom 返回固定的结束行；仍在跟随光标时 ok 为 false。
func (r *BlockRenderData) Bottom() (int, bool) {
	if !r.fixed.Load() {
		return 0, false
	}
	return int(r.bottom.Load()), true
}

func (r *BlockRenderData) LockConsole()   { r.session.Lock() }
func (r *BlockRenderData) UnlockConsole() { r.session.Unlock() }

// GetViewport 必须在 LockConsole/UnlockConsole 之间调用。
func (r *BlockRenderData) GetViewport() Viewport {
	bottom := r.session.cursorRowLocked()
	if b, ok := r.Bottom(); ok {
		bottom = b
	}
	return Viewport{
		Left:   0,
		Top:    r.start,
		Right:  r.session.colsLocked() - 1,
		Bottom: bottom,
	}
}

// Lines returns the rows currently inside the window, taking the console lock.
func (r *BlockRenderData) Lines() []string {
	r.LockConsole()
	defer r.UnlockConsole()
	vp := r.GetViewport()
	if vp.Height() == 0 {
		return nil
	}
	return r.session.linesLocked(vp.Top, vp.Bottom)
}

// Session 返回底层共享会话。
func (r *BlockRenderData) Session() *Session {
	return r.session
}
