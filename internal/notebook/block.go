package notebook

import (
	"strings"
	"sync"

	"termbook/internal/terminal"
)

// State is a Block's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Live reports whether the state belongs to the active block.
func (s State) Live() bool {
	return s == StateCreated || s == StateRunning
}

// Block 是 notebook 的一个单元：一段行区间加上绑定的控件。Finished 之后不再变化。
type Block struct {
	id      string
	index   int
	start   int
	view    *terminal.BlockRenderData
	control Control

	mu      sync.RWMutex
	state   State
	input   strings.Builder
	handoff Handoff
}

func (b *Block) ID() string       { return b.id }
func (b *Block) Index() int       { return b.index }
func (b *Block) Start() int       { return b.start }
func (b *Block) Control() Control { return b.control }

// View 返回 block 独占的渲染视图。
func (b *Block) View() *terminal.BlockRenderData { return b.view }

func (b *Block) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Block) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Range returns the half-open row interval [start, end). While the block is
// live, end follows the session cursor.
func (b *Block) Range() (start, end int, live bool) {
	if bottom, ok := b.view.Bottom(); ok {
		end = bottom + 1
		if end < b.start {
			end = b.start
		}
		return b.start, end, false
	}
	end = b.view.Session().CursorRow() + 1
	if end < b.start {
		end = b.start
	}
	return b.start, end, true
}

// Lines 返回 block 当前可见的行。
func (b *Block) Lines() []string {
	return b.view.Lines()
}

// Command 返回该 block 活动期间提交的命令行。
func (b *Block) Command() string {
	b.mu.RLock()
	raw := b.input.String()
	b.mu.RUnlock()

	var lines []string
	for _, part := range strings.Split(raw, "\r") {
		if part = strings.TrimSpace(part); part != "" {
			lines = append(lines, part)
		}
	}
	return strings.Join(lines, "\n")
}

func (b *Block) recordInput(text string) {
	b.mu.Lock()
	b.input.WriteString(text)
	b.mu.Unlock()
}

// Handoff 返回冻结时计算的几何交接结果。
func (b *Block) Handoff() Handoff {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handoff
}

func (b *Block) setHandoff(h Handoff) {
	b.mu.Lock()
	b.handoff = h
	b.mu.Unlock()
}
