package terminal

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

const (
	esc = 0x1b
	bel = 0x07

	// maxOSCPayload 限制未终止 OSC 序列的累积长度。
	maxOSCPayload = 4096
)

// promptMarkPayload is the FinalTerm/OSC 133 "prompt start" command.
const promptMarkPayload = "133;A"

// Mark 描述一次检测到的提示符边界。
type Mark struct {
	Row int
}

type parseState int

const (
	stateGround parseState = iota
	stateEscape
	stateOSC
	stateOSCEscape
)

// Options 配置 Session 的列宽与字符格像素尺寸。
type Options struct {
	Cols       int
	CellWidth  int
	CellHeight int
}

// Session is a line-oriented scrollback buffer fed by a connection. It
// recognises OSC 133;A prompt marks and raises a new-prompt signal for each.
//
// Rows are never discarded, so row coordinates stay stable for the lifetime
// of the session.
type Session struct {
	mu      sync.Mutex
	lines   []string
	current []byte
	cols    int
	cellW   int
	cellH   int

	state     parseState
	osc       []byte
	pendingCR bool

	hmu      sync.RWMutex
	handlers []func(Mark)
}

func NewSession(opts Options) *Session {
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.CellWidth <= 0 {
		opts.CellWidth = 8
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = 16
	}
	return &Session{cols: opts.Cols, cellW: opts.CellWidth, cellH: opts.CellHeight}
}

// OnNewPrompt 订阅提示符信号。回调在 Write 的调用 goroutine 上、释放锁之后执行。
func (s *Session) OnNewPrompt(fn func(Mark)) {
	if fn == nil {
		return
	}
	s.hmu.Lock()
	s.handlers = append(s.handlers, fn)
	s.hmu.Unlock()
}

// Write implements io.Writer so a connection can copy its output here.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	var marks []Mark
	for _, b := range p {
		if m, ok := s.feedLocked(b); ok {
			marks = append(marks, m)
		}
	}
	s.mu.Unlock()

	if len(marks) > 0 {
		s.hmu.RLock()
		handlers := append([]func(Mark){}, s.handlers...)
		s.hmu.RUnlock()
		for _, m := range marks {
			for _, h := range handlers {
				h(m)
			}
		}
	}
	return len(p), nil
}

func (s *Session) feedLocked(b byte) (Mark, bool) {
	switch s.state {
	case stateEscape:
		if b == ']' {
			s.state = stateOSC
			s.osc = s.osc[:0]
			return Mark{}, false
		}
		s.state = stateGround
		s.current = append(s.current, esc, b)
		return Mark{}, false
	case stateOSC:
		switch b {
		case bel:
			return s.finishOSCLocked()
		case esc:
			s.state = stateOSCEscape
		default:
			if len(s.osc) < maxOSCPayload {
				s.osc = append(s.osc, b)
			}
		}
		return Mark{}, false
	case stateOSCEscape:
		if b == '\\' {
			return s.finishOSCLocked()
		}
		// 非 ST 结尾：丢弃该 OSC，并把 ESC 当作新序列的开头。
		s.osc = s.osc[:0]
		s.state = stateEscape
		return s.feedLocked(b)
	}

	if s.pendingCR {
		s.pendingCR = false
		if b != '\n' {
			s.current = s.current[:0]
		}
	}
	switch {
	case b == esc:
		s.state = stateEscape
	case b == '\n':
		s.lines = append(s.lines, string(s.current))
		s.current = s.current[:0]
	case b == '\r':
		s.pendingCR = true
	case b == '\b':
		s.backspaceLocked()
	case b == '\t':
		s.current = append(s.current, b)
	case b < 0x20 || b == 0x7f:
		// 其余控制字符不进入缓冲区。
	default:
		s.current = append(s.current, b)
	}
	return Mark{}, false
}

func (s *Session) finishOSCLocked() (Mark, bool) {
	payload := string(s.osc)
	s.osc = s.osc[:0]
	s.state = stateGround
	if payload == promptMarkPayload || strings.HasPrefix(payload, promptMarkPayload+";") {
		return Mark{Row: len(s.lines)}, true
	}
	return Mark{}, false
}

func (s *Session) backspaceLocked() {
	if len(s.current) == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(s.current)
	if size <= 0 {
		size = 1
	}
	s.current = s.current[:len(s.current)-size]
}

// Lock acquires the console lock guarding the buffer.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the console lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// CursorRow 返回当前（未完成）行的行号。
func (s *Session) CursorRow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorRowLocked()
}

func (s *Session) cursorRowLocked() int {
	return len(s.lines)
}

func (s *Session) colsLocked() int {
	return s.cols
}

// Lines 返回 [top, bottom] 闭区间内的行，bottom 可以是当前行。
func (s *Session) Lines(top, bottom int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesLocked(top, bottom)
}

func (s *Session) linesLocked(top, bottom int) []string {
	if top < 0 {
		top = 0
	}
	last := s.cursorRowLocked()
	if bottom > last {
		bottom = last
	}
	if bottom < top {
		return nil
	}
	out := make([]string, 0, bottom-top+1)
	for row := top; row <= bottom; row++ {
		if row < len(s.lines) {
			out = append(out, s.lines[row])
			continue
		}
		out = append(out, string(s.current))
	}
	return out
}

// PlainLines is Lines with ANSI escape sequences removed.
func (s *Session) PlainLines(top, bottom int) []string {
	lines := s.Lines(top, bottom)
	for i, l := range lines {
		lines[i] = ansi.Strip(l)
	}
	return lines
}

// Resize 更新列数，只影响像素换算与视口宽度。
func (s *Session) Resize(cols int) error {
	if cols <= 0 {
		return ErrInvalidSize
	}
	s.mu.Lock()
	s.cols = cols
	s.mu.Unlock()
	return nil
}

// ViewInPixels converts a row/column rectangle to device pixels.
func (s *Session) ViewInPixels(r Rect) PixelRect {
	s.mu.Lock()
	cw, ch := s.cellW, s.cellH
	s.mu.Unlock()
	return PixelRect{
		Left:   r.Left * cw,
		Top:    r.Top * ch,
		Right:  r.Right * cw,
		Bottom: r.Bottom * ch,
	}
}
