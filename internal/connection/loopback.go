package connection

import (
	"context"
	"io"
	"sync"
)

// Loopback echoes every input write straight back to the output sink.
// It stands in for a shell in replay mode and in tests.
type Loopback struct {
	mu     sync.Mutex
	out    io.Writer
	input  []byte
	closed bool
	done   chan struct{}
}

func NewLoopback() *Loopback {
	return &Loopback{done: make(chan struct{})}
}

func (l *Loopback) Start(_ context.Context, out io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.out = out
	return nil
}

func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	out := l.out
	if out == nil {
		l.mu.Unlock()
		return 0, ErrNotStarted
	}
	l.input = append(l.input, p...)
	l.mu.Unlock()
	return out.Write(p)
}

// Emit 模拟对端输出，不计入 Input。
func (l *Loopback) Emit(p []byte) (int, error) {
	l.mu.Lock()
	out := l.out
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if out == nil {
		return 0, ErrNotStarted
	}
	return out.Write(p)
}

// Input 返回迄今收到的全部输入。
func (l *Loopback) Input() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.input)
}

func (l *Loopback) Resize(cols, rows uint16) error { return nil }

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}

func (l *Loopback) Done() <-chan struct{} { return l.done }
