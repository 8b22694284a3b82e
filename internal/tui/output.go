package tui

import (
	"io"
)

// OutputSignal forwards connection output to a sink (the terminal session)
// and wakes the UI after each write. Wake-ups coalesce.
type OutputSignal struct {
	sink  io.Writer
	dirty chan struct{}
}

func NewOutputSignal(sink io.Writer) *OutputSignal {
	return &OutputSignal{sink: sink, dirty: make(chan struct{}, 1)}
}

func (o *OutputSignal) Write(p []byte) (int, error) {
	n, err := o.sink.Write(p)
	select {
	case o.dirty <- struct{}{}:
	default:
	}
	return n, err
}

// C 在有新输出时可读。
func (o *OutputSignal) C() <-chan struct{} {
	return o.dirty
}
