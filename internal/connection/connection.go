package connection

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotStarted 表示在 Start 之前写入。
	ErrNotStarted = errors.New("connection not started")
	// ErrClosed 表示连接已关闭。
	ErrClosed = errors.New("connection closed")
)

// Connection 是把字节送入终端会话的传输层。写入的内容作为输入发给对端，
// 对端的输出复制到 Start 传入的 out。
type Connection interface {
	io.Writer
	Start(ctx context.Context, out io.Writer) error
	Resize(cols, rows uint16) error
	Close() error
	Done() <-chan struct{}
}
