// Package dispatch provides the UI-affine execution context used by the
// notebook. Work posted to a Queue runs later, in FIFO order, on whichever
// goroutine drains the queue; that goroutine is the only one whose context
// reports affinity.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed 表示队列已关闭，新的工作不会再被执行。
var ErrQueueClosed = errors.New("dispatch queue closed")

type affinityKey struct{}

// Queue 是无界 FIFO 工作队列；Post 永不阻塞调用方。
type Queue struct {
	mu      sync.Mutex
	pending []func(context.Context)
	ready   chan struct{}
	closed  bool
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Post 追加一项工作并唤醒消费者。
func (q *Queue) Post(fn func(context.Context)) error {
	if fn == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready 在有待执行工作时可读；一次信号可能对应多项工作，需配合 Drain 使用。
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain 在当前 goroutine 上按顺序执行所有待处理工作，返回执行的数量。
// 执行过程中新投递的工作也会在本轮被执行。
func (q *Queue) Drain(ctx context.Context) int {
	ctx = q.WithAffinity(ctx)
	n := 0
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn(ctx)
		n++
	}
}

// Run drains the queue until ctx is cancelled or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.ready:
			q.Drain(ctx)
			if q.isClosed() {
				q.Drain(ctx)
				return nil
			}
		}
	}
}

// Pending 返回尚未执行的工作数量。
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close 拒绝后续投递；已排队的工作仍可被 Drain。
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// WithAffinity marks ctx as running on this queue's execution context.
func (q *Queue) WithAffinity(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, affinityKey{}, q)
}

// HasAccess reports whether ctx was produced by this queue's Drain.
func (q *Queue) HasAccess(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(affinityKey{}).(*Queue)
	return owner == q
}
