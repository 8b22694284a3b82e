package events

import "sync"

// Simple pub-sub for notebook events. Slow subscribers lose events rather
// than stall the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   []chan any
	buffer int
	closed bool
}

func NewBus() *Bus {
	return &Bus{buffer: 64}
}

// NewBusWithBuffer 指定每个订阅者的缓存大小。
func NewBusWithBuffer(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

func (b *Bus) Subscribe() <-chan any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan any)
		close(ch)
		return ch
	}
	ch := make(chan any, b.buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish 返回因订阅者缓存已满而丢弃的次数。
func (b *Bus) Publish(evt any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		if t, ok := evt.(Typed); ok {
			log.WithField("type", t.Type()).Debugf("event dropped by %d slow subscriber(s)", dropped)
		}
	}
	return dropped
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.closed = true
}

// SubscriberCount 返回当前订阅者数量。
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
