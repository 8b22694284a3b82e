package events

import "time"

// EventType 描述 Bus 上分发的 notebook 事件类型。
type EventType string

const (
	EventBlockStateChanged EventType = "block.state_changed"
	EventBlockAdded        EventType = "block.added"
	EventForkDropped       EventType = "fork.dropped"
	EventForkRejected      EventType = "fork.rejected"
)

// BlockStateChanged 在 block 进入 Running 或 Finished 时发出。
type BlockStateChanged struct {
	BlockID string
	Index   int
	State   string
	At      time.Time
}

func (BlockStateChanged) Type() EventType { return EventBlockStateChanged }

// BlockAdded 在 fork 创建新的活动 block 后发出。
type BlockAdded struct {
	BlockID string
	Index   int
	Start   int
	At      time.Time
}

func (BlockAdded) Type() EventType { return EventBlockAdded }

// ForkDropped 表示已有 fork 在执行，本次请求被丢弃。
type ForkDropped struct {
	Row int
	At  time.Time
}

func (ForkDropped) Type() EventType { return EventForkDropped }

// ForkRejected 表示边界行没有严格大于活动 block 的起始行。
type ForkRejected struct {
	Row        int
	ActiveFrom int
	At         time.Time
}

func (ForkRejected) Type() EventType { return EventForkRejected }

// Typed is implemented by every payload published on the Bus.
type Typed interface {
	Type() EventType
}
