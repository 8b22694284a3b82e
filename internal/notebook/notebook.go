package notebook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/events"
	"termbook/internal/logger"
	"termbook/internal/terminal"
)

// Options 描述构造 Notebook 所需的协作者。Dispatcher 与 NewControl 必填。
type Options struct {
	Settings   config.Settings
	Appearance config.Appearance
	Connection connection.Connection
	// Session 为空时按 Settings 新建。
	Session    *terminal.Session
	Dispatcher Dispatcher
	Display    Display
	NewControl ControlFactory
	Bus        *events.Bus
	Log        *logger.LogEntry
	// SkipMarginCompensation disables the negative bottom margin applied to
	// frozen controls.
	SkipMarginCompensation bool
}

// Notebook owns the ordered blocks over one shared terminal session and
// decides when the live block is frozen and a new one begins.
type Notebook struct {
	settings   config.Settings
	appearance config.Appearance
	conn       connection.Connection
	session    *terminal.Session
	dispatcher Dispatcher
	display    Display
	newControl ControlFactory
	bus        *events.Bus
	log        *logger.LogEntry
	metrics    Metrics
	compensate bool

	blocksMu sync.RWMutex
	blocks   []*Block

	forking         atomic.Bool
	expectedPrompts atomic.Int64
	sawFirstMark    atomic.Bool
}

// New builds the notebook, subscribes to the session's prompt signal and
// creates Block #0 at row 0.
func New(opts Options) (*Notebook, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("notebook: dispatcher is required")
	}
	if opts.NewControl == nil {
		return nil, errors.New("notebook: control factory is required")
	}
	session := opts.Session
	if session == nil {
		session = terminal.NewSession(terminal.Options{
			Cols:       opts.Settings.Cols,
			CellWidth:  opts.Settings.CellWidth,
			CellHeight: opts.Settings.CellHeight,
		})
	}
	display := opts.Display
	if display == nil {
		display = StaticDisplay(opts.Settings.ScaleFactor)
	}
	entry := opts.Log
	if entry == nil {
		entry = logger.Named("notebook")
	}
	metrics := Metrics{RowPixels: opts.Settings.RowPixels, HeaderPixels: opts.Settings.HeaderPixels}
	if metrics.RowPixels <= 0 {
		metrics = DefaultMetrics
	}

	n := &Notebook{
		settings:   opts.Settings,
		appearance: opts.Appearance,
		conn:       opts.Connection,
		session:    session,
		dispatcher: opts.Dispatcher,
		display:    display,
		newControl: opts.NewControl,
		bus:        opts.Bus,
		log:        entry,
		metrics:    metrics,
		compensate: !opts.SkipMarginCompensation,
	}
	session.OnNewPrompt(func(m terminal.Mark) {
		n.OnNewPrompt(context.Background(), m.Row)
	})

	// No block exists yet, so this runs synchronously on the caller.
	n.ForkAt(context.Background(), 0)
	return n, nil
}

// OnNewPrompt handles a prompt boundary detected at row. Safe to call from
// any goroutine; the fork itself is moved onto the UI context.
func (n *Notebook) OnNewPrompt(ctx context.Context, row int) {
	if n.expectedPrompts.Add(-1) > 0 {
		n.log.WithField("row", row).Debug("prompt suppressed; more prompts expected")
		return
	}
	if n.sawFirstMark.CompareAndSwap(false, true) {
		n.log.WithField("row", row).Debug("first prompt observed")
		return
	}
	n.ForkAt(ctx, row)
}

// SendCommands forwards text to the active block's control. Each carriage
// return is one submitted command and so one expected prompt.
func (n *Notebook) SendCommands(ctx context.Context, text string) error {
	active := n.mustActive()
	if count := strings.Count(text, "\r"); count > 0 {
		n.expectedPrompts.Store(int64(count))
		active.setState(StateRunning)
		n.notifyStateChanged(active)
	}
	active.recordInput(text)
	return active.control.SendInput(text)
}

// Blocks 返回按创建顺序排列的 block 快照。
func (n *Notebook) Blocks() []*Block {
	n.blocksMu.RLock()
	defer n.blocksMu.RUnlock()
	return append([]*Block(nil), n.blocks...)
}

func (n *Notebook) Len() int {
	n.blocksMu.RLock()
	defer n.blocksMu.RUnlock()
	return len(n.blocks)
}

// ActiveBlock returns the last block, or nil before construction finished.
func (n *Notebook) ActiveBlock() *Block {
	n.blocksMu.RLock()
	defer n.blocksMu.RUnlock()
	if len(n.blocks) == 0 {
		return nil
	}
	return n.blocks[len(n.blocks)-1]
}

func (n *Notebook) mustActive() *Block {
	active := n.ActiveBlock()
	if active == nil {
		n.log.Panic("no active block; notebook must be created with New")
	}
	return active
}

func (n *Notebook) Session() *terminal.Session { return n.session }

func (n *Notebook) ExpectedPrompts() int64 { return n.expectedPrompts.Load() }

func (n *Notebook) SawFirstMark() bool { return n.sawFirstMark.Load() }

// Forking reports whether a fork is requested, awaiting the UI context, or executing.
func (n *Notebook) Forking() bool { return n.forking.Load() }

func (n *Notebook) notifyStateChanged(b *Block) {
	state := b.State()
	n.log.WithField("block", b.id).WithField("index", b.index).WithField("state", state).Debug("block state changed")
	n.publish(events.BlockStateChanged{BlockID: b.id, Index: b.index, State: state.String(), At: time.Now()})
}

func (n *Notebook) publish(evt any) {
	if n.bus == nil {
		return
	}
	n.bus.Publish(evt)
}
