package notebook

import (
	"context"
	"time"

	"termbook/internal/events"
	"termbook/internal/terminal"

	"github.com/google/uuid"
)

// ForkAt freezes the active block at row and starts a new live block there.
//
// At most one fork runs at a time: a request arriving while another is in
// flight is dropped, not queued. Without UI affinity the work is posted to
// the dispatcher and ForkAt returns immediately.
func (n *Notebook) ForkAt(ctx context.Context, row int) {
	if !n.forking.CompareAndSwap(false, true) {
		n.log.WithField("row", row).Debug("fork in flight; request dropped")
		n.publish(events.ForkDropped{Row: row, At: time.Now()})
		return
	}
	if n.ActiveBlock() != nil && !n.dispatcher.HasAccess(ctx) {
		err := n.dispatcher.Post(func(uiCtx context.Context) {
			n.forkOnUI(uiCtx, row)
		})
		if err != nil {
			n.forking.Store(false)
			n.log.WithError(err).WithField("row", row).Warn("fork could not be scheduled on the UI context")
		}
		return
	}
	n.forkOnUI(ctx, row)
}

func (n *Notebook) forkOnUI(_ context.Context, start int) {
	defer n.forking.Store(false)

	if active := n.ActiveBlock(); active != nil {
		if start <= active.start {
			n.log.WithError(ErrNonMonotonicBoundary).
				WithField("row", start).
				WithField("active_start", active.start).
				Warn("fork rejected")
			n.publish(events.ForkRejected{Row: start, ActiveFrom: active.start, At: time.Now()})
			return
		}
		n.freeze(active, start)
	}
	n.createBlock(start)
}

func (n *Notebook) freeze(active *Block, start int) {
	active.setState(StateFinished)
	n.notifyStateChanged(active)

	view := active.view
	view.SetBottom(start - 1)

	view.LockConsole()
	vp := view.GetViewport()
	view.UnlockConsole()

	pixels := n.session.ViewInPixels(vp.ToExclusive())
	h := ComputeHandoff(vp.Height(), pixels, n.display.ScaleFactor(), active.control.ActualHeight(), n.metrics)
	active.setHandoff(h)
	if n.compensate {
		active.control.SetMargin(Thickness{Bottom: h.BottomMargin})
	}
	active.control.SetConnection(nil)

	n.log.WithField("block", active.id).
		WithField("rows", h.Rows).
		WithField("view_height", h.ViewHeight).
		WithField("control_height", h.ControlHeight).
		WithField("margin", h.BottomMargin).
		Debug("block frozen")
}

func (n *Notebook) createBlock(start int) *Block {
	view := terminal.NewBlockRenderData(n.session, start)
	b := &Block{
		id:    uuid.NewString(),
		start: start,
		view:  view,
		state: StateCreated,
	}
	b.control = n.newControl(ControlSpec{
		BlockID:    b.id,
		Settings:   n.settings,
		Appearance: n.appearance,
		View:       view,
		Connection: n.conn,
		Scale:      n.display.ScaleFactor(),
	})
	if b.control == nil {
		n.log.Panic("control factory returned nil")
	}

	n.blocksMu.Lock()
	b.index = len(n.blocks)
	n.blocks = append(n.blocks, b)
	n.blocksMu.Unlock()

	n.log.WithField("block", b.id).WithField("index", b.index).WithField("start", start).Info("block created")
	n.publish(events.BlockAdded{BlockID: b.id, Index: b.index, Start: start, At: time.Now()})
	return b
}
