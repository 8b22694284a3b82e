package notebook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/dispatch"
	"termbook/internal/events"
	"termbook/internal/logger"
	"termbook/internal/terminal"
)

const promptMark = "\x1b]133;A\x07"

type fakeControl struct {
	mu      sync.Mutex
	height  float64
	margin  Thickness
	conn    connection.Connection
	inputs  []string
	sendErr error
}

func (c *fakeControl) SendInput(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, text)
	return c.sendErr
}

func (c *fakeControl) ActualHeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *fakeControl) SetMargin(t Thickness) {
	c.mu.Lock()
	c.margin = t
	c.mu.Unlock()
}

func (c *fakeControl) SetConnection(conn connection.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *fakeControl) snapshot() (Thickness, connection.Connection, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.margin, c.conn, append([]string(nil), c.inputs...)
}

type harness struct {
	nb       *Notebook
	queue    *dispatch.Queue
	session  *terminal.Session
	conn     *connection.Loopback
	controls []*fakeControl
	mu       sync.Mutex
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		queue:   dispatch.NewQueue(),
		session: terminal.NewSession(terminal.Options{Cols: 80, CellWidth: 8, CellHeight: 16}),
		conn:    connection.NewLoopback(),
	}
	opts := Options{
		Settings:   config.Default().Settings,
		Connection: h.conn,
		Session:    h.session,
		Dispatcher: h.queue,
		Display:    StaticDisplay(1),
		NewControl: func(spec ControlSpec) Control {
			c := &fakeControl{height: 100, conn: spec.Connection}
			h.mu.Lock()
			h.controls = append(h.controls, c)
			h.mu.Unlock()
			return c
		},
		Log: logger.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	nb, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.nb = nb
	return h
}

func (h *harness) control(i int) *fakeControl {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controls[i]
}

// write feeds shell output into the session from the test goroutine, which
// has no UI affinity.
func (h *harness) write(s string) {
	_, _ = h.session.Write([]byte(s))
}

func (h *harness) drain() int {
	return h.queue.Drain(context.Background())
}

func assertContiguous(t *testing.T, nb *Notebook) {
	t.Helper()
	blocks := nb.Blocks()
	live := 0
	for i, b := range blocks {
		if b.Index() != i {
			t.Fatalf("block %d has index %d", i, b.Index())
		}
		if b.State().Live() {
			live++
			if i != len(blocks)-1 {
				t.Fatalf("live block %d is not the last block", i)
			}
		}
		if i == 0 {
			continue
		}
		_, prevEnd, _ := blocks[i-1].Range()
		if prevEnd != b.Start() {
			t.Fatalf("block %d ends at %d, block %d starts at %d", i-1, prevEnd, i, b.Start())
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live block, got %d", live)
	}
}

func TestNewCreatesInitialBlock(t *testing.T) {
	h := newHarness(t, nil)

	if h.nb.Len() != 1 {
		t.Fatalf("expected 1 block, got %d", h.nb.Len())
	}
	b := h.nb.ActiveBlock()
	if b.State() != StateCreated {
		t.Fatalf("expected created, got %s", b.State())
	}
	start, _, live := b.Range()
	if start != 0 || !live {
		t.Fatalf("unexpected range start=%d live=%v", start, live)
	}
	if h.nb.Forking() {
		t.Fatalf("fork guard still held after construction")
	}
	if h.queue.Pending() != 0 {
		t.Fatalf("initial fork must not be posted")
	}
	if b.ID() == "" {
		t.Fatalf("block id is empty")
	}
}

func TestNewRequiresDispatcherAndFactory(t *testing.T) {
	if _, err := New(Options{NewControl: NewBasicControl}); err == nil {
		t.Fatalf("expected error without dispatcher")
	}
	if _, err := New(Options{Dispatcher: dispatch.NewQueue()}); err == nil {
		t.Fatalf("expected error without control factory")
	}
}

func TestSendCommandsMarksRunning(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.nb.SendCommands(context.Background(), "ls\r"); err != nil {
		t.Fatalf("SendCommands: %v", err)
	}
	if got := h.nb.ExpectedPrompts(); got != 1 {
		t.Fatalf("expected 1 pending prompt, got %d", got)
	}
	if got := h.nb.ActiveBlock().State(); got != StateRunning {
		t.Fatalf("expected running, got %s", got)
	}
	_, _, inputs := h.control(0).snapshot()
	if len(inputs) != 1 || inputs[0] != "ls\r" {
		t.Fatalf("unexpected forwarded input %q", inputs)
	}
	if got := h.nb.ActiveBlock().Command(); got != "ls" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestSendCommandsWithoutReturnKeepsState(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.nb.SendCommands(context.Background(), "partial"); err != nil {
		t.Fatalf("SendCommands: %v", err)
	}
	if got := h.nb.ExpectedPrompts(); got != 0 {
		t.Fatalf("expected no pending prompts, got %d", got)
	}
	if got := h.nb.ActiveBlock().State(); got != StateCreated {
		t.Fatalf("expected created, got %s", got)
	}
}

func TestSendCommandsReturnsControlError(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("boom")
	h.control(0).sendErr = boom

	if err := h.nb.SendCommands(context.Background(), "ls\r"); !errors.Is(err, boom) {
		t.Fatalf("expected control error, got %v", err)
	}
}

func TestFirstPromptDoesNotFork(t *testing.T) {
	h := newHarness(t, nil)

	h.write("$ " + promptMark)
	if !h.nb.SawFirstMark() {
		t.Fatalf("first prompt not recorded")
	}
	if h.queue.Pending() != 0 || h.nb.Forking() {
		t.Fatalf("first prompt must not request a fork")
	}
	if h.nb.Len() != 1 {
		t.Fatalf("expected 1 block, got %d", h.nb.Len())
	}
}

func TestPromptAfterCommandForks(t *testing.T) {
	h := newHarness(t, nil)
	h.write(promptMark + "$ ")

	if err := h.nb.SendCommands(context.Background(), "ls\r"); err != nil {
		t.Fatalf("SendCommands: %v", err)
	}
	h.write("ls\na\nb\nc\nd\n")
	if row := h.session.CursorRow(); row != 5 {
		t.Fatalf("expected cursor row 5, got %d", row)
	}
	h.write(promptMark + "$ ")

	if got := h.nb.ExpectedPrompts(); got != 0 {
		t.Fatalf("expected 0 pending prompts, got %d", got)
	}
	if !h.nb.Forking() {
		t.Fatalf("fork guard should be held while awaiting the UI context")
	}
	if h.nb.Len() != 1 {
		t.Fatalf("fork must wait for the UI context")
	}
	if n := h.drain(); n != 1 {
		t.Fatalf("expected 1 posted fork, got %d", n)
	}

	blocks := h.nb.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	first, second := blocks[0], blocks[1]
	if first.State() != StateFinished {
		t.Fatalf("expected first block finished, got %s", first.State())
	}
	if start, end, live := first.Range(); start != 0 || end != 5 || live {
		t.Fatalf("unexpected first range [%d,%d) live=%v", start, end, live)
	}
	if second.Start() != 5 || second.State() != StateCreated {
		t.Fatalf("unexpected second block start=%d state=%s", second.Start(), second.State())
	}
	if h.nb.Forking() {
		t.Fatalf("fork guard not released")
	}
	if lines := first.Lines(); len(lines) != 5 || lines[4] != "d" {
		t.Fatalf("unexpected frozen lines %q", lines)
	}
	assertContiguous(t, h.nb)
}

func TestMultipleCommandsForkOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.write(promptMark)

	if err := h.nb.SendCommands(context.Background(), "a\rb\r"); err != nil {
		t.Fatalf("SendCommands: %v", err)
	}
	if got := h.nb.ExpectedPrompts(); got != 2 {
		t.Fatalf("expected 2 pending prompts, got %d", got)
	}

	h.write("a\n" + promptMark)
	if got := h.nb.ExpectedPrompts(); got != 1 {
		t.Fatalf("expected 1 pending prompt, got %d", got)
	}
	if h.nb.Forking() || h.queue.Pending() != 0 {
		t.Fatalf("intermediate prompt must not fork")
	}

	h.write("b\n" + promptMark)
	h.drain()
	if h.nb.Len() != 2 {
		t.Fatalf("expected 2 blocks, got %d", h.nb.Len())
	}
	if got := h.nb.ActiveBlock().Start(); got != 2 {
		t.Fatalf("expected new block at row 2, got %d", got)
	}
	if got := h.nb.Blocks()[0].Command(); got != "a\nb" {
		t.Fatalf("unexpected command %q", got)
	}
	assertContiguous(t, h.nb)
}

func TestConcurrentPromptsDuringForkAreDropped(t *testing.T) {
	bus := events.NewBusWithBuffer(16)
	sub := bus.Subscribe()
	h := newHarness(t, func(o *Options) { o.Bus = bus })
	h.write(promptMark)
	h.write("one\ntwo\n")

	h.nb.OnNewPrompt(context.Background(), 2)
	h.nb.OnNewPrompt(context.Background(), 2)
	if h.queue.Pending() != 1 {
		t.Fatalf("expected exactly one posted fork, got %d", h.queue.Pending())
	}
	h.drain()
	if h.nb.Len() != 2 {
		t.Fatalf("expected 2 blocks, got %d", h.nb.Len())
	}
	assertContiguous(t, h.nb)

	dropped := 0
	for len(sub) > 0 {
		if _, ok := (<-sub).(events.ForkDropped); ok {
			dropped++
		}
	}
	if dropped != 1 {
		t.Fatalf("expected one dropped fork event, got %d", dropped)
	}
}

func TestConcurrentPromptsFromManyGoroutines(t *testing.T) {
	h := newHarness(t, nil)
	h.write(promptMark)
	h.write("x\n")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.nb.OnNewPrompt(context.Background(), 1)
		}()
	}
	wg.Wait()
	h.drain()

	if h.nb.Len() != 2 {
		t.Fatalf("expected 2 blocks, got %d", h.nb.Len())
	}
	if h.nb.Forking() {
		t.Fatalf("fork guard not released")
	}
}

func TestForkWithAffinityRunsInline(t *testing.T) {
	h := newHarness(t, nil)
	h.write("x\ny\n")

	ctx := h.queue.WithAffinity(context.Background())
	h.nb.ForkAt(ctx, 2)
	if h.queue.Pending() != 0 {
		t.Fatalf("fork with affinity must not be posted")
	}
	if h.nb.Len() != 2 || h.nb.ActiveBlock().Start() != 2 {
		t.Fatalf("expected inline fork at row 2")
	}
}

func TestForkRejectsNonAdvancingRow(t *testing.T) {
	bus := events.NewBusWithBuffer(16)
	sub := bus.Subscribe()
	h := newHarness(t, func(o *Options) { o.Bus = bus })
	ctx := h.queue.WithAffinity(context.Background())
	h.write("x\ny\nz\n")
	h.nb.ForkAt(ctx, 2)

	h.nb.ForkAt(ctx, 2)
	h.nb.ForkAt(ctx, 1)

	if h.nb.Len() != 2 {
		t.Fatalf("expected rejected forks to leave 2 blocks, got %d", h.nb.Len())
	}
	if got := h.nb.ActiveBlock().State(); got != StateCreated {
		t.Fatalf("active block must stay live, got %s", got)
	}
	if h.nb.Forking() {
		t.Fatalf("fork guard not released after rejection")
	}

	rejected := 0
	for len(sub) > 0 {
		if _, ok := (<-sub).(events.ForkRejected); ok {
			rejected++
		}
	}
	if rejected != 2 {
		t.Fatalf("expected 2 rejections, got %d", rejected)
	}
	assertContiguous(t, h.nb)
}

func TestFreezeAppliesMarginAndDetaches(t *testing.T) {
	h := newHarness(t, nil)
	ctx := h.queue.WithAffinity(context.Background())
	h.write("a\nb\nc\n")

	h.nb.ForkAt(ctx, 3)

	margin, conn, _ := h.control(0).snapshot()
	if conn != nil {
		t.Fatalf("frozen control still attached")
	}
	// 3 rows * 16px = 48 view pixels; control reported 100.
	if margin.Bottom != -52 {
		t.Fatalf("unexpected bottom margin %v", margin.Bottom)
	}
	hand := h.nb.Blocks()[0].Handoff()
	if hand.Rows != 3 || hand.ViewHeight != 48 || hand.FakeHeight != 64 {
		t.Fatalf("unexpected handoff %+v", hand)
	}
	if _, conn, _ := h.control(1).snapshot(); conn != h.conn {
		t.Fatalf("new control not attached to the connection")
	}
}

func TestFreezeWithoutMarginCompensation(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SkipMarginCompensation = true })
	ctx := h.queue.WithAffinity(context.Background())
	h.write("a\n")

	h.nb.ForkAt(ctx, 1)

	margin, conn, _ := h.control(0).snapshot()
	if margin != (Thickness{}) {
		t.Fatalf("margin applied despite compensation disabled: %+v", margin)
	}
	if conn != nil {
		t.Fatalf("frozen control still attached")
	}
}

func TestForkGuardReleasedWhenFactoryPanics(t *testing.T) {
	calls := 0
	h := newHarness(t, func(o *Options) {
		o.NewControl = func(spec ControlSpec) Control {
			calls++
			if calls > 1 {
				panic("factory failure")
			}
			return &fakeControl{}
		}
	})
	ctx := h.queue.WithAffinity(context.Background())
	h.write("a\n")

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic")
			}
		}()
		h.nb.ForkAt(ctx, 1)
	}()
	if h.nb.Forking() {
		t.Fatalf("fork guard leaked after panic")
	}
}

func TestPostFailureReleasesGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.Close()

	h.nb.ForkAt(context.Background(), 1)
	if h.nb.Forking() {
		t.Fatalf("fork guard leaked after failed post")
	}
	if h.nb.Len() != 1 {
		t.Fatalf("expected 1 block, got %d", h.nb.Len())
	}
}

func TestStateChangesArePublished(t *testing.T) {
	bus := events.NewBusWithBuffer(16)
	sub := bus.Subscribe()
	h := newHarness(t, func(o *Options) { o.Bus = bus })
	ctx := h.queue.WithAffinity(context.Background())

	_ = h.nb.SendCommands(ctx, "ls\r")
	h.write("out\n")
	h.nb.ForkAt(ctx, 1)

	var states []string
	added := 0
	for len(sub) > 0 {
		switch evt := (<-sub).(type) {
		case events.BlockStateChanged:
			states = append(states, evt.State)
		case events.BlockAdded:
			added++
		}
	}
	if len(states) != 2 || states[0] != "running" || states[1] != "finished" {
		t.Fatalf("unexpected state events %q", states)
	}
	if added != 2 {
		t.Fatalf("expected 2 block-added events, got %d", added)
	}
}

func TestBlockCountMatchesExecutedForks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := h.queue.WithAffinity(context.Background())
	for i := 1; i <= 5; i++ {
		h.write("line\n")
		h.nb.ForkAt(ctx, i)
	}
	if h.nb.Len() != 6 {
		t.Fatalf("expected 6 blocks, got %d", h.nb.Len())
	}
	assertContiguous(t, h.nb)
}

func TestBlockCountFollowsPromptSignals(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.conn.Start(context.Background(), h.session); err != nil {
		t.Fatalf("Start: %v", err)
	}

	steps := []struct {
		name string
		send string
		out  string
	}{
		{name: "startup prompt", out: promptMark + "$ "},
		{name: "single command", send: "ls\r", out: "a\nb\n" + promptMark + "$ "},
		{name: "two commands, first prompt", send: "echo 1\recho 2\r", out: "1\n" + promptMark + "$ "},
		{name: "two commands, second prompt", out: "2\n" + promptMark + "$ "},
		{name: "stray prompt", out: "\n" + promptMark + "$ "},
		{name: "continued line, first prompt", send: "printf \\\r'x'\r", out: "> " + "\n" + promptMark + "$ "},
		{name: "continued line, second prompt", out: "x\n" + promptMark + "$ "},
		{name: "typing without return", send: "pwd"},
		{name: "return", send: "\r", out: "/tmp\n" + promptMark + "$ "},
		{name: "another stray prompt", out: "\n" + promptMark + "$ "},
	}

	var expected int64
	sawFirst := false
	want := 1
	for _, step := range steps {
		if step.send != "" {
			if err := h.nb.SendCommands(context.Background(), step.send); err != nil {
				t.Fatalf("%s: SendCommands: %v", step.name, err)
			}
			if n := strings.Count(step.send, "\r"); n > 0 {
				expected = int64(n)
			}
		}
		if step.out != "" {
			if _, err := h.conn.Emit([]byte(step.out)); err != nil {
				t.Fatalf("%s: Emit: %v", step.name, err)
			}
			h.drain()
			for i := 0; i < strings.Count(step.out, promptMark); i++ {
				expected--
				switch {
				case expected > 0:
				case !sawFirst:
					sawFirst = true
				default:
					want++
				}
			}
		}
		if got := h.nb.Len(); got != want {
			t.Fatalf("%s: expected %d blocks, got %d", step.name, want, got)
		}
		assertContiguous(t, h.nb)
	}
	if want != 7 {
		t.Fatalf("sequence should end with 7 blocks, model says %d", want)
	}
}

func TestLiveRangeClampedWhenForkedPastCursor(t *testing.T) {
	h := newHarness(t, nil)
	h.write("one\n")

	h.nb.ForkAt(h.queue.WithAffinity(context.Background()), 10)
	active := h.nb.ActiveBlock()
	start, end, live := active.Range()
	if !live || start != 10 || end != 10 {
		t.Fatalf("expected empty live range at 10, got [%d,%d) live=%v", start, end, live)
	}

	h.write("\n\n\n\n\n\n\n\n\n\nten\n")
	if _, end, _ := active.Range(); end != 13 {
		t.Fatalf("live range should follow the cursor once it passes start, got end %d", end)
	}
}
