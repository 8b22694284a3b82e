package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/dispatch"
	"termbook/internal/events"
	"termbook/internal/history"
	"termbook/internal/logger"
	"termbook/internal/notebook"
	"termbook/internal/tui/render"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// searchPanelHeight 是搜索面板（含边框）占用的行数。
const searchPanelHeight = 10

type Options struct {
	Notebook   *notebook.Notebook
	Controls   *Controls
	Queue      *dispatch.Queue
	Connection connection.Connection
	Output     *OutputSignal
	Bus        *events.Bus
	History    *history.Store
	Appearance config.Appearance
	// BlockSearch enables the ctrl+f block search panel.
	BlockSearch bool
	Log         *logger.LogEntry
}

type queueReadyMsg struct{}

type outputMsg struct{}

type busEventMsg struct {
	Event any
}

type connClosedMsg struct{}

type blockTiming struct {
	started time.Time
	ended   time.Time
}

type Model struct {
	nb         *notebook.Notebook
	controls   *Controls
	queue      *dispatch.Queue
	uiCtx      context.Context
	conn       connection.Connection
	output     *OutputSignal
	busSub     <-chan any
	store      *history.Store
	recall     *history.Recall
	appearance config.Appearance
	canSearch  bool
	log        *logger.LogEntry

	input    textarea.Model
	viewport render.Viewport
	spin     spinner.Model
	query    textinput.Model

	searching bool
	hits      []searchHit
	hitCursor int
	selected  int
	offsets   []int
	timings   map[string]blockTiming
	status    string
	err       error
	width     int
	height    int
	clock     func() time.Time
}

func New(opts Options) *Model {
	ti := textarea.New()
	ti.Placeholder = "type a command"
	ti.Prompt = "› "
	ti.CharLimit = 0
	ti.SetWidth(90)
	ti.SetHeight(1)
	ti.ShowLineNumbers = false
	ti.Focus()

	q := textinput.New()
	q.Placeholder = "search blocks"
	q.Prompt = "/ "

	accent := opts.Appearance.AccentColor
	if accent == "" {
		accent = "#7D56F4"
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(accent))

	entry := opts.Log
	if entry == nil {
		entry = logger.Named("tui")
	}
	controls := opts.Controls
	if controls == nil {
		controls = NewControls()
	}

	m := &Model{
		nb:         opts.Notebook,
		controls:   controls,
		queue:      opts.Queue,
		conn:       opts.Connection,
		output:     opts.Output,
		store:      opts.History,
		recall:     history.NewRecall(nil),
		appearance: opts.Appearance,
		canSearch:  opts.BlockSearch,
		log:        entry,
		input:      ti,
		viewport:   render.NewViewport(90, 20),
		spin:       spin,
		query:      q,
		selected:   -1,
		timings:    make(map[string]blockTiming),
		width:      90,
		height:     24,
		clock:      time.Now,
	}
	m.uiCtx = context.Background()
	if m.queue != nil {
		m.uiCtx = m.queue.WithAffinity(m.uiCtx)
	}
	if opts.Bus != nil {
		m.busSub = opts.Bus.Subscribe()
	}
	if m.store != nil {
		commands, err := m.store.Commands()
		if err != nil {
			m.log.WithError(err).Warn("history load failed")
		}
		m.recall.Set(commands)
	}
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := m.listenAll()
	cmds = append(cmds, m.spin.Tick, textarea.Blink)
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m.finish(cmds...)
	case queueReadyMsg:
		if n := m.queue.Drain(context.Background()); n > 0 {
			m.log.WithField("items", n).Debug("drained ui queue")
		}
		cmds = append(cmds, m.listenQueue())
		return m.finish(cmds...)
	case outputMsg:
		cmds = append(cmds, m.listenOutput())
		return m.finish(cmds...)
	case busEventMsg:
		m.handleBusEvent(msg.Event)
		cmds = append(cmds, m.listenBus())
		return m.finish(cmds...)
	case connClosedMsg:
		m.log.Info("connection closed; leaving")
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
		return m.finish(cmds...)
	case tea.MouseMsg:
		if cmd := m.viewport.HandleUpdate(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case tea.KeyMsg:
		if m.searching {
			cmds = append(cmds, m.handleSearchKey(msg))
			return m.finish(cmds...)
		}
		if cmd, handled := m.handleKey(msg); handled {
			cmds = append(cmds, cmd)
			return m.finish(cmds...)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m.finish(cmds...)
}

func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyPgUp:
		m.viewport.PageUp()
		return nil, true
	case tea.KeyPgDown:
		m.viewport.PageDown()
		return nil, true
	case tea.KeyHome:
		m.viewport.GotoTop()
		return nil, true
	case tea.KeyEnd:
		m.viewport.GotoBottom()
		return nil, true
	case tea.KeyUp:
		if text, ok := m.recall.Prev(m.input.Value()); ok {
			m.input.SetValue(text)
		}
		return nil, true
	case tea.KeyDown:
		if text, ok := m.recall.Next(); ok {
			m.input.SetValue(text)
		}
		return nil, true
	}

	switch msg.String() {
	case "ctrl+d":
		return tea.Quit, true
	case "ctrl+c":
		if m.input.Value() != "" {
			m.input.Reset()
			m.recall.Reset()
			return nil, true
		}
		m.send("\x03")
		return nil, true
	case "ctrl+f":
		if !m.canSearch {
			m.status = "block search is disabled"
			return nil, true
		}
		m.openSearch()
		return textinput.Blink, true
	case "ctrl+y":
		m.copySelected()
		return nil, true
	case "enter":
		text := m.input.Value()
		m.input.Reset()
		m.recall.Add(text)
		if m.store != nil && strings.TrimSpace(text) != "" {
			id := ""
			if active := m.nb.ActiveBlock(); active != nil {
				id = active.ID()
			}
			if err := m.store.Append(text, id); err != nil {
				m.log.WithError(err).Warn("history append failed")
			}
		}
		m.selected = -1
		m.viewport.GotoBottom()
		m.send(text + "\r")
		return nil, true
	}
	return nil, false
}

func (m *Model) send(text string) {
	if err := m.nb.SendCommands(m.uiCtx, text); err != nil {
		m.err = err
		m.log.WithError(err).Warn("send failed")
		return
	}
	m.err = nil
}

func (m *Model) handleBusEvent(evt any) {
	switch ev := evt.(type) {
	case events.BlockStateChanged:
		t := m.timings[ev.BlockID]
		switch ev.State {
		case notebook.StateRunning.String():
			t.started = ev.At
		case notebook.StateFinished.String():
			t.ended = ev.At
		}
		m.timings[ev.BlockID] = t
	case events.BlockAdded:
		m.status = fmt.Sprintf("block #%d", ev.Index)
	case events.ForkRejected:
		m.status = fmt.Sprintf("ignored prompt at row %d", ev.Row)
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(maxInt(width-2, 10))
	m.layout()

	if m.nb != nil {
		if err := m.nb.Session().Resize(width); err != nil {
			m.log.WithError(err).Debug("session resize failed")
		}
	}
	if m.conn != nil && width > 0 && height > 0 {
		if err := m.conn.Resize(uint16(width), uint16(m.viewport.Height)); err != nil {
			m.log.WithError(err).Debug("connection resize failed")
		}
	}
}

func (m *Model) layout() {
	reserved := 2 // input + status
	if m.searching {
		reserved += searchPanelHeight
	}
	m.viewport.Resize(m.width, maxInt(m.height-reserved, 3))
}

// refresh renders every block into the viewport. This is also the pass in
// which live controls measure their height.
func (m *Model) refresh() {
	if m.nb == nil {
		return
	}
	blocks := m.nb.Blocks()
	lines := make([]string, 0, 64)
	offsets := make([]int, 0, len(blocks))
	for _, b := range blocks {
		offsets = append(offsets, len(lines))
		if m.appearance.ShowHeaders {
			lines = append(lines, m.renderHeader(b))
		}
		raw := b.Lines()
		for i, l := range raw {
			raw[i] = fitLine(l, m.viewport.Width)
		}
		if c := m.controls.lookup(b.ID()); c != nil {
			raw = c.layout(raw)
		}
		lines = append(lines, raw...)
	}
	m.offsets = offsets
	m.viewport.SetLines(lines)
}

func (m *Model) renderHeader(b *notebook.Block) string {
	state := b.State()
	var glyph, color string
	switch state {
	case notebook.StateRunning:
		glyph, color = m.spin.View(), m.appearance.RunningColor
	case notebook.StateFinished:
		glyph, color = "✓", m.appearance.FinishedColor
	default:
		glyph, color = "○", m.appearance.CreatedColor
	}
	parts := []string{glyph, fmt.Sprintf("#%d", b.Index())}
	if cmd := strings.ReplaceAll(b.Command(), "\n", " ; "); cmd != "" {
		parts = append(parts, cmd)
	}
	if t, ok := m.timings[b.ID()]; ok && !t.started.IsZero() {
		end := t.ended
		if end.IsZero() {
			end = m.clock()
		}
		parts = append(parts, "("+fmtElapsedCompact(end.Sub(t.started))+")")
	}
	text := truncateToWidth(strings.Join(parts, " "), m.viewport.Width)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(state.Live())
	if b.Index() == m.selected {
		style = style.Reverse(true)
	}
	return style.Render(text)
}

func (m *Model) View() string {
	sections := []string{m.viewport.View()}
	if m.searching {
		sections = append(sections, m.renderSearch())
	}
	sections = append(sections, m.input.View(), m.statusLine())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) statusLine() string {
	var parts []string
	if m.nb != nil {
		if active := m.nb.ActiveBlock(); active != nil {
			parts = append(parts, fmt.Sprintf("%d blocks", m.nb.Len()), active.State().String())
		}
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if m.err != nil {
		parts = append(parts, "error: "+m.err.Error())
	}
	hints := "enter run • ↑/↓ history • pgup/pgdn scroll • ctrl+y copy • ctrl+d quit"
	if m.canSearch {
		hints = "ctrl+f search • " + hints
	}
	parts = append(parts, hints)
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Width(m.width).
		Render(truncateToWidth(strings.Join(parts, " • "), m.width))
}

func (m *Model) copySelected() {
	if m.nb == nil {
		return
	}
	blocks := m.nb.Blocks()
	var target *notebook.Block
	if m.selected >= 0 && m.selected < len(blocks) {
		target = blocks[m.selected]
	} else {
		for i := len(blocks) - 1; i >= 0; i-- {
			if blocks[i].State() == notebook.StateFinished {
				target = blocks[i]
				break
			}
		}
	}
	if target == nil {
		m.status = "nothing to copy"
		return
	}
	if err := copyBlock(target); err != nil {
		m.err = err
		return
	}
	m.status = fmt.Sprintf("copied block #%d", target.Index())
}

func (m *Model) listenQueue() tea.Cmd {
	if m.queue == nil {
		return nil
	}
	ready := m.queue.Ready()
	return func() tea.Msg {
		<-ready
		return queueReadyMsg{}
	}
}

func (m *Model) listenOutput() tea.Cmd {
	if m.output == nil {
		return nil
	}
	ch := m.output.C()
	return func() tea.Msg {
		<-ch
		return outputMsg{}
	}
}

func (m *Model) listenBus() tea.Cmd {
	if m.busSub == nil {
		return nil
	}
	sub := m.busSub
	return func() tea.Msg {
		evt, ok := <-sub
		if !ok {
			return nil
		}
		return busEventMsg{Event: evt}
	}
}

func (m *Model) listenDone() tea.Cmd {
	if m.conn == nil {
		return nil
	}
	done := m.conn.Done()
	return func() tea.Msg {
		<-done
		return connClosedMsg{}
	}
}

func (m *Model) listenAll() []tea.Cmd {
	cmds := []tea.Cmd{}
	for _, cmd := range []tea.Cmd{m.listenQueue(), m.listenOutput(), m.listenBus(), m.listenDone()} {
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
