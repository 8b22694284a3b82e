package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var modalStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#FFB454"))

func (m *Model) openSearch() {
	m.searching = true
	m.query.Reset()
	m.query.Focus()
	m.input.Blur()
	m.updateHits()
	m.layout()
}

func (m *Model) closeSearch() {
	m.searching = false
	m.query.Blur()
	m.input.Focus()
	m.layout()
}

func (m *Model) updateHits() {
	m.hits = searchBlocks(m.nb.Blocks(), m.query.Value())
	m.hitCursor = 0
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "ctrl+c", "ctrl+f":
		m.closeSearch()
		return nil
	case "up", "ctrl+p":
		if m.hitCursor > 0 {
			m.hitCursor--
		}
		return nil
	case "down", "ctrl+n":
		if m.hitCursor < len(m.hits)-1 {
			m.hitCursor++
		}
		return nil
	case "enter":
		if m.hitCursor < len(m.hits) {
			m.selectBlock(m.hits[m.hitCursor].Index)
		}
		m.closeSearch()
		return nil
	}
	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	m.updateHits()
	return cmd
}

// selectBlock 选中 block 并滚动到它的第一行。
func (m *Model) selectBlock(index int) {
	m.selected = index
	m.refresh()
	if index >= 0 && index < len(m.offsets) {
		m.viewport.ScrollTo(m.offsets[index])
	}
}

func (m *Model) renderSearch() string {
	rows := []string{m.query.View()}
	limit := searchPanelHeight - 3
	if len(m.hits) == 0 {
		rows = append(rows, "no matching blocks")
	}
	width := maxInt(m.width-4, 10)
	highlight := lipgloss.NewStyle().Foreground(lipgloss.Color(m.appearance.AccentColor)).Bold(true)
	for i, hit := range m.hits {
		if i >= limit {
			break
		}
		cursor := "  "
		if i == m.hitCursor {
			cursor = "> "
		}
		text := truncateToWidth(fmt.Sprintf("#%d %s", hit.Index, strings.ReplaceAll(hit.Text, "\n", " ; ")), width-2)
		if i == m.hitCursor {
			text = highlight.Render(text)
		}
		rows = append(rows, cursor+text)
	}
	for len(rows) < searchPanelHeight-2 {
		rows = append(rows, "")
	}
	return modalStyle.Width(maxInt(m.width-2, 10)).Render(strings.Join(rows, "\n"))
}
