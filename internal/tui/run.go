package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Result 返回 TUI 退出时的必要信息。
type Result struct {
	Blocks int
}

// Run 封装 Bubble Tea 入口。
func Run(opts Options) (Result, error) {
	if opts.Notebook == nil {
		return Result{}, errors.New("tui: notebook is required")
	}
	program := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	m, err := program.Run()
	if err != nil {
		return Result{}, err
	}
	tuiModel, ok := m.(*Model)
	if !ok {
		return Result{}, errors.New("unexpected tui model")
	}
	return Result{Blocks: tuiModel.nb.Len()}, nil
}
