package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// fmtElapsedCompact 将耗时格式化为紧凑字符串。
func fmtElapsedCompact(d time.Duration) string {
	secs := uint64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %02dm %02ds", secs/3600, (secs%3600)/60, secs%60)
	}
}

// truncateToWidth cuts text to at most width terminal cells.
func truncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	w := 0
	out := make([]rune, 0, len(text))
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if w+rw > width {
			break
		}
		out = append(out, r)
		w += rw
	}
	return string(out)
}

// fitLine 截断一行终端输出。带转义序列的行交给 ansi 包按可见宽度截断。
func fitLine(line string, width int) string {
	if width <= 0 {
		return line
	}
	if ansi.Strip(line) != line {
		return ansi.Truncate(line, width, "")
	}
	return truncateToWidth(line, width)
}
