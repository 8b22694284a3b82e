package tui

import (
	"strings"

	"termbook/internal/notebook"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/x/ansi"
)

var writeClipboard = clipboard.WriteAll

// blockText 返回 block 的纯文本内容（去除转义序列）。
func blockText(b *notebook.Block) string {
	lines := b.Lines()
	for i, l := range lines {
		lines[i] = strings.TrimRight(ansi.Strip(l), " ")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func copyBlock(b *notebook.Block) error {
	return writeClipboard(blockText(b))
}
