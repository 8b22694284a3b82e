package tui

import (
	"strings"

	"termbook/internal/notebook"

	"github.com/sahilm/fuzzy"
)

// blockSource 让 fuzzy 在 block 的命令与输出上搜索。
type blockSource []*notebook.Block

func (s blockSource) String(i int) string {
	b := s[i]
	text := b.Command()
	if text == "" {
		text = strings.Join(b.Lines(), " ")
	}
	return text
}

func (s blockSource) Len() int { return len(s) }

type searchHit struct {
	Index   int
	Text    string
	Matched []int
}

// searchBlocks returns blocks matching query, best first. An empty query
// lists every block newest first.
func searchBlocks(blocks []*notebook.Block, query string) []searchHit {
	src := blockSource(blocks)
	query = strings.TrimSpace(query)
	if query == "" {
		hits := make([]searchHit, 0, len(blocks))
		for i := len(blocks) - 1; i >= 0; i-- {
			hits = append(hits, searchHit{Index: blocks[i].Index(), Text: src.String(i)})
		}
		return hits
	}
	matches := fuzzy.FindFrom(query, src)
	hits := make([]searchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, searchHit{Index: blocks[m.Index].Index(), Text: m.Str, Matched: m.MatchedIndexes})
	}
	return hits
}
