package history

import "strings"

// Recall 负责输入框的上下箭头浏览状态。
// cursor == len(entries) 表示当前位于正在编辑的输入（非浏览历史）。
type Recall struct {
	entries []string
	cursor  int
	draft   string
}

func NewRecall(entries []string) *Recall {
	r := &Recall{}
	r.Set(entries)
	return r
}

func (r *Recall) Set(entries []string) {
	r.entries = append([]string(nil), entries...)
	r.cursor = len(r.entries)
	r.draft = ""
}

func (r *Recall) Add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n := len(r.entries); n == 0 || r.entries[n-1] != text {
		r.entries = append(r.entries, text)
	}
	r.cursor = len(r.entries)
	r.draft = ""
}

func (r *Recall) Len() int { return len(r.entries) }

func (r *Recall) Browsing() bool {
	return r.cursor < len(r.entries)
}

func (r *Recall) Reset() {
	r.cursor = len(r.entries)
	r.draft = ""
}

// Prev steps back; the first step remembers current as the draft.
func (r *Recall) Prev(current string) (string, bool) {
	if len(r.entries) == 0 {
		return "", false
	}
	if r.cursor == len(r.entries) {
		r.draft = current
	}
	if r.cursor > 0 {
		r.cursor--
	}
	return r.entries[r.cursor], true
}

// Next steps forward; past the newest entry it returns the saved draft.
func (r *Recall) Next() (string, bool) {
	if len(r.entries) == 0 || r.cursor == len(r.entries) {
		return "", false
	}
	if r.cursor < len(r.entries)-1 {
		r.cursor++
		return r.entries[r.cursor], true
	}
	r.cursor = len(r.entries)
	return r.draft, true
}
