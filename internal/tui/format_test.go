package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
)

func TestFmtElapsedCompact(t *testing.T) {
	cases := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 00s"},
		{3*time.Minute + 5*time.Second, "3m 05s"},
		{time.Hour, "1h 00m 00s"},
		{25*time.Hour + 2*time.Minute + 3*time.Second, "25h 02m 03s"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := fmtElapsedCompact(tc.d); got != tc.expected {
				t.Fatalf("fmtElapsedCompact(%v) = %q, want %q", tc.d, got, tc.expected)
			}
		})
	}
}

func TestTruncateToWidthHandlesWideRunes(t *testing.T) {
	got := truncateToWidth("你好世界", 5)
	if runewidth.StringWidth(got) > 5 || got != "你好" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateToWidth("abc", 0); got != "" {
		t.Fatalf("zero width should be empty, got %q", got)
	}
}

func TestFitLineKeepsEscapes(t *testing.T) {
	got := fitLine("\x1b[31mhello world\x1b[0m", 5)
	if !bytes.Contains([]byte(got), []byte("\x1b[31m")) || !bytes.Contains([]byte(got), []byte("hello")) {
		t.Fatalf("unexpected fitted line %q", got)
	}
	if bytes.Contains([]byte(got), []byte("world")) {
		t.Fatalf("line not truncated: %q", got)
	}
}

func TestOutputSignalCoalesces(t *testing.T) {
	var sink bytes.Buffer
	o := NewOutputSignal(&sink)
	_, _ = o.Write([]byte("a"))
	_, _ = o.Write([]byte("b"))

	if sink.String() != "ab" {
		t.Fatalf("sink got %q", sink.String())
	}
	select {
	case <-o.C():
	default:
		t.Fatalf("expected a wake-up")
	}
	select {
	case <-o.C():
		t.Fatalf("wake-ups should coalesce")
	default:
	}
}
