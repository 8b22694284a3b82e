package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one submitted command line.
type Entry struct {
	Command string    `json:"command"`
	BlockID string    `json:"block_id,omitempty"`
	TS      time.Time `json:"ts"`
}

// Store persists submitted commands as JSON lines.
type Store struct {
	Path string
	// Limit 限制 Load 返回的最近条目数；0 表示不限制。
	Limit int
}

func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termbook", "history.jsonl"), nil
}

// Open returns a store at path, falling back to DefaultPath when empty.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Path: path, Limit: 1000}, nil
}

func (s *Store) ensureDir() error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return errors.New("history store path is empty")
	}
	return os.MkdirAll(filepath.Dir(s.Path), 0o755)
}

// Append records each non-empty line of command, tagged with the block it ran in.
func (s *Store) Append(command, blockID string) error {
	if s == nil {
		return errors.New("history store is nil")
	}
	var entries []Entry
	now := time.Now()
	for _, line := range splitCommands(command) {
		entries = append(entries, Entry{Command: line, BlockID: blockID, TS: now})
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load 读取全部条目，跳过无法解析的行。
func (s *Store) Load() ([]Entry, error) {
	if s == nil {
		return nil, errors.New("history store is nil")
	}
	if strings.TrimSpace(s.Path) == "" {
		return nil, errors.New("history store path is empty")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var out []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if strings.TrimSpace(e.Command) == "" {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if s.Limit > 0 && len(out) > s.Limit {
		out = out[len(out)-s.Limit:]
	}
	return out, nil
}

// Commands returns the loaded commands oldest first, with consecutive
// duplicates collapsed.
func (s *Store) Commands() ([]string, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1] == e.Command {
			continue
		}
		out = append(out, e.Command)
	}
	return out, nil
}

func splitCommands(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
