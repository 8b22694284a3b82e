package connection

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoopbackEchoesInput(t *testing.T) {
	l := NewLoopback()
	if _, err := l.Write([]byte("x")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	var out syncBuffer
	if err := l.Start(context.Background(), &out); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = l.Write([]byte("ls\r"))
	_, _ = l.Emit([]byte("file\n"))
	if got := out.String(); got != "ls\rfile\n" {
		t.Fatalf("output = %q", got)
	}
	if got := l.Input(); got != "ls\r" {
		t.Fatalf("input = %q", got)
	}
	_ = l.Close()
	if _, err := l.Write([]byte("y")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case <-l.Done():
	default:
		t.Fatalf("Done not closed")
	}
}

func TestShellEnvInjectsPromptMark(t *testing.T) {
	env, dir, err := integrationEnv("/bin/bash", shellEnv([]string{"PATH=/bin", "PROMPT_COMMAND=history -a"}))
	if err != nil || dir != "" {
		t.Fatalf("integrationEnv: dir=%q err=%v", dir, err)
	}
	got := lookupEnv(env, "PROMPT_COMMAND")
	if !strings.HasPrefix(got, promptMarkCommand) || !strings.HasSuffix(got, "history -a") {
		t.Fatalf("PROMPT_COMMAND = %q", got)
	}
	if lookupEnv(env, "TERM") != "xterm-256color" {
		t.Fatalf("TERM not set: %v", env)
	}

	plain := shellEnv([]string{"PATH=/bin"})
	if lookupEnv(plain, "PROMPT_COMMAND") != "" {
		t.Fatalf("unexpected PROMPT_COMMAND without integration")
	}
}

func TestZshIntegrationInstallsPrecmd(t *testing.T) {
	env, dir, err := integrationEnv("/usr/bin/zsh", shellEnv([]string{"PATH=/bin", "ZDOTDIR=/home/u/.config/zsh"}))
	if err != nil {
		t.Fatalf("integrationEnv: %v", err)
	}
	defer os.RemoveAll(dir)

	if dir == "" || lookupEnv(env, "ZDOTDIR") != dir {
		t.Fatalf("ZDOTDIR = %q, dir = %q", lookupEnv(env, "ZDOTDIR"), dir)
	}
	if lookupEnv(env, "TERMBOOK_USER_ZDOTDIR") != "/home/u/.config/zsh" {
		t.Fatalf("user ZDOTDIR not preserved: %v", env)
	}
	if lookupEnv(env, "PROMPT_COMMAND") != "" {
		t.Fatalf("zsh should not rely on PROMPT_COMMAND")
	}
	rc, err := os.ReadFile(filepath.Join(dir, ".zshrc"))
	if err != nil {
		t.Fatalf("read .zshrc: %v", err)
	}
	for _, want := range []string{"add-zsh-hook precmd _termbook_prompt_mark", promptMarkCommand, `source "${ZDOTDIR:-$HOME}/.zshrc"`} {
		if !strings.Contains(string(rc), want) {
			t.Fatalf(".zshrc missing %q:\n%s", want, rc)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ".zshenv")); err != nil {
		t.Fatalf(".zshenv not written: %v", err)
	}
}

func TestPTYZshEmitsPromptMark(t *testing.T) {
	zsh, err := exec.LookPath("zsh")
	if err != nil {
		t.Skip("zsh not installed")
	}
	home := t.TempDir()
	p := NewPTY(PTYOptions{
		Shell:            zsh,
		Args:             []string{"-i"},
		BaseEnv:          []string{"PATH=/usr/bin:/bin", "HOME=" + home},
		ShellIntegration: true,
	})
	var out syncBuffer
	if err := p.Start(context.Background(), &out); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer p.Close()
	dir := p.integrationDir

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "\x1b]133;A\x07") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(out.String(), "\x1b]133;A\x07") {
		t.Fatalf("no prompt mark in zsh output %q", out.String())
	}
	_, _ = p.Write([]byte("exit\r"))
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("zsh did not exit")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("integration dir %s not removed: %v", dir, err)
	}
}

func TestPTYRunsShell(t *testing.T) {
	p := NewPTY(PTYOptions{Shell: "/bin/sh", Args: []string{"-c", "echo hello-pty"}, BaseEnv: []string{"PATH=/usr/bin:/bin"}})
	var out syncBuffer
	if err := p.Start(context.Background(), &out); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer p.Close()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("shell did not exit")
	}
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "hello-pty") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(out.String(), "hello-pty") {
		t.Fatalf("output = %q", out.String())
	}
}
