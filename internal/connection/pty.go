package connection

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"termbook/internal/logger"

	"github.com/creack/pty"
)

var log = logger.Named("connection")

const drainTimeout = 2 * time.Second

// promptMarkCommand 在每次显示提示符前输出 OSC 133;A。
const promptMarkCommand = `printf '\033]133;A\007'`

// PTYOptions 描述要启动的 shell。
type PTYOptions struct {
	Shell            string
	Args             []string
	Workdir          string
	BaseEnv          []string
	Cols, Rows       uint16
	ShellIntegration bool
}

// PTY runs a shell under a pseudo-terminal.
type PTY struct {
	opts PTYOptions

	mu   sync.Mutex
	cmd  *exec.Cmd
	ptmx *os.File

	done     chan struct{}
	readDone chan struct{}
	once     sync.Once
	exitCode *int
	exitErr  error
	// integrationDir 是为 zsh 生成的临时 ZDOTDIR，关闭时删除。
	integrationDir string
}

func NewPTY(opts PTYOptions) *PTY {
	if strings.TrimSpace(opts.Shell) == "" {
		opts.Shell = "/bin/bash"
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	return &PTY{opts: opts, done: make(chan struct{}), readDone: make(chan struct{})}
}

// Start 启动 shell，并在后台把输出复制到 out。
func (p *PTY) Start(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("pty already started")
	}

	cmd := exec.CommandContext(ctx, p.opts.Shell, p.opts.Args...)
	if strings.TrimSpace(p.opts.Workdir) != "" {
		cmd.Dir = p.opts.Workdir
	}
	cmd.Env = shellEnv(p.opts.BaseEnv)
	if p.opts.ShellIntegration {
		env, dir, err := integrationEnv(p.opts.Shell, cmd.Env)
		if err != nil {
			return fmt.Errorf("shell integration: %w", err)
		}
		cmd.Env = env
		p.integrationDir = dir
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: p.opts.Cols, Rows: p.opts.Rows})
	if err != nil {
		p.removeIntegrationDir()
		return fmt.Errorf("start pty: %w", err)
	}
	p.cmd = cmd
	p.ptmx = ptmx
	log.WithField("shell", p.opts.Shell).WithField("pid", cmd.Process.Pid).Info("shell started")

	go p.readLoop(out)
	go p.waitLoop()
	return nil
}

func (p *PTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()
	if ptmx == nil {
		return 0, ErrNotStarted
	}
	select {
	case <-p.done:
		return 0, ErrClosed
	default:
	}
	return ptmx.Write(data)
}

func (p *PTY) Resize(cols, rows uint16) error {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()
	if ptmx == nil {
		return ErrNotStarted
	}
	return pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *PTY) Close() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		select {
		case <-p.done:
		default:
			_ = cmd.Process.Kill()
		}
	}
	p.close()
	return nil
}

func (p *PTY) Done() <-chan struct{} {
	return p.done
}

// ExitCode 返回 shell 的退出码与 Wait 的错误；仍在运行时 code 为 nil。
func (p *PTY) ExitCode() (*int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitErr
}

func (p *PTY) close() {
	p.once.Do(func() {
		p.mu.Lock()
		if p.ptmx != nil {
			_ = p.ptmx.Close()
		}
		p.removeIntegrationDir()
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *PTY) readLoop(out io.Writer) {
	defer close(p.readDone)
	tmp := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(tmp)
		if n > 0 && out != nil {
			if _, werr := out.Write(tmp[:n]); werr != nil {
				log.Warnf("session write failed: %v", werr)
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *PTY) waitLoop() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	// Let the reader drain what the shell printed before exiting.
	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
	}
	p.mu.Lock()
	p.exitCode = &code
	p.exitErr = err
	p.mu.Unlock()
	log.WithField("exit_code", code).Info("shell exited")
	p.close()
}

// removeIntegrationDir 需在持有 p.mu 时调用。
func (p *PTY) removeIntegrationDir() {
	if p.integrationDir == "" {
		return
	}
	if err := os.RemoveAll(p.integrationDir); err != nil {
		log.Warnf("remove zsh integration dir %s: %v", p.integrationDir, err)
	}
	p.integrationDir = ""
}

func shellEnv(base []string) []string {
	env := append([]string{}, base...)
	if len(env) == 0 {
		env = os.Environ()
	}
	return setEnv(env, "TERM", "xterm-256color")
}

// zshrc 恢复用户的 ZDOTDIR、加载用户自己的 .zshrc，再挂上 precmd。
const zshrc = `if [ -n "$TERMBOOK_USER_ZDOTDIR" ]; then ZDOTDIR="$TERMBOOK_USER_ZDOTDIR"; else unset ZDOTDIR; fi
unset TERMBOOK_USER_ZDOTDIR
[ -r "${ZDOTDIR:-$HOME}/.zshrc" ] && source "${ZDOTDIR:-$HOME}/.zshrc"
autoload -Uz add-zsh-hook
_termbook_prompt_mark() { ` + promptMarkCommand + ` }
add-zsh-hook precmd _termbook_prompt_mark
`

const zshenv = `[ -r "${TERMBOOK_USER_ZDOTDIR:-$HOME}/.zshenv" ] && source "${TERMBOOK_USER_ZDOTDIR:-$HOME}/.zshenv"
`

func shellName(shell string) string {
	return strings.TrimPrefix(filepath.Base(shell), "-")
}

// integrationEnv 让 shell 在每个提示符前输出 OSC 133;A。bash 通过
// PROMPT_COMMAND；zsh 忽略它，改用临时 ZDOTDIR 里的 precmd hook，
// 返回的目录由调用方负责删除。
func integrationEnv(shell string, env []string) ([]string, string, error) {
	switch name := shellName(shell); name {
	case "zsh":
		dir, err := os.MkdirTemp("", "termbook-zsh-")
		if err != nil {
			return env, "", err
		}
		files := map[string]string{".zshrc": zshrc, ".zshenv": zshenv}
		for file, content := range files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600); err != nil {
				_ = os.RemoveAll(dir)
				return env, "", err
			}
		}
		if user := lookupEnv(env, "ZDOTDIR"); user != "" {
			env = setEnv(env, "TERMBOOK_USER_ZDOTDIR", user)
		}
		return setEnv(env, "ZDOTDIR", dir), dir, nil
	default:
		if name != "bash" {
			log.WithField("shell", shell).Warn("shell has no known prompt hook; blocks will not split unless it honours PROMPT_COMMAND")
		}
		cmd := promptMarkCommand
		if existing := lookupEnv(env, "PROMPT_COMMAND"); existing != "" {
			cmd = cmd + "; " + existing
		}
		return setEnv(env, "PROMPT_COMMAND", cmd), "", nil
	}
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
