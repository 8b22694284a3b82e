package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/dispatch"
	"termbook/internal/events"
	"termbook/internal/features"
	"termbook/internal/history"
	"termbook/internal/logger"
	"termbook/internal/notebook"
	"termbook/internal/terminal"
	"termbook/internal/tui"
)

func main() {
	logger.Configure()
	if logFile, _, err := logger.SetupFile(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}

	root, rest, err := parseRootArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parse args: %v", err)
	}
	if len(rest) > 0 {
		switch rest[0] {
		case "replay":
			replayMain(root, rest[1:])
			return
		case "completion":
			completionMain(rest[1:])
			return
		case "features":
			featuresMain(root, rest[1:])
			return
		}
	}
	runInteractive(root, rest)
}

type interactiveArgs struct {
	cfgPath         string
	shell           string
	workdir         string
	configOverrides stringSlice
}

func newInteractiveFlagSet(name string) (*flag.FlagSet, *interactiveArgs) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	args := &interactiveArgs{}
	fs.StringVar(&args.cfgPath, "config", "", "Path to config file (default ~/.termbook/config.toml)")
	fs.StringVar(&args.shell, "shell", "", "Shell to run (overrides config)")
	fs.StringVar(&args.workdir, "cd", "", "Working directory for the shell")
	fs.StringVar(&args.workdir, "C", "", "Alias for --cd")
	fs.Var(&args.configOverrides, "c", "Override config value key=value (repeatable)")
	return fs, args
}

// loadConfig 读取配置并按顺序应用根参数与子命令的 -c 覆盖。
func loadConfig(path string, overrides []string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg = config.ApplyKVOverrides(cfg, overrides)
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warnf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	return cfg
}

// forkLog returns the notebook's logger, writing to its own file when possible.
func forkLog() (*logger.LogEntry, func()) {
	entry, closer, _, err := logger.SetupComponentFile("notebook", logger.DefaultForkLogPath)
	if err != nil {
		log.Warnf("failed to initialize fork log (%s): %v", logger.DefaultForkLogPath, err)
		return logger.Named("notebook"), func() {}
	}
	return entry, func() { closer.Close() }
}

func runInteractive(root rootArgs, args []string) {
	fs, cli := newInteractiveFlagSet("termbook")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}
	cfg := loadConfig(cli.cfgPath, prependOverrides(root.overrides, []string(cli.configOverrides)))
	if strings.TrimSpace(cli.shell) != "" {
		cfg.Settings.Shell = strings.TrimSpace(cli.shell)
	}

	nbLog, closeForkLog := forkLog()
	defer closeForkLog()

	session := terminal.NewSession(terminal.Options{
		Cols:       cfg.Settings.Cols,
		CellWidth:  cfg.Settings.CellWidth,
		CellHeight: cfg.Settings.CellHeight,
	})
	queue := dispatch.NewQueue()
	defer queue.Close()
	bus := events.NewBus()
	defer bus.Close()
	controls := tui.NewControls()

	conn := connection.NewPTY(connection.PTYOptions{
		Shell:            cfg.Settings.Shell,
		Args:             cfg.Settings.ShellArgs,
		Workdir:          cli.workdir,
		Cols:             uint16(cfg.Settings.Cols),
		Rows:             uint16(cfg.Settings.Rows),
		ShellIntegration: features.Enabled(cfg.Features, features.ShellIntegration),
	})

	nb, err := notebook.New(notebook.Options{
		Settings:               cfg.Settings,
		Appearance:             cfg.Appearance,
		Connection:             conn,
		Session:                session,
		Dispatcher:             queue,
		NewControl:             controls.Factory,
		Bus:                    bus,
		Log:                    nbLog,
		SkipMarginCompensation: !features.Enabled(cfg.Features, features.MarginCompensation),
	})
	if err != nil {
		log.Fatalf("create notebook: %v", err)
	}

	output := tui.NewOutputSignal(session)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := conn.Start(ctx, output); err != nil {
		log.Fatalf("start shell %s: %v", cfg.Settings.Shell, err)
	}
	defer conn.Close()

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Warnf("history disabled: %v", err)
		store = nil
	}

	result, err := tui.Run(tui.Options{
		Notebook:    nb,
		Controls:    controls,
		Queue:       queue,
		Connection:  conn,
		Output:      output,
		Bus:         bus,
		History:     store,
		Appearance:  cfg.Appearance,
		BlockSearch: features.Enabled(cfg.Features, features.BlockSearch),
	})
	if err != nil {
		log.Fatalf("tui error: %v", err)
	}
	entry := log.WithField("blocks", result.Blocks)
	if code, waitErr := conn.ExitCode(); code != nil {
		entry = entry.WithField("exit_code", *code)
	} else if waitErr != nil {
		entry = entry.WithError(waitErr)
	}
	entry.Info("session ended")
}
