package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"termbook/internal/config"
	"termbook/internal/connection"
	"termbook/internal/dispatch"
	"termbook/internal/events"
	"termbook/internal/features"
	"termbook/internal/logger"
	"termbook/internal/notebook"

	"gopkg.in/yaml.v3"
)

type blockReport struct {
	Index        int      `yaml:"index"`
	ID           string   `yaml:"id"`
	Start        int      `yaml:"start"`
	End          int      `yaml:"end"`
	State        string   `yaml:"state"`
	Command      string   `yaml:"command,omitempty"`
	BottomMargin float64  `yaml:"bottom_margin,omitempty"`
	Lines        []string `yaml:"lines"`
}

type replayReport struct {
	Source   string        `yaml:"source,omitempty"`
	Blocks   []blockReport `yaml:"blocks"`
	Dropped  int           `yaml:"dropped_forks"`
	Rejected int           `yaml:"rejected_forks"`
}

func replayMain(root rootArgs, args []string) {
	var overrides stringSlice
	var cfgPath, outPath string
	var chunk int
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.termbook/config.toml)")
	fs.StringVar(&outPath, "o", "", "Write the YAML report to this file instead of stdout")
	fs.IntVar(&chunk, "chunk", 4096, "Bytes fed to the session per write")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse replay args: %v", err)
	}
	if fs.NArg() != 1 {
		log.Fatalf("usage: termbook replay [flags] FILE")
	}
	cfg := loadConfig(cfgPath, prependOverrides(root.overrides, []string(overrides)))

	src := fs.Arg(0)
	f, err := os.Open(src)
	if err != nil {
		log.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	nbLog, closeForkLog := forkLog()
	defer closeForkLog()

	report, err := replay(context.Background(), f, cfg, chunk, nbLog)
	if err != nil {
		log.Fatalf("replay %s: %v", src, err)
	}
	report.Source = src

	out := io.Writer(os.Stdout)
	if outPath != "" {
		file, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("create report: %v", err)
		}
		defer file.Close()
		out = file
	}
	if err := writeReport(out, report); err != nil {
		log.Fatalf("write report: %v", err)
	}
}

// replay feeds a recorded shell output stream through a headless notebook.
// Writes are cut after every OSC terminator and the queue is drained after
// each write, so every prompt mark is handled before the next one arrives.
func replay(ctx context.Context, r io.Reader, cfg config.Config, chunk int, entry *logger.LogEntry) (replayReport, error) {
	if chunk <= 0 {
		chunk = 4096
	}
	queue := dispatch.NewQueue()
	defer queue.Close()
	bus := events.NewBusWithBuffer(1024)
	counts := countForkEvents(bus.Subscribe())
	conn := connection.NewLoopback()
	defer conn.Close()

	nb, err := notebook.New(notebook.Options{
		Settings:               cfg.Settings,
		Appearance:             cfg.Appearance,
		Connection:             conn,
		Dispatcher:             queue,
		NewControl:             notebook.NewBasicControl,
		Bus:                    bus,
		Log:                    entry,
		SkipMarginCompensation: !features.Enabled(cfg.Features, features.MarginCompensation),
	})
	if err != nil {
		return replayReport{}, err
	}
	if err := conn.Start(ctx, nb.Session()); err != nil {
		return replayReport{}, err
	}

	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return replayReport{}, err
		}
		n, readErr := r.Read(buf)
		for _, part := range splitAfterTerminators(buf[:n]) {
			if _, err := conn.Emit(part); err != nil {
				return replayReport{}, fmt.Errorf("feed session: %w", err)
			}
			queue.Drain(ctx)
			if c, ok := nb.ActiveBlock().Control().(*notebook.BasicControl); ok {
				c.Measure()
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return replayReport{}, readErr
		}
	}
	queue.Drain(ctx)
	bus.Close()

	report := <-counts
	for _, b := range nb.Blocks() {
		start, end, _ := b.Range()
		report.Blocks = append(report.Blocks, blockReport{
			Index:        b.Index(),
			ID:           b.ID(),
			Start:        start,
			End:          end,
			State:        b.State().String(),
			Command:      b.Command(),
			BottomMargin: b.Handoff().BottomMargin,
			Lines:        nb.Session().PlainLines(start, end-1),
		})
	}
	return report, nil
}

// countForkEvents tallies dropped and rejected forks until sub is closed.
func countForkEvents(sub <-chan any) <-chan replayReport {
	out := make(chan replayReport, 1)
	go func() {
		var r replayReport
		for evt := range sub {
			switch evt.(type) {
			case events.ForkDropped:
				r.Dropped++
			case events.ForkRejected:
				r.Rejected++
			}
		}
		out <- r
	}()
	return out
}

// splitAfterTerminators cuts p after each BEL and each ESC-backslash pair.
func splitAfterTerminators(p []byte) [][]byte {
	var parts [][]byte
	last := 0
	for i, b := range p {
		if b == 0x07 || (b == '\\' && i > 0 && p[i-1] == 0x1b) {
			parts = append(parts, p[last:i+1])
			last = i + 1
		}
	}
	if last < len(p) {
		parts = append(parts, p[last:])
	}
	return parts
}

func writeReport(w io.Writer, report replayReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
