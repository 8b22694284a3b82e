package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"termbook/internal/config"
	"termbook/internal/features"
)

// featuresMain 列出 feature；`features enable|disable KEY` 写回配置文件。
func featuresMain(root rootArgs, args []string) {
	var overrides stringSlice
	var cfgPath string
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.termbook/config.toml)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse features args: %v", err)
	}

	if fs.NArg() > 0 {
		if fs.NArg() != 2 {
			log.Fatalf("usage: termbook features [enable|disable KEY]")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if err := setFeature(&cfg, fs.Arg(0), fs.Arg(1)); err != nil {
			log.Fatalf("%v", err)
		}
		if err := config.Save(cfg.Source, cfg); err != nil {
			log.Fatalf("failed to save config: %v", err)
		}
		fmt.Printf("%s %sd in %s\n", fs.Arg(1), fs.Arg(0), cfg.Source)
		return
	}

	cfg := loadConfig(cfgPath, prependOverrides(root.overrides, []string(overrides)))
	printFeatures(os.Stdout, cfg)
}

func setFeature(cfg *config.Config, action, key string) error {
	if !features.IsKnown(key) {
		return fmt.Errorf("unknown feature flag: %s", key)
	}
	var value bool
	switch action {
	case "enable":
		value = true
	case "disable":
		value = false
	default:
		return fmt.Errorf("unknown features action %q (want enable or disable)", action)
	}
	if cfg.Features == nil {
		cfg.Features = map[string]bool{}
	}
	cfg.Features[key] = value
	return nil
}

// printFeatures 输出每个 feature 的 key、阶段与生效值。
func printFeatures(w io.Writer, cfg config.Config) {
	for _, spec := range features.Specs {
		fmt.Fprintf(w, "%s\t%s\t%t\n", spec.Key, spec.Stage, features.Enabled(cfg.Features, spec.Key))
	}
}
