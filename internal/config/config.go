package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings 描述终端会话与控件几何相关的参数。
type Settings struct {
	Shell     string   `toml:"shell" yaml:"shell"`
	ShellArgs []string `toml:"shell_args" yaml:"shell_args"`
	Cols      int      `toml:"cols" yaml:"cols"`
	Rows      int      `toml:"rows" yaml:"rows"`
	// CellWidth/CellHeight 为单个字符格的像素尺寸，用于视口到像素的换算。
	CellWidth  int `toml:"cell_width" yaml:"cell_width"`
	CellHeight int `toml:"cell_height" yaml:"cell_height"`
	// RowPixels/HeaderPixels 是冻结 block 时几何交接使用的经验常量。
	RowPixels    float64 `toml:"row_pixels" yaml:"row_pixels"`
	HeaderPixels float64 `toml:"header_pixels" yaml:"header_pixels"`
	ScaleFactor  float64 `toml:"scale_factor" yaml:"scale_factor"`
}

// Appearance 描述 block 的展示样式。
type Appearance struct {
	AccentColor   string `toml:"accent_color" yaml:"accent_color"`
	CreatedColor  string `toml:"created_color" yaml:"created_color"`
	RunningColor  string `toml:"running_color" yaml:"running_color"`
	FinishedColor string `toml:"finished_color" yaml:"finished_color"`
	ShowHeaders   bool   `toml:"show_headers" yaml:"show_headers"`
}

// Config is the only persisted config file schema.
type Config struct {
	Settings    Settings        `toml:"settings" yaml:"settings"`
	Appearance  Appearance      `toml:"appearance" yaml:"appearance"`
	Features    map[string]bool `toml:"features,omitempty" yaml:"features,omitempty"`
	LogLevel    string          `toml:"log_level" yaml:"log_level"`
	HistoryPath string          `toml:"history_path,omitempty" yaml:"history_path,omitempty"`
	Source      string          `toml:"-" yaml:"-"`
}

func Default() Config {
	return Config{
		Settings: Settings{
			Shell:        defaultShell(),
			Cols:         100,
			Rows:         30,
			CellWidth:    8,
			CellHeight:   16,
			RowPixels:    16,
			HeaderPixels: 16,
			ScaleFactor:  1,
		},
		Appearance: Appearance{
			AccentColor:   "#7D56F4",
			CreatedColor:  "#5A5A5A",
			RunningColor:  "#E5C07B",
			FinishedColor: "#3C7D5A",
			ShowHeaders:   true,
		},
		LogLevel: "info",
	}
}

func defaultShell() string {
	if sh := strings.TrimSpace(os.Getenv("SHELL")); sh != "" {
		return sh
	}
	return "/bin/bash"
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".termbook", "config.toml")
}

// Load 读取配置文件；文件不存在时返回默认值。按扩展名选择 YAML 或 TOML。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(content, &cfg)
	} else {
		err = toml.Unmarshal(content, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv("TERMBOOK_SHELL")); env != "" {
		cfg.Settings.Shell = env
	}
	if env := strings.TrimSpace(os.Getenv("TERMBOOK_SCALE")); env != "" {
		if f, err := strconv.ParseFloat(env, 64); err == nil && f > 0 {
			cfg.Settings.ScaleFactor = f
		}
	}
}

// normalize 把非法或缺省的数值回退到默认值。
func (c *Config) normalize() {
	def := Default()
	if c.Settings.Shell == "" {
		c.Settings.Shell = def.Settings.Shell
	}
	if c.Settings.Cols <= 0 {
		c.Settings.Cols = def.Settings.Cols
	}
	if c.Settings.Rows <= 0 {
		c.Settings.Rows = def.Settings.Rows
	}
	if c.Settings.CellWidth <= 0 {
		c.Settings.CellWidth = def.Settings.CellWidth
	}
	if c.Settings.CellHeight <= 0 {
		c.Settings.CellHeight = def.Settings.CellHeight
	}
	if c.Settings.RowPixels <= 0 {
		c.Settings.RowPixels = def.Settings.RowPixels
	}
	if c.Settings.HeaderPixels < 0 {
		c.Settings.HeaderPixels = def.Settings.HeaderPixels
	}
	if c.Settings.ScaleFactor <= 0 {
		c.Settings.ScaleFactor = def.Settings.ScaleFactor
	}
}
