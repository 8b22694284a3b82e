package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if name, ok := strings.CutPrefix(key, "features."); ok {
			if b, err := strconv.ParseBool(val); err == nil && name != "" {
				if cfg.Features == nil {
					cfg.Features = map[string]bool{}
				}
				cfg.Features[name] = b
			}
			continue
		}
		switch key {
		case "shell":
			cfg.Settings.Shell = val
		case "cols":
			setPositiveInt(&cfg.Settings.Cols, val)
		case "rows":
			setPositiveInt(&cfg.Settings.Rows, val)
		case "cell_width":
			setPositiveInt(&cfg.Settings.CellWidth, val)
		case "cell_height":
			setPositiveInt(&cfg.Settings.CellHeight, val)
		case "row_pixels":
			setPositiveFloat(&cfg.Settings.RowPixels, val)
		case "header_pixels":
			if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
				cfg.Settings.HeaderPixels = f
			}
		case "scale_factor", "scale":
			setPositiveFloat(&cfg.Settings.ScaleFactor, val)
		case "log_level":
			cfg.LogLevel = val
		case "history_path":
			cfg.HistoryPath = val
		case "appearance.accent_color":
			cfg.Appearance.AccentColor = val
		case "appearance.show_headers":
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.Appearance.ShowHeaders = b
			}
		}
	}
	return cfg
}

func setPositiveInt(dst *int, val string) {
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		*dst = n
	}
}

func setPositiveFloat(dst *float64, val string) {
	if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
		*dst = f
	}
}
