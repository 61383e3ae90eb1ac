// Package config loads the monitor configuration from the ringlight INI
// file and applies defaults and bounds. Malformed or missing values fall
// back to defaults so the daemon always starts in some safe mode.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ringlight/ringlightd/internal/domain"
)

// Defaults and bounds, matching the overlay's accepted ranges.
const (
	DefaultDevice     = "/dev/video0"
	DefaultColor      = "FFFFFF"
	DefaultBrightness = 100
	DefaultWidth      = 80
	DefaultInterval   = 2000 * time.Millisecond
	DefaultOverlayBin = "ringlight-overlay"
	DefaultWatch      = "howdy"

	MinInterval   = 100 * time.Millisecond
	MinBrightness = 1
	MaxBrightness = 100
	MinWidth      = 10
	MaxWidth      = 500
)

// DefaultPath returns the conventional config file location,
// ~/.config/ringlight/config.ini.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ringlight", "config.ini")
}

// DefaultHistoryPath returns the default session history database location.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "ringlight", "history.db")
}

// Default returns a MonitorConfig with every field at its default.
func Default() domain.MonitorConfig {
	return domain.MonitorConfig{
		Mode:           domain.ModeProcess,
		VideoDevice:    DefaultDevice,
		PollInterval:   DefaultInterval,
		WatchProcesses: domain.WatchList{DefaultWatch},
		Overlay: domain.OverlayConfig{
			Color:      DefaultColor,
			Brightness: DefaultBrightness,
			Width:      DefaultWidth,
		},
		OverlayBin: DefaultOverlayBin,
		HistoryDB:  DefaultHistoryPath(),
	}
}

// Load reads the INI file at path on top of the defaults. A missing file is
// not an error; individual bad values are silently defaulted.
func Load(path string) (domain.MonitorConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := ini.LooseLoad(path)
	if err != nil {
		return cfg, err
	}
	sec := file.Section("")

	if k := sec.Key("mode"); k.String() != "" {
		if mode, err := domain.ParseMode(k.String()); err == nil {
			cfg.Mode = mode
		}
	}
	if v := strings.TrimSpace(sec.Key("video_device").String()); v != "" {
		cfg.VideoDevice = v
	}
	if v := sec.Key("color").String(); v != "" {
		cfg.Overlay.Color = NormalizeColor(v)
	}
	if v, err := sec.Key("brightness").Int(); err == nil {
		cfg.Overlay.Brightness = ClampBrightness(v)
	}
	if v, err := sec.Key("width").Int(); err == nil {
		cfg.Overlay.Width = ClampWidth(v)
	}
	if v, err := sec.Key("fullscreen").Bool(); err == nil {
		cfg.Overlay.Fullscreen = v
	}
	if v, err := sec.Key("poll_interval").Int(); err == nil {
		cfg.PollInterval = ClampInterval(time.Duration(v) * time.Millisecond)
	}
	if list := SplitList(sec.Key("screens").String()); len(list) > 0 {
		cfg.Screens = list
	}
	if list := SplitList(sec.Key("watch_processes").String()); len(list) > 0 {
		cfg.WatchProcesses = toWatchList(list)
	}
	if v := strings.TrimSpace(sec.Key("overlay_bin").String()); v != "" {
		cfg.OverlayBin = v
	}
	if v := strings.TrimSpace(sec.Key("history_db").String()); v != "" {
		cfg.HistoryDB = v
	}

	return cfg, nil
}

// SplitList parses a comma-separated config value, trimming whitespace and
// surrounding quotes, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.Trim(strings.TrimSpace(tok), `"`)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// NormalizeColor strips a leading '#' from a hex RGB value.
func NormalizeColor(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "#")
}

// ClampBrightness bounds brightness to 1-100.
func ClampBrightness(v int) int {
	if v < MinBrightness {
		return MinBrightness
	}
	if v > MaxBrightness {
		return MaxBrightness
	}
	return v
}

// ClampWidth bounds border width to 10-500 pixels.
func ClampWidth(v int) int {
	if v < MinWidth {
		return MinWidth
	}
	if v > MaxWidth {
		return MaxWidth
	}
	return v
}

// ClampInterval enforces the poll interval lower bound.
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

func toWatchList(items []string) domain.WatchList {
	list := make(domain.WatchList, 0, len(items))
	for _, it := range items {
		list = append(list, domain.WatchPattern(it))
	}
	return list
}
