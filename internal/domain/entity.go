// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the activity-detection strategy.
type Mode string

const (
	// ModeProcess is event-only: netlink proc connector, requires CAP_NET_ADMIN.
	ModeProcess Mode = "process"
	// ModeCamera is poll-only: periodic device probe plus handle scan.
	ModeCamera Mode = "camera"
	// ModeHybrid prefers events and falls back to polling while nothing is tracked.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string from config or CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProcess:
		return ModeProcess, nil
	case ModeCamera:
		return ModeCamera, nil
	case ModeHybrid:
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown mode %q (want process, camera or hybrid)", s)
}

// WatchPattern is a process-name token. It matches a process when the short
// name equals it case-insensitively, or the full command line contains it.
type WatchPattern string

// Matches reports whether a process with the given short name and command
// line is recognized by this pattern. Empty inputs never match.
func (p WatchPattern) Matches(name, cmdline string) bool {
	if p == "" {
		return false
	}
	if name != "" && strings.EqualFold(name, string(p)) {
		return true
	}
	if cmdline != "" && strings.Contains(strings.ToLower(cmdline), strings.ToLower(string(p))) {
		return true
	}
	return false
}

// WatchList is the configured set of watch patterns.
type WatchList []WatchPattern

// Matches reports whether any pattern in the list matches.
func (l WatchList) Matches(name, cmdline string) bool {
	for _, p := range l {
		if p.Matches(name, cmdline) {
			return true
		}
	}
	return false
}

// OverlayConfig holds the rendering parameters forwarded to overlay children.
// Immutable for the daemon's lifetime once loaded.
type OverlayConfig struct {
	Color      string // hex RGB, no leading '#'
	Brightness int    // 1-100
	Width      int    // border width in pixels, 10-500
	Fullscreen bool
}

// MonitorConfig is the full daemon configuration, loaded once at startup.
// CLI flags replace whole fields, never merge partially.
type MonitorConfig struct {
	Mode           Mode
	VideoDevice    string
	PollInterval   time.Duration
	WatchProcesses WatchList
	Screens        []string // opaque selectors, forwarded verbatim
	Overlay        OverlayConfig
	OverlayBin     string // overlay executable name or path
	HistoryDB      string // session history database, empty disables
}

// EventType discriminates process lifecycle events.
type EventType int

const (
	EventExec EventType = iota
	EventExit
)

// ProcEvent is a kernel process lifecycle notification. Exit events carry
// no process identity beyond the pid.
type ProcEvent struct {
	Type EventType
	PID  int32
}

// Session trigger causes.
const (
	TriggerProcess = "process"
	TriggerCamera  = "camera"
)

// Session records one activation of the overlay, from the moment activity
// was detected until it ended.
type Session struct {
	ID        int64
	Trigger   string
	Mode      Mode
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is still open
}
