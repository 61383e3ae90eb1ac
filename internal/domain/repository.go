package domain

import "time"

// EventSource delivers kernel process lifecycle events.
// Implementation: netlink proc connector (Linux, CAP_NET_ADMIN).
type EventSource interface {
	// Events returns the delivery channel. The channel is closed when the
	// source shuts down.
	Events() <-chan ProcEvent

	// Close releases the subscription and stops delivery.
	Close() error
}

// DeviceProbe checks whether the capture device is actively streaming.
// The check is transient and non-exclusive: it never contends with the
// real consumer.
type DeviceProbe interface {
	// Busy reports whether the device is claimed by another process.
	// Any failure (including open failure) reads as not busy.
	Busy() bool
}

// HandleScanner detects device usage without kernel event privileges by
// walking other processes' names and open file descriptors.
type HandleScanner interface {
	// InUse reports whether any live foreign process matches a watch
	// pattern or holds the device open.
	InUse() bool
}

// ProcessResolver looks up identity and liveness of arbitrary pids.
// Implementation: uses gopsutil for cross-platform support.
type ProcessResolver interface {
	// Describe returns the short name and full command line for a pid.
	Describe(pid int32) (name, cmdline string, err error)

	// IsRunning checks if a pid exists and is running (signal-0 style).
	IsRunning(pid int32) bool
}

// OverlayChild is one spawned overlay process under supervision.
type OverlayChild interface {
	// PID returns the child's process id.
	PID() int

	// Terminate sends the graceful termination signal.
	Terminate() error

	// Kill forcibly terminates the child.
	Kill() error

	// Done is closed once the child has exited and been reaped.
	Done() <-chan struct{}
}

// OverlayLauncher spawns overlay child processes.
type OverlayLauncher interface {
	// Launch starts one overlay process with the given arguments.
	Launch(args []string) (OverlayChild, error)
}

// SessionStore persists activation history.
// Implementation: SQLite file; a no-op store is used when persistence is
// unavailable.
type SessionStore interface {
	// Begin records the start of an activation and returns its id.
	Begin(trigger string, mode Mode, at time.Time) (int64, error)

	// End closes an open activation.
	End(id int64, at time.Time) error

	// Recent returns up to n sessions, newest first.
	Recent(n int) ([]Session, error)

	// Close releases the underlying storage.
	Close() error
}
