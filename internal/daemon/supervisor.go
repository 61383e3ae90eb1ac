package daemon

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/domain"
)

// SupervisorConfig holds overlay teardown tuning.
type SupervisorConfig struct {
	StopPollInterval time.Duration // sleep between exit checks after SIGTERM
	StopRetries      int           // exit checks before escalating to SIGKILL
}

// DefaultSupervisorConfig returns the default teardown bounds: up to half a
// second of graceful wait before force-killing.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		StopPollInterval: 50 * time.Millisecond,
		StopRetries:      10,
	}
}

// Supervisor starts and stops the overlay child processes, one per enabled
// screen (or a single default child). It is driven only by the event loop,
// so it needs no locking.
type Supervisor struct {
	config   SupervisorConfig
	launcher domain.OverlayLauncher
	logger   *zap.Logger
	children []domain.OverlayChild
}

// NewSupervisor creates a new overlay supervisor.
func NewSupervisor(config SupervisorConfig, launcher domain.OverlayLauncher, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		config:   config,
		launcher: launcher,
		logger:   logger,
	}
}

// overlayArgs builds the child command line for one screen selector.
// An empty selector means the default screen.
func overlayArgs(cfg domain.MonitorConfig, screen string) []string {
	args := []string{
		"-c", cfg.Overlay.Color,
		"-b", strconv.Itoa(cfg.Overlay.Brightness),
		"-w", strconv.Itoa(cfg.Overlay.Width),
	}
	if cfg.Overlay.Fullscreen {
		args = append(args, "-f")
	}
	if screen != "" {
		args = append(args, "-s", screen)
	}
	return args
}

// Start spawns one overlay child per configured screen, or exactly one if
// none are configured. Idempotent: a second call while the first child is
// still alive does nothing. A spawn failure for one screen is logged and
// does not abort the remaining screens.
func (s *Supervisor) Start(cfg domain.MonitorConfig) {
	if len(s.children) > 0 {
		if s.firstAlive() {
			return
		}
		// Stale entries from a previous generation; reapers already ran.
		s.children = nil
	}

	screens := cfg.Screens
	if len(screens) == 0 {
		screens = []string{""}
	}

	for _, screen := range screens {
		child, err := s.launcher.Launch(overlayArgs(cfg, screen))
		if err != nil {
			s.logger.Warn("overlay spawn failed",
				zap.String("screen", screen),
				zap.Error(err))
			continue
		}
		s.children = append(s.children, child)
	}

	s.logger.Info("overlay started", zap.Int("children", len(s.children)))
}

// Stop tears down every tracked child: graceful signal first, then bounded
// exit polling, then force-kill for stragglers. The tracked set is cleared
// unconditionally; a failed signal on an already-dead child is not an error.
func (s *Supervisor) Stop() {
	if len(s.children) == 0 {
		return
	}

	for _, c := range s.children {
		if isDone(c) {
			continue
		}
		if err := c.Terminate(); err != nil {
			s.logger.Debug("terminate failed", zap.Int("pid", c.PID()), zap.Error(err))
		}
	}

	for i := 0; i < s.config.StopRetries && !s.allDone(); i++ {
		time.Sleep(s.config.StopPollInterval)
	}

	for _, c := range s.children {
		if isDone(c) {
			continue
		}
		s.logger.Warn("overlay ignored SIGTERM, killing", zap.Int("pid", c.PID()))
		if err := c.Kill(); err != nil {
			s.logger.Debug("kill failed", zap.Int("pid", c.PID()), zap.Error(err))
		}
		<-c.Done()
	}

	s.logger.Info("overlay stopped", zap.Int("children", len(s.children)))
	s.children = nil
}

// CheckAlive reports whether any overlay child is still running. When all
// are gone (e.g. the user closed the overlay by clicking it), the tracked
// set is cleared so the event loop can correct its cached active flag.
func (s *Supervisor) CheckAlive() bool {
	if len(s.children) == 0 {
		return false
	}
	for _, c := range s.children {
		if !isDone(c) {
			return true
		}
	}
	s.logger.Info("all overlay children exited externally")
	s.children = nil
	return false
}

// Running returns the number of tracked children.
func (s *Supervisor) Running() int {
	return len(s.children)
}

// PIDs returns the tracked child process ids.
func (s *Supervisor) PIDs() []int {
	pids := make([]int, 0, len(s.children))
	for _, c := range s.children {
		pids = append(pids, c.PID())
	}
	return pids
}

func (s *Supervisor) firstAlive() bool {
	return !isDone(s.children[0])
}

func (s *Supervisor) allDone() bool {
	for _, c := range s.children {
		if !isDone(c) {
			return false
		}
	}
	return true
}

func isDone(c domain.OverlayChild) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
