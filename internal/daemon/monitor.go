package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/domain"
)

const (
	// drainLimit bounds events consumed per wake so one burst cannot
	// starve the rest of the loop.
	drainLimit = 100

	// activeWake is the loop timeout while the overlay is up: short enough
	// to promptly notice a dead child or an exited watched process.
	activeWake = 500 * time.Millisecond

	// idleWake is the safety-net timeout in event-only mode while idle;
	// events wake the loop immediately, so this only bounds staleness.
	idleWake = 30 * time.Second
)

// Monitor is the single-threaded event loop. It owns all runtime state and
// composes the event source, probes, state machine and supervisor. All
// collaborators are invoked from one goroutine; there is no shared-memory
// concurrency.
type Monitor struct {
	cfg        domain.MonitorConfig
	mode       domain.Mode // effective mode after privilege fallback
	source     domain.EventSource
	probe      domain.DeviceProbe
	scanner    domain.HandleScanner
	resolver   domain.ProcessResolver
	supervisor *Supervisor
	sessions   domain.SessionStore
	logger     *zap.Logger

	state     *ActivityState
	active    bool
	sessionID int64
}

// NewMonitor creates the event loop. source must be nil iff mode is camera.
func NewMonitor(
	cfg domain.MonitorConfig,
	mode domain.Mode,
	source domain.EventSource,
	probe domain.DeviceProbe,
	scanner domain.HandleScanner,
	resolver domain.ProcessResolver,
	supervisor *Supervisor,
	sessions domain.SessionStore,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		cfg:        cfg,
		mode:       mode,
		source:     source,
		probe:      probe,
		scanner:    scanner,
		resolver:   resolver,
		supervisor: supervisor,
		sessions:   sessions,
		logger:     logger,
		state:      NewActivityState(),
	}
}

// Run blocks until the context is canceled, then tears down the overlay and
// returns nil (clean shutdown).
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		zap.String("mode", string(m.mode)),
		zap.String("device", m.cfg.VideoDevice),
		zap.Duration("poll_interval", m.cfg.PollInterval))

	var events <-chan domain.ProcEvent
	if m.source != nil {
		events = m.source.Events()
	}

	for {
		wait := time.NewTimer(m.wakeAfter())
		select {
		case <-ctx.Done():
			wait.Stop()
			m.shutdown()
			return nil

		case ev, ok := <-events:
			wait.Stop()
			if !ok {
				m.logger.Warn("event source closed")
				events = nil
				continue
			}
			m.handleEvent(ev)
			m.drain(events)
			m.afterEvents()

		case <-wait.C:
			m.tick()
		}
	}
}

// handleEvent applies one lifecycle event to the watched set.
func (m *Monitor) handleEvent(ev domain.ProcEvent) {
	switch ev.Type {
	case domain.EventExec:
		name, cmdline, err := m.resolver.Describe(ev.PID)
		if err != nil {
			// Short-lived process; it's gone before we could look.
			return
		}
		if m.cfg.WatchProcesses.Matches(name, cmdline) && m.state.Track(ev.PID) {
			m.logger.Info("watched process started",
				zap.Int32("pid", ev.PID),
				zap.String("name", name))
		}

	case domain.EventExit:
		if m.state.Untrack(ev.PID) {
			m.logger.Info("watched process exited", zap.Int32("pid", ev.PID))
		}
	}
}

// drain consumes pending events without blocking, bounded by drainLimit,
// so bursts are fully absorbed before the transition rule is evaluated.
func (m *Monitor) drain(events <-chan domain.ProcEvent) {
	for i := 1; i < drainLimit; i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		default:
			return
		}
	}
}

// afterEvents evaluates the rule after an event burst. If the watched set
// just emptied, one confirmatory device probe runs before declaring
// inactive: the exit event carried no identity, and the camera may still be
// claimed by an unrelated consumer.
func (m *Monitor) afterEvents() {
	if m.active && !m.state.HasWatched() {
		m.state.SetDeviceBusy(m.probe.Busy(), time.Now())
	}
	m.reconcile()
}

// tick runs on each timeout wake: liveness maintenance, then mode-specific
// polling, then reconciliation.
func (m *Monitor) tick() {
	now := time.Now()

	if m.active {
		if removed := m.state.Verify(m.resolver.IsRunning); len(removed) > 0 {
			for _, pid := range removed {
				m.logger.Info("watched process gone", zap.Int32("pid", pid))
			}
		}
		// A start that spawned nothing is left alone until the next
		// detection transition; only children we actually had are healed.
		if m.supervisor.Running() > 0 && !m.supervisor.CheckAlive() {
			// Overlay died outside our control; correct the cached flag.
			// A fresh transition will respawn if activity persists.
			m.forceInactive()
		}
	}

	switch m.mode {
	case domain.ModeCamera:
		if m.pollDue(now) {
			m.state.SetDeviceBusy(m.scanner.InUse() || m.probe.Busy(), now)
		}

	case domain.ModeHybrid:
		// The event path is authoritative and free while anything is
		// tracked; polling is suppressed entirely.
		if !m.state.HasWatched() && m.pollDue(now) {
			m.state.SetDeviceBusy(m.probe.Busy() || m.scanner.InUse(), now)
		}

	case domain.ModeProcess:
		// No periodic polling; only confirm after the watched set drained
		// without a conclusive exit event.
		if m.active && !m.state.HasWatched() {
			m.state.SetDeviceBusy(m.probe.Busy(), now)
		}
	}

	m.reconcile()
}

// reconcile drives the supervisor on activity transitions.
func (m *Monitor) reconcile() {
	desired := m.state.Active()
	switch {
	case desired && !m.active:
		m.active = true
		trigger := domain.TriggerCamera
		if m.state.HasWatched() {
			trigger = domain.TriggerProcess
		}
		m.logger.Info("activity detected", zap.String("trigger", trigger))
		m.supervisor.Start(m.cfg)
		m.beginSession(trigger)

	case !desired && m.active:
		m.active = false
		m.logger.Info("activity ended")
		m.supervisor.Stop()
		m.endSession()
	}
}

// forceInactive clears the cached active flag without a stop: the children
// are already gone. The busy flag is cleared without stamping a probe, so
// the next real poll is not deferred.
func (m *Monitor) forceInactive() {
	m.active = false
	m.state.ClearDeviceBusy()
	m.endSession()
}

// wakeAfter picks the loop timeout for the next iteration.
func (m *Monitor) wakeAfter() time.Duration {
	if m.active {
		return activeWake
	}
	switch m.mode {
	case domain.ModeCamera, domain.ModeHybrid:
		return m.cfg.PollInterval
	default:
		return idleWake
	}
}

// pollDue rate-limits probes to the configured interval even while the
// loop itself wakes faster.
func (m *Monitor) pollDue(now time.Time) bool {
	return now.Sub(m.state.LastProbe()) >= m.cfg.PollInterval
}

func (m *Monitor) beginSession(trigger string) {
	id, err := m.sessions.Begin(trigger, m.mode, time.Now())
	if err != nil {
		m.logger.Warn("failed to record session start", zap.Error(err))
		return
	}
	m.sessionID = id
}

func (m *Monitor) endSession() {
	if m.sessionID == 0 {
		return
	}
	if err := m.sessions.End(m.sessionID, time.Now()); err != nil {
		m.logger.Warn("failed to record session end", zap.Error(err))
	}
	m.sessionID = 0
}

// shutdown tears everything down in response to a termination signal.
func (m *Monitor) shutdown() {
	m.logger.Info("monitor stopping")
	m.supervisor.Stop()
	m.endSession()
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.logger.Debug("event source close failed", zap.Error(err))
		}
	}
}
