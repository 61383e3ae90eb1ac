// Package daemon implements the activity-detection monitor: the state
// machine, the overlay supervisor, and the event loop that composes them.
package daemon

import (
	"sort"
	"time"
)

// ActivityState fuses process lifecycle events and device probes into a
// single active/inactive decision. It is owned exclusively by the event
// loop; no locking.
//
// Transition rule, uniform across modes:
//
//	active = (watched set non-empty) OR (device busy per most recent probe)
type ActivityState struct {
	watched    map[int32]struct{}
	deviceBusy bool
	lastProbe  time.Time
}

// NewActivityState returns an inactive state with nothing tracked.
func NewActivityState() *ActivityState {
	return &ActivityState{watched: make(map[int32]struct{})}
}

// Track adds a pid that matched a watch pattern on exec. Returns false if
// the pid was already tracked.
func (s *ActivityState) Track(pid int32) bool {
	if _, ok := s.watched[pid]; ok {
		return false
	}
	s.watched[pid] = struct{}{}
	return true
}

// Untrack removes a pid on its exit event. Exit events carry no identity,
// so removal is by pid only. Returns false if the pid was not tracked.
func (s *ActivityState) Untrack(pid int32) bool {
	if _, ok := s.watched[pid]; !ok {
		return false
	}
	delete(s.watched, pid)
	return true
}

// HasWatched reports whether any watched process is still tracked.
func (s *ActivityState) HasWatched() bool {
	return len(s.watched) > 0
}

// WatchedPIDs returns the tracked pids in ascending order.
func (s *ActivityState) WatchedPIDs() []int32 {
	pids := make([]int32, 0, len(s.watched))
	for pid := range s.watched {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// Verify drops tracked pids that fail the liveness check and returns the
// removed ones. This catches exit events the source never delivered.
func (s *ActivityState) Verify(isRunning func(int32) bool) []int32 {
	var removed []int32
	for pid := range s.watched {
		if !isRunning(pid) {
			delete(s.watched, pid)
			removed = append(removed, pid)
		}
	}
	return removed
}

// SetDeviceBusy records the outcome of a device probe.
func (s *ActivityState) SetDeviceBusy(busy bool, at time.Time) {
	s.deviceBusy = busy
	s.lastProbe = at
}

// ClearDeviceBusy resets the busy flag without recording a probe: the
// probe schedule stays keyed to the last time the device was really asked.
func (s *ActivityState) ClearDeviceBusy() {
	s.deviceBusy = false
}

// DeviceBusy returns the most recent probe outcome.
func (s *ActivityState) DeviceBusy() bool {
	return s.deviceBusy
}

// LastProbe returns when the device was last probed (zero if never).
func (s *ActivityState) LastProbe() time.Time {
	return s.lastProbe
}

// Active evaluates the transition rule.
func (s *ActivityState) Active() bool {
	return len(s.watched) > 0 || s.deviceBusy
}
