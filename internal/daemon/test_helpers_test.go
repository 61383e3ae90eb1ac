package daemon

import (
	"errors"
	"sync"
	"time"

	"github.com/ringlight/ringlightd/internal/domain"
)

// fakeChild implements domain.OverlayChild for testing.
type fakeChild struct {
	pid        int
	done       chan struct{}
	closeOnce  sync.Once
	terminated int
	killed     int
	ignoreTerm bool // simulates a child that ignores SIGTERM
}

func newFakeChild(pid int) *fakeChild {
	return &fakeChild{pid: pid, done: make(chan struct{})}
}

func (c *fakeChild) exit() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *fakeChild) PID() int { return c.pid }

func (c *fakeChild) Terminate() error {
	c.terminated++
	if !c.ignoreTerm {
		c.exit()
	}
	return nil
}

func (c *fakeChild) Kill() error {
	c.killed++
	c.exit()
	return nil
}

func (c *fakeChild) Done() <-chan struct{} { return c.done }

// fakeLauncher implements domain.OverlayLauncher, recording every launch.
type fakeLauncher struct {
	launches   [][]string
	children   []*fakeChild
	failOn     map[int]bool // launch index -> fail
	nextPID    int
	ignoreTerm bool
}

func (l *fakeLauncher) Launch(args []string) (domain.OverlayChild, error) {
	idx := len(l.launches)
	l.launches = append(l.launches, args)
	if l.failOn[idx] {
		return nil, errors.New("spawn failed")
	}
	l.nextPID++
	c := newFakeChild(1000 + l.nextPID)
	c.ignoreTerm = l.ignoreTerm
	l.children = append(l.children, c)
	return c, nil
}

// fakeProbe implements domain.DeviceProbe with a call counter.
type fakeProbe struct {
	busy  bool
	calls int
}

func (p *fakeProbe) Busy() bool {
	p.calls++
	return p.busy
}

// fakeScanner implements domain.HandleScanner with a call counter.
type fakeScanner struct {
	inUse bool
	calls int
}

func (s *fakeScanner) InUse() bool {
	s.calls++
	return s.inUse
}

// fakeResolver implements domain.ProcessResolver over static tables.
type fakeResolver struct {
	names    map[int32]string
	cmdlines map[int32]string
	dead     map[int32]bool
}

func (r *fakeResolver) Describe(pid int32) (string, string, error) {
	name, ok := r.names[pid]
	if !ok {
		return "", "", errors.New("no such process")
	}
	return name, r.cmdlines[pid], nil
}

func (r *fakeResolver) IsRunning(pid int32) bool {
	return !r.dead[pid]
}

// fakeStore implements domain.SessionStore, recording transitions.
type fakeStore struct {
	begun  []string // triggers
	ended  []int64
	nextID int64
}

func (s *fakeStore) Begin(trigger string, _ domain.Mode, _ time.Time) (int64, error) {
	s.begun = append(s.begun, trigger)
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) End(id int64, _ time.Time) error {
	s.ended = append(s.ended, id)
	return nil
}

func (s *fakeStore) Recent(int) ([]domain.Session, error) { return nil, nil }
func (s *fakeStore) Close() error                         { return nil }

// fakeSource implements domain.EventSource over a buffered channel.
type fakeSource struct {
	ch        chan domain.ProcEvent
	closeOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan domain.ProcEvent, 64)}
}

func (s *fakeSource) Events() <-chan domain.ProcEvent { return s.ch }

func (s *fakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}
