//go:build integration

package integration

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/daemon"
	"github.com/ringlight/ringlightd/internal/domain"
	"github.com/ringlight/ringlightd/internal/infra"
)

// chanSource stands in for the netlink connector in tests.
type chanSource struct {
	ch        chan domain.ProcEvent
	closeOnce sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan domain.ProcEvent, 64)}
}

func (s *chanSource) Events() <-chan domain.ProcEvent { return s.ch }

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

var _ = Describe("Monitor end to end", func() {
	var (
		cfg      domain.MonitorConfig
		source   *chanSource
		monitor  *daemon.Monitor
		sessions *infra.SQLiteHistory
		resolver domain.ProcessResolver
		trigger  *exec.Cmd
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		bin := writeFakeOverlay(dir)

		cfg = overlayConfig(bin)
		// The trigger process is a real `sleep`; device checks point at
		// paths that can never read as busy.
		cfg.WatchProcesses = domain.WatchList{"sleep"}
		cfg.VideoDevice = filepath.Join(dir, "no-such-device")

		var err error
		sessions, err = infra.NewSQLiteHistory(filepath.Join(dir, "history.db"))
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		source = newChanSource()
		resolver = infra.NewProcessResolver()
		probe := infra.NewV4L2Probe(cfg.VideoDevice, logger)
		scanner := infra.NewProcScanner(domain.WatchList{"no-such-process"}, cfg.VideoDevice, logger)
		launcher := infra.NewExecLauncher(cfg.OverlayBin, logger)
		supervisor := daemon.NewSupervisor(daemon.DefaultSupervisorConfig(), launcher, logger)
		monitor = daemon.NewMonitor(cfg, cfg.Mode, source, probe, scanner,
			resolver, supervisor, sessions, logger)

		trigger = exec.Command("sleep", "60")
		Expect(trigger.Start()).To(Succeed())
	})

	AfterEach(func() {
		if trigger.Process != nil {
			_ = trigger.Process.Kill()
			_, _ = trigger.Process.Wait()
		}
		_ = sessions.Close()
	})

	It("activates on a matched exec event and tears down on shutdown", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- monitor.Run(ctx) }()

		source.ch <- domain.ProcEvent{Type: domain.EventExec, PID: int32(trigger.Process.Pid)}

		// One default-screen overlay child appears.
		var pids []int
		Eventually(func() []int {
			pids = fakeOverlayPIDs()
			return pids
		}, 2*time.Second, 50*time.Millisecond).Should(HaveLen(1))

		cancel()
		Expect(<-done).To(Succeed())

		// Post-exit liveness: no surviving children.
		for _, pid := range pids {
			Eventually(func() bool {
				return resolver.IsRunning(int32(pid))
			}, 2*time.Second, 50*time.Millisecond).Should(BeFalse())
		}

		// The activation was recorded and closed.
		recorded, err := sessions.Recent(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Trigger).To(Equal(domain.TriggerProcess))
		Expect(recorded[0].EndedAt.IsZero()).To(BeFalse())
	})
})

// fakeOverlayPIDs finds running fake-overlay children by process name.
func fakeOverlayPIDs() []int {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	var pids []int
	for _, p := range procs {
		if name, _ := p.Name(); name == "fake-overlay" {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids
}
