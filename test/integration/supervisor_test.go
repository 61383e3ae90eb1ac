//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/daemon"
	"github.com/ringlight/ringlightd/internal/domain"
	"github.com/ringlight/ringlightd/internal/infra"
)

// writeFakeOverlay creates a script that ignores its overlay arguments,
// stays alive, and exits cleanly on SIGTERM.
func writeFakeOverlay(dir string) string {
	path := filepath.Join(dir, "fake-overlay")
	script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n"
	Expect(os.WriteFile(path, []byte(script), 0o755)).To(Succeed())
	return path
}

func overlayConfig(bin string, screens ...string) domain.MonitorConfig {
	return domain.MonitorConfig{
		Mode:           domain.ModeHybrid,
		VideoDevice:    "/dev/null",
		PollInterval:   200 * time.Millisecond,
		WatchProcesses: domain.WatchList{"no-such-process"},
		Screens:        screens,
		Overlay: domain.OverlayConfig{
			Color:      "FFFFFF",
			Brightness: 100,
			Width:      80,
		},
		OverlayBin: bin,
	}
}

var _ = Describe("Overlay supervision", func() {
	var (
		supervisor *daemon.Supervisor
		resolver   domain.ProcessResolver
		cfg        domain.MonitorConfig
	)

	BeforeEach(func() {
		bin := writeFakeOverlay(GinkgoT().TempDir())
		launcher := infra.NewExecLauncher(bin, zap.NewNop())
		supervisor = daemon.NewSupervisor(daemon.DefaultSupervisorConfig(), launcher, zap.NewNop())
		resolver = infra.NewProcessResolver()
		cfg = overlayConfig(bin, "0", "1")
	})

	AfterEach(func() {
		supervisor.Stop()
	})

	It("spawns one child per screen and tears them all down", func() {
		supervisor.Start(cfg)
		Expect(supervisor.Running()).To(Equal(2))

		pids := supervisor.PIDs()
		for _, pid := range pids {
			Expect(resolver.IsRunning(int32(pid))).To(BeTrue())
		}

		supervisor.Stop()
		Expect(supervisor.Running()).To(BeZero())
		for _, pid := range pids {
			Eventually(func() bool {
				return resolver.IsRunning(int32(pid))
			}, 2*time.Second, 50*time.Millisecond).Should(BeFalse())
		}
	})

	It("does not spawn a second generation while the first is alive", func() {
		supervisor.Start(cfg)
		first := supervisor.PIDs()

		supervisor.Start(cfg)
		Expect(supervisor.PIDs()).To(Equal(first))
	})

	It("notices children dying outside its control", func() {
		supervisor.Start(cfg)
		Expect(supervisor.CheckAlive()).To(BeTrue())

		pids := supervisor.PIDs()
		for _, pid := range pids {
			proc, err := os.FindProcess(pid)
			Expect(err).NotTo(HaveOccurred())
			Expect(proc.Kill()).To(Succeed())
		}

		Eventually(supervisor.CheckAlive, 2*time.Second, 50*time.Millisecond).Should(BeFalse())
		Expect(supervisor.Running()).To(BeZero())
	})
})
