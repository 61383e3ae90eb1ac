package infra

import (
	"os/exec"
	"syscall"

	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/domain"
)

// ExecLauncher spawns overlay children as detached OS processes. Every
// child gets a reaper goroutine parked in Wait, so no exit is ever left
// as a zombie and the done channel doubles as a liveness signal.
type ExecLauncher struct {
	bin    string
	logger *zap.Logger
}

// NewExecLauncher creates a launcher for the given overlay executable.
func NewExecLauncher(bin string, logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{bin: bin, logger: logger}
}

// Launch starts one overlay process. The child shares no stdio with the
// daemon; communication is signals and exit status only.
func (l *ExecLauncher) Launch(args []string) (domain.OverlayChild, error) {
	cmd := exec.Command(l.bin, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	child := &execChild{cmd: cmd, done: make(chan struct{})}
	go func() {
		// Reap regardless of how the child ends.
		_ = cmd.Wait()
		close(child.done)
	}()

	l.logger.Debug("overlay spawned",
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", args))
	return child, nil
}

type execChild struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (c *execChild) PID() int {
	return c.cmd.Process.Pid
}

func (c *execChild) Terminate() error {
	return c.cmd.Process.Signal(syscall.SIGTERM)
}

func (c *execChild) Kill() error {
	return c.cmd.Process.Kill()
}

func (c *execChild) Done() <-chan struct{} {
	return c.done
}

// Ensure ExecLauncher implements domain.OverlayLauncher.
var _ domain.OverlayLauncher = (*ExecLauncher)(nil)
