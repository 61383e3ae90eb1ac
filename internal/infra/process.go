package infra

import (
	"fmt"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ringlight/ringlightd/internal/domain"
)

// ProcessResolverImpl implements domain.ProcessResolver using gopsutil.
type ProcessResolverImpl struct{}

// NewProcessResolver creates a new process resolver.
func NewProcessResolver() domain.ProcessResolver {
	return &ProcessResolverImpl{}
}

// Describe returns the short name and full command line for a pid.
// Either may be empty; an error is returned only when both are unavailable
// (typically because the process already exited).
func (r *ProcessResolverImpl) Describe(pid int32) (string, string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", "", err
	}

	name, _ := p.Name()
	cmdline, _ := p.Cmdline()
	if name == "" && cmdline == "" {
		return "", "", fmt.Errorf("pid %d: no name or cmdline", pid)
	}
	return name, cmdline, nil
}

// IsRunning checks if a pid exists and is running.
func (r *ProcessResolverImpl) IsRunning(pid int32) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Ensure ProcessResolverImpl implements domain.ProcessResolver.
var _ domain.ProcessResolver = (*ProcessResolverImpl)(nil)
