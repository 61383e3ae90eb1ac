package infra

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ringlight/ringlightd/internal/domain"
)

// ProcScanner detects camera activity without kernel event privileges by
// walking all live processes. The name check runs first because it is cheap;
// the descriptor table is only enumerated for non-matching processes, and
// the whole scan short-circuits on the first hit.
type ProcScanner struct {
	patterns   domain.WatchList
	devicePath string // canonicalized device node
	self       int32
	logger     *zap.Logger
}

// NewProcScanner creates a scanner for the given patterns and device node.
// The device path is resolved through symlinks once, up front.
func NewProcScanner(patterns domain.WatchList, device string, logger *zap.Logger) *ProcScanner {
	canonical, err := filepath.EvalSymlinks(device)
	if err != nil {
		canonical = device
	}
	return &ProcScanner{
		patterns:   patterns,
		devicePath: canonical,
		self:       int32(os.Getpid()),
		logger:     logger,
	}
}

// InUse reports whether any live foreign process matches a watch pattern or
// holds the device node open.
func (s *ProcScanner) InUse() bool {
	procs, err := process.Processes()
	if err != nil {
		s.logger.Debug("process enumeration failed", zap.Error(err))
		return false
	}

	for _, p := range procs {
		if p.Pid == s.self {
			continue
		}

		// Processes exit mid-scan; lookup failures are routine.
		name, _ := p.Name()
		cmdline, _ := p.Cmdline()
		if s.patterns.Matches(name, cmdline) {
			s.logger.Debug("watched process found",
				zap.Int32("pid", p.Pid),
				zap.String("name", name))
			return true
		}

		files, err := p.OpenFiles()
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Path == s.devicePath {
				s.logger.Debug("device held open",
					zap.Int32("pid", p.Pid),
					zap.String("name", name))
				return true
			}
		}
	}
	return false
}

// Ensure ProcScanner implements domain.HandleScanner.
var _ domain.HandleScanner = (*ProcScanner)(nil)
