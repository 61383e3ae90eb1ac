package infra

import (
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ringlight/ringlightd/internal/domain"
)

// V4L2 constants (linux/videodev2.h).
const (
	// _IOWR('V', 8, struct v4l2_requestbuffers)
	vidiocReqbufs = 0xc0145608

	v4l2BufTypeVideoCapture = 1
	v4l2MemoryMmap          = 1
)

// v4l2RequestBuffers mirrors struct v4l2_requestbuffers.
type v4l2RequestBuffers struct {
	Count    uint32
	Type     uint32
	Memory   uint32
	Reserved [2]uint32
}

// V4L2Probe checks capture device activity with a zero-count buffer request.
// A driver that is streaming for another process answers EBUSY; everything
// else, including a failed open, reads as idle.
type V4L2Probe struct {
	path   string
	logger *zap.Logger
}

// NewV4L2Probe creates a probe for the given device node.
func NewV4L2Probe(path string, logger *zap.Logger) *V4L2Probe {
	return &V4L2Probe{path: path, logger: logger}
}

// Busy reports whether the device is actively streaming. The device is
// opened non-blocking, non-exclusive, and always released before returning.
func (p *V4L2Probe) Busy() bool {
	fd, err := unix.Open(p.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		p.logger.Debug("device open failed", zap.String("device", p.path), zap.Error(err))
		return false
	}
	defer unix.Close(fd)

	req := v4l2RequestBuffers{
		Type:   v4l2BufTypeVideoCapture,
		Memory: v4l2MemoryMmap,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vidiocReqbufs, uintptr(unsafe.Pointer(&req)))
	return errno == unix.EBUSY
}

// Ensure V4L2Probe implements domain.DeviceProbe.
var _ domain.DeviceProbe = (*V4L2Probe)(nil)
