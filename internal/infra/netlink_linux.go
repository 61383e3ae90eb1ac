// Package infra implements infrastructure concerns (event source, device
// probe, handle scanner, overlay launcher, session store).
package infra

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ringlight/ringlightd/internal/domain"
)

// ErrNotPermitted is returned when the proc connector subscription is
// denied. Process mode needs CAP_NET_ADMIN; hybrid mode falls back to
// polling instead.
var ErrNotPermitted = errors.New("proc connector requires CAP_NET_ADMIN")

// Proc connector protocol constants (linux/cn_proc.h, linux/connector.h).
const (
	cnIdxProc         = 0x1
	cnValProc         = 0x1
	procCnMcastListen = 0x1

	procEventExec = 0x00000002
	procEventExit = 0x80000000

	nlmsgHdrLen = 16
	cnMsgLen    = 20
	// proc_event fixed header before the per-event union: what, cpu, timestamp.
	procEventHdrLen = 16
)

// ProcConnector subscribes to kernel process exec/exit notifications over a
// netlink connector socket. A single reader goroutine owns the socket and
// feeds the event channel.
type ProcConnector struct {
	fd     int
	events chan domain.ProcEvent
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewProcConnector opens the netlink socket, binds to the proc connector
// multicast group and subscribes. Permission failures are reported as
// ErrNotPermitted.
func NewProcConnector(logger *zap.Logger) (*ProcConnector, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, wrapNetlinkErr("netlink socket", err)
	}

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cnIdxProc,
		Pid:    uint32(os.Getpid()),
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, wrapNetlinkErr("netlink bind", err)
	}

	if err := sendMcastOp(fd, procCnMcastListen); err != nil {
		unix.Close(fd)
		return nil, wrapNetlinkErr("netlink subscribe", err)
	}

	c := &ProcConnector{
		fd:     fd,
		events: make(chan domain.ProcEvent, 256),
		logger: logger,
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the delivery channel, closed when the connector shuts down.
func (c *ProcConnector) Events() <-chan domain.ProcEvent {
	return c.events
}

// Close releases the socket and stops the reader.
func (c *ProcConnector) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = unix.Close(c.fd)
	})
	return err
}

func (c *ProcConnector) readLoop() {
	defer close(c.events)

	buf := make([]byte, 8192)
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case <-c.closed:
				// Expected: socket closed under us.
			default:
				c.logger.Warn("netlink receive failed", zap.Error(err))
			}
			return
		}

		for _, ev := range parseProcEvents(buf[:n]) {
			select {
			case c.events <- ev:
			case <-c.closed:
				return
			default:
				// Consumer is behind; dropped events are recovered by the
				// watched-pid liveness check.
				c.logger.Debug("event channel full, dropping", zap.Int32("pid", ev.PID))
			}
		}
	}
}

// parseProcEvents walks the netlink messages in one datagram and extracts
// exec/exit events. Other proc connector events (fork, uid, ...) are skipped.
func parseProcEvents(buf []byte) []domain.ProcEvent {
	var out []domain.ProcEvent
	ne := binary.NativeEndian

	off := 0
	for off+nlmsgHdrLen <= len(buf) {
		msgLen := int(ne.Uint32(buf[off:]))
		if msgLen < nlmsgHdrLen || off+msgLen > len(buf) {
			break
		}
		msgType := ne.Uint16(buf[off+4:])
		if msgType == unix.NLMSG_DONE {
			payload := buf[off+nlmsgHdrLen : off+msgLen]
			if ev, ok := decodeProcEvent(payload); ok {
				out = append(out, ev)
			}
		}
		// Advance to the next 4-byte aligned message.
		off += (msgLen + unix.NLMSG_ALIGNTO - 1) &^ (unix.NLMSG_ALIGNTO - 1)
	}
	return out
}

// decodeProcEvent extracts the pid from a cn_msg payload carrying a
// proc_event. The pid sits at the start of the per-event union, right after
// the what/cpu/timestamp header.
func decodeProcEvent(payload []byte) (domain.ProcEvent, bool) {
	ne := binary.NativeEndian
	if len(payload) < cnMsgLen+procEventHdrLen+4 {
		return domain.ProcEvent{}, false
	}
	idx := ne.Uint32(payload[0:])
	val := ne.Uint32(payload[4:])
	if idx != cnIdxProc || val != cnValProc {
		return domain.ProcEvent{}, false
	}

	ev := payload[cnMsgLen:]
	what := ne.Uint32(ev[0:])
	pid := int32(ne.Uint32(ev[procEventHdrLen:]))

	switch what {
	case procEventExec:
		return domain.ProcEvent{Type: domain.EventExec, PID: pid}, true
	case procEventExit:
		return domain.ProcEvent{Type: domain.EventExit, PID: pid}, true
	}
	return domain.ProcEvent{}, false
}

// sendMcastOp sends a PROC_CN_MCAST_* control message to the kernel.
func sendMcastOp(fd int, op uint32) error {
	ne := binary.NativeEndian
	msg := make([]byte, nlmsgHdrLen+cnMsgLen+4)

	// nlmsghdr
	ne.PutUint32(msg[0:], uint32(len(msg)))         // nlmsg_len
	ne.PutUint16(msg[4:], unix.NLMSG_DONE)          // nlmsg_type
	ne.PutUint16(msg[6:], 0)                        // nlmsg_flags
	ne.PutUint32(msg[8:], 0)                        // nlmsg_seq
	ne.PutUint32(msg[12:], uint32(os.Getpid()))     // nlmsg_pid
	// cn_msg
	ne.PutUint32(msg[16:], cnIdxProc)               // id.idx
	ne.PutUint32(msg[20:], cnValProc)               // id.val
	ne.PutUint16(msg[32:], 4)                       // len
	// op
	ne.PutUint32(msg[36:], op)

	return unix.Sendto(fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

func wrapNetlinkErr(op string, err error) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return fmt.Errorf("%s: %w", op, ErrNotPermitted)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ensure ProcConnector implements domain.EventSource.
var _ domain.EventSource = (*ProcConnector)(nil)
