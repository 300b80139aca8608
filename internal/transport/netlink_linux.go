// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package transport

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
)

// receivePoll bounds each blocking read so a cancelled context is noticed.
const receivePoll = 250 * time.Millisecond

// Netlink is a Transport over a raw netlink socket bound to the kernel
// module's protocol number.
type Netlink struct {
	conn   *netlink.Conn
	logger *logging.Logger

	mu      sync.Mutex
	pending [][]byte
	closed  bool
}

// DialNetlink opens a netlink socket for protocol.
func DialNetlink(protocol int, logger *logging.Logger) (*Netlink, error) {
	conn, err := netlink.Dial(protocol, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "failed to open netlink protocol %d (is the usbfilter module loaded?)", protocol)
	}
	if logger == nil {
		logger = logging.WithComponent("netlink")
	}
	return &Netlink{conn: conn, logger: logger}, nil
}

// Send writes frame as the payload of one netlink message addressed to the
// kernel.
func (n *Netlink) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := n.conn.SetWriteDeadline(deadline); err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to set write deadline")
		}
	}

	msg := netlink.Message{
		Header: netlink.Header{Flags: netlink.Request},
		Data:   frame,
	}
	if _, err := n.conn.Send(msg); err != nil {
		if n.isClosed() {
			return ErrClosed
		}
		return errors.Wrap(err, errors.KindUnavailable, "netlink send failed")
	}
	return nil
}

// Receive returns the payload of the next netlink message. A single read
// may yield several messages; the extras are handed out on later calls.
func (n *Netlink) Receive(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := n.popPending(); ok {
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n.isClosed() {
			return nil, ErrClosed
		}

		if err := n.conn.SetReadDeadline(time.Now().Add(receivePoll)); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to set read deadline")
		}
		msgs, err := n.conn.Receive()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, unix.ENOBUFS) {
				// The socket buffer overflowed and the kernel dropped
				// messages; keep reading what is still there.
				n.logger.Warn("Netlink receive buffer overrun, messages were lost")
				continue
			}
			if n.isClosed() {
				return nil, ErrClosed
			}
			return nil, errors.Wrap(err, errors.KindUnavailable, "netlink receive failed")
		}

		n.mu.Lock()
		for _, m := range msgs {
			if m.Header.Type == netlink.Error || m.Header.Type == netlink.Done {
				continue
			}
			n.pending = append(n.pending, m.Data)
		}
		n.mu.Unlock()
	}
}

// Close releases the socket. Blocked receivers return ErrClosed.
func (n *Netlink) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	return n.conn.Close()
}

func (n *Netlink) popPending() ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pending) == 0 {
		return nil, false
	}
	frame := n.pending[0]
	n.pending = n.pending[1:]
	return frame, true
}

func (n *Netlink) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var opErr *netlink.OpError
	return errors.As(err, &opErr) && opErr.Timeout()
}
