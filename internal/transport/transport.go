// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package transport moves raw protocol frames between the agent and the
// kernel peer. It knows nothing about the frame contents.
package transport

import (
	"context"

	"grimm.is/usbwall/internal/errors"
)

// Transport delivers fixed-size frames to and from the kernel peer.
type Transport interface {
	// Send delivers one frame.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until a frame arrives or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New(errors.KindUnavailable, "transport closed")
