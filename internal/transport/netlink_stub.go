// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package transport

import (
	"context"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
)

// Netlink is unavailable off Linux; use the simulated peer instead.
type Netlink struct{}

func DialNetlink(protocol int, logger *logging.Logger) (*Netlink, error) {
	return nil, errors.Errorf(errors.KindUnavailable, "netlink protocol %d requires linux", protocol)
}

func (n *Netlink) Send(ctx context.Context, frame []byte) error { return ErrClosed }

func (n *Netlink) Receive(ctx context.Context) ([]byte, error) { return nil, ErrClosed }

func (n *Netlink) Close() error { return nil }
