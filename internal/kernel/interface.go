// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package kernel models the usbfilter kernel module as seen from userspace.
// The real module is reached over netlink (see package transport); SimPeer
// is a stateful in-memory stand-in used by tests and the -simulate mode.
package kernel

import "grimm.is/usbwall/internal/rule"

// Enforcer decides the verdict for a USB operation.
type Enforcer interface {
	Check(e rule.Event) rule.Action
}

// State is a snapshot of the filter's global switches.
type State struct {
	Enabled  bool
	Behavior rule.Action
	Sessions int
	Rules    int
	Simple   int
}
