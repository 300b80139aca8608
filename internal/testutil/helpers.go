// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"io"
	"os"
	"testing"

	"grimm.is/usbwall/internal/logging"
)

// RequireVM skips the test unless USBWALL_VM_TEST is set. Tests that need
// the usbfilter kernel module (a real netlink peer) run only in that
// environment.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("USBWALL_VM_TEST") == "" {
		t.Skip("Skipping test: requires USBWALL_VM_TEST environment")
	}
}

// Logger returns a logger that discards output unless USBWALL_TEST_LOG is set.
func Logger(t *testing.T) *logging.Logger {
	t.Helper()
	if os.Getenv("USBWALL_TEST_LOG") != "" {
		return logging.New(logging.Config{Level: logging.LevelDebug, Output: os.Stderr})
	}
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}
