// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows || plan9

package cmd

import (
	"io"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
)

func dialSyslog(cfg logging.SyslogConfig) (io.WriteCloser, error) {
	return nil, errors.New(errors.KindUnavailable, "syslog is not supported on this platform")
}
