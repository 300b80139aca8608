// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows && !plan9

package cmd

import (
	"io"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
)

func dialSyslog(cfg logging.SyslogConfig) (io.WriteCloser, error) {
	w, err := logging.NewSyslogWriter(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to set up syslog")
	}
	return w, nil
}
