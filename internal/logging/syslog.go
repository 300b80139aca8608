// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows && !plan9

package logging

import (
	"fmt"
	"log/syslog"
	"net"
	"strconv"
)

// NewSyslogWriter dials the configured syslog server. Zero-valued port,
// protocol and tag fall back to the defaults.
func NewSyslogWriter(cfg SyslogConfig) (*syslog.Writer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	def := DefaultSyslogConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Protocol == "" {
		cfg.Protocol = def.Protocol
	}
	if cfg.Tag == "" {
		cfg.Tag = def.Tag
	}
	if cfg.Facility < 0 || cfg.Facility > 23 {
		return nil, fmt.Errorf("invalid syslog facility %d", cfg.Facility)
	}

	prio := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	w, err := syslog.Dial(cfg.Protocol, addr, prio, cfg.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog %s: %w", addr, err)
	}
	return w, nil
}
