// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"time"

	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/nlm"
)

const (
	// DefaultDatabase is where the rule store lives unless configured.
	DefaultDatabase = "/var/lib/usbwall/rules.db"
	// DefaultPIDFile is where the daemon records its process id.
	DefaultPIDFile = "/run/usbwall.pid"
)

// Config is the top-level structure of the agent configuration file. Rule
// and simple rule blocks form the policy that `usbwall apply` installs.
type Config struct {
	// Netlink protocol number the kernel module registered.
	// @default: 31
	NetlinkProtocol int `hcl:"netlink_protocol,optional" json:"netlink_protocol,omitempty"`
	// How long to wait for the kernel's acknowledgement.
	// @default: "5s"
	AckTimeout string `hcl:"ack_timeout,optional" json:"ack_timeout,omitempty"`
	// How often the queue is polled while waiting.
	// @default: "10ms"
	PollInterval string `hcl:"poll_interval,optional" json:"poll_interval,omitempty"`
	// SQLite file recording installed rules.
	Database string `hcl:"database,optional" json:"database,omitempty"`
	// Verdict for operations no rule matches: "allow" or "drop". Empty
	// leaves the kernel's current setting.
	DefaultBehavior string `hcl:"default_behavior,optional" json:"default_behavior,omitempty"`
	// Where `usbwall dump` writes the installed policy.
	// @default: "config_dmp"
	DumpFile string `hcl:"dump_file,optional" json:"dump_file,omitempty"`
	// PID file written by `usbwall daemon`, read by reload and stop.
	PIDFile string `hcl:"pid_file,optional" json:"pid_file,omitempty"`

	Log     *LogConfig     `hcl:"log,block" json:"log,omitempty"`
	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty"`

	Rules       []RuleBlock       `hcl:"rule,block" json:"rule,omitempty"`
	SimpleRules []SimpleRuleBlock `hcl:"simple_rule,block" json:"simple_rule,omitempty"`
}

// LogConfig configures the agent's logger.
type LogConfig struct {
	Level  string                `hcl:"level,optional" json:"level,omitempty"`
	JSON   bool                  `hcl:"json,optional" json:"json,omitempty"`
	Syslog *logging.SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// MetricsConfig enables the HTTP status endpoint.
type MetricsConfig struct {
	// Address for /metrics and the status API, e.g. "127.0.0.1:9464".
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// DefaultConfig returns a config with every optional setting filled in and
// no rules.
func DefaultConfig() *Config {
	return &Config{
		NetlinkProtocol: nlm.Protocol,
		AckTimeout:      "5s",
		PollInterval:    "10ms",
		Database:        DefaultDatabase,
		DumpFile:        nlm.DumpFileName,
		PIDFile:         DefaultPIDFile,
		Log:             &LogConfig{Level: "info"},
	}
}

// applyDefaults fills unset settings from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.NetlinkProtocol == 0 {
		c.NetlinkProtocol = def.NetlinkProtocol
	}
	if c.AckTimeout == "" {
		c.AckTimeout = def.AckTimeout
	}
	if c.PollInterval == "" {
		c.PollInterval = def.PollInterval
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.DumpFile == "" {
		c.DumpFile = def.DumpFile
	}
	if c.PIDFile == "" {
		c.PIDFile = def.PIDFile
	}
	if c.Log == nil {
		c.Log = def.Log
	} else if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// AckTimeoutDuration returns the parsed ack_timeout. Call Validate first.
func (c *Config) AckTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AckTimeout)
	return d
}

// PollIntervalDuration returns the parsed poll_interval. Call Validate first.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// LoggingConfig translates the log block for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Log == nil {
		return cfg
	}
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.JSON = c.Log.JSON
	return cfg
}
