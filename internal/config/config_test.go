// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/rule"
)

const sample = `
netlink_protocol = 31
ack_timeout      = "2s"
default_behavior = "drop"
database         = "/tmp/usbwall.db"

log {
  level = "debug"
  json  = true
}

metrics {
  listen = "127.0.0.1:9464"
}

rule "blockdev" {
  action = "drop"
  device {
    busnum  = 1
    devnum  = 5
    product = "Flash Disk"
  }
}

rule "no-bulk-out" {
  action = "drop"
  process {
    comm = "dd"
  }
  packet {
    type      = "bulk"
    direction = "out"
  }
  module {
    name = "lum_stack"
  }
}

simple_rule "udev" {
  action = "allow"
  kind   = "comm"
  comm   = ["systemd-udevd", "modprobe"]
}

simple_rule "admins" {
  action = "allow"
  kind   = "pgid"
  pgid   = [1000, 1001]
}
`

func TestLoadBytes_Sample(t *testing.T) {
	cfg, err := LoadBytes("usbwall.hcl", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 31, cfg.NetlinkProtocol)
	assert.Equal(t, 2*time.Second, cfg.AckTimeoutDuration())
	assert.Equal(t, 10*time.Millisecond, cfg.PollIntervalDuration(), "default applied")
	assert.Equal(t, "config_dmp", cfg.DumpFile)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)

	b, ok := cfg.Behavior()
	assert.True(t, ok)
	assert.Equal(t, rule.Drop, b)

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSON)

	policies, err := cfg.Policies()
	require.NoError(t, err)
	require.Len(t, policies, 4)

	blockdev := policies[0].(rule.Rule)
	assert.True(t, blockdev.Criteria.Device.Valid)
	assert.False(t, blockdev.Criteria.Process.Valid)
	assert.Equal(t, "Flash Disk", blockdev.Criteria.Device.Product)

	noBulk := policies[1].(rule.Rule)
	assert.Equal(t, rule.TransferBulk, noBulk.Criteria.Packet.Type)
	assert.Equal(t, rule.DirOut, noBulk.Criteria.Packet.Direction)
	assert.Equal(t, "lum_stack", noBulk.Criteria.Module.Name)

	udev := policies[2].(rule.SimpleRule)
	assert.Equal(t, rule.SimpleComm, udev.Kind)
	assert.Equal(t, []string{"systemd-udevd", "modprobe"}, udev.Comms)

	admins := policies[3].(rule.SimpleRule)
	assert.Equal(t, []int32{1000, 1001}, admins.PGIDs)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 31, cfg.NetlinkProtocol)
	assert.Equal(t, 5*time.Second, cfg.AckTimeoutDuration())
	_, ok := cfg.Behavior()
	assert.False(t, ok)
}

func TestLoadBytes_Empty(t *testing.T) {
	cfg, err := LoadBytes("empty.hcl", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Database, cfg.Database)
	assert.Empty(t, cfg.Rules)
}

func TestLoadBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind errors.Kind
	}{
		{"syntax", `rule "x" {`, errors.KindValidation},
		{"unknown attribute", `colour = "red"`, errors.KindValidation},
		{"bad timeout", `ack_timeout = "soon"`, errors.KindValidation},
		{"negative poll", `poll_interval = "-1s"`, errors.KindValidation},
		{"bad behavior", `default_behavior = "maybe"`, errors.KindValidation},
		{"protocol range", `netlink_protocol = 40`, errors.KindValidation},
		{"rule without tables", `
rule "empty" {
  action = "drop"
}`, errors.KindValidation},
		{"bad action", `
rule "x" {
  action = "reject"
  device { busnum = 1 }
}`, errors.KindValidation},
		{"bad transfer", `
rule "x" {
  action = "drop"
  packet {
    type      = "burst"
    direction = "in"
  }
}`, errors.KindValidation},
		{"simple kind mismatch", `
simple_rule "x" {
  action = "allow"
  kind   = "pgid"
  comm   = ["udevd"]
}`, errors.KindValidation},
		{"duplicate rule", `
rule "x" {
  action = "drop"
  device { busnum = 1 }
}
rule "x" {
  action = "allow"
  device { busnum = 2 }
}`, errors.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("test.hcl", []byte(tt.src))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.GetKind(err))
		})
	}
}

func TestLoadBytes_SameNameAcrossKinds(t *testing.T) {
	src := `
rule "shared" {
  action = "drop"
  device { busnum = 1 }
}
simple_rule "shared" {
  action = "allow"
  kind   = "pgid"
  pgid   = [7]
}`
	_, err := LoadBytes("test.hcl", []byte(src))
	assert.NoError(t, err)
}

func TestLoad_NoExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_dmp")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}
