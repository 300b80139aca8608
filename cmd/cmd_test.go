// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/usbwall/internal/config"
	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

const testPolicy = `
rule "blockdev" {
  action = "drop"
  device {
    busnum = 1
    devnum = 5
  }
}

simple_rule "udev" {
  action = "allow"
  kind   = "comm"
  comm   = ["systemd-udevd"]
}
`

// simOptions writes a config with its own database and dump file.
func simOptions(t *testing.T, extra string) (Options, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	src := fmt.Sprintf("database = %q\ndump_file = %q\npid_file = %q\nlog {\n  level = \"error\"\n}\n%s",
		filepath.Join(dir, "rules.db"), filepath.Join(dir, "config_dmp"), filepath.Join(dir, "usbwall.pid"), extra)
	path := filepath.Join(dir, "usbwall.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	var out bytes.Buffer
	return Options{ConfigPath: path, Simulate: true, Stdout: &out}, &out
}

func TestRunInit(t *testing.T) {
	opts, out := simOptions(t, "")
	require.NoError(t, RunInit(context.Background(), opts))
	assert.Contains(t, out.String(), "Session ")
}

func TestRunApplyDumpDel(t *testing.T) {
	opts, out := simOptions(t, testPolicy)
	ctx := context.Background()

	require.NoError(t, RunApply(ctx, opts, ""))
	assert.Contains(t, out.String(), "Applied 2 rules.")

	// A later session sees the rules through the store.
	require.NoError(t, RunDump(ctx, opts, "", "hcl"))
	cfg, err := config.Load(opts.ConfigPath)
	require.NoError(t, err)
	dumped, err := config.LoadPolicies(cfg.DumpFile)
	require.NoError(t, err)
	require.Len(t, dumped, 2)
	assert.Equal(t, "blockdev", dumped[0].PolicyName())
	assert.Equal(t, rule.Drop, dumped[0].PolicyAction())

	require.NoError(t, RunDel(ctx, opts, "rule", "blockdev"))
	out.Reset()
	require.NoError(t, RunSync(ctx, opts))
	assert.Contains(t, out.String(), "1 rules installed.")
	assert.NotContains(t, out.String(), "blockdev")
}

func TestRunApply_PolicyFile(t *testing.T) {
	opts, _ := simOptions(t, "")
	policy := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policy, []byte(`
simple_rules:
  - name: admins
    action: allow
    kind: pgid
    pgid: [1000]
`), 0o600))

	require.NoError(t, RunApply(context.Background(), opts, policy))

	var out bytes.Buffer
	opts.Stdout = &out
	require.NoError(t, RunDump(context.Background(), opts, "-", "yaml"))
	assert.Contains(t, out.String(), "name: admins")
}

func TestRunDel_Errors(t *testing.T) {
	opts, _ := simOptions(t, "")
	ctx := context.Background()

	err := RunDel(ctx, opts, "table", "x")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = RunDel(ctx, opts, "rule", "missing")
	assert.Equal(t, errors.KindRejected, errors.GetKind(err))
}

func TestRunBehaviorAndSwitches(t *testing.T) {
	opts, out := simOptions(t, "")
	ctx := context.Background()

	require.NoError(t, RunBehavior(ctx, opts, "drop"))
	assert.Contains(t, out.String(), "Default behavior set to drop.")
	assert.Error(t, RunBehavior(ctx, opts, "maybe"))

	require.NoError(t, RunDisable(ctx, opts))
	require.NoError(t, RunEnable(ctx, opts))
	assert.Contains(t, out.String(), "Filtering enabled.")
}

func TestRunDump_UnknownFormat(t *testing.T) {
	opts, _ := simOptions(t, "")
	err := RunDump(context.Background(), opts, "-", "xml")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestRunDaemon_StopsWithContext(t *testing.T) {
	opts, _ := simOptions(t, testPolicy+"\ndefault_behavior = \"drop\"\n")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, RunDaemon(ctx, opts))

	// The daemon applied the config's rules to the store.
	var out bytes.Buffer
	opts.Stdout = &out
	require.NoError(t, RunSync(context.Background(), opts))
	assert.Contains(t, out.String(), "2 rules installed.")
}
