// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
)

// Load reads and validates an HCL config file. The file name need not end
// in .hcl; dump files are named config_dmp.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindNotFound, "failed to read config file")
	}
	return LoadBytes(path, data)
}

// LoadBytes parses HCL source; filename is used in diagnostics only.
func LoadBytes(filename string, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to parse HCL")
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to decode HCL")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings and every rule block. Rule names must be unique
// per kind, as the kernel keys rules that way.
func (c *Config) Validate() error {
	if c.NetlinkProtocol < 0 || c.NetlinkProtocol > 31 {
		return errors.Errorf(errors.KindValidation, "netlink_protocol %d out of range 0-31", c.NetlinkProtocol)
	}
	for name, v := range map[string]string{"ack_timeout": c.AckTimeout, "poll_interval": c.PollInterval} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, errors.KindValidation, "invalid %s %q", name, v)
		}
		if d <= 0 {
			return errors.Errorf(errors.KindValidation, "%s must be positive", name)
		}
	}
	if c.DefaultBehavior != "" {
		if _, err := rule.ParseAction(c.DefaultBehavior); err != nil {
			return errors.Wrap(err, errors.KindValidation, "invalid default_behavior")
		}
	}

	seen := map[nlm.PayloadType]map[string]bool{
		nlm.TypeRule:       {},
		nlm.TypeSimpleRule: {},
	}
	policies, err := c.Policies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		t, name := nlm.TypeOf(p), p.PolicyName()
		if seen[t][name] {
			return errors.Attr(errors.Errorf(errors.KindConflict, "duplicate %s %q", t, name), "name", name)
		}
		seen[t][name] = true
	}
	return nil
}

// Behavior returns the configured default behavior, if one is set.
func (c *Config) Behavior() (rule.Action, bool) {
	if c.DefaultBehavior == "" {
		return 0, false
	}
	a, err := rule.ParseAction(c.DefaultBehavior)
	return a, err == nil
}
