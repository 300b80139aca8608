// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// WritePolicyHCL writes policies as rule and simple_rule blocks that Load
// accepts back.
func WritePolicyHCL(w io.Writer, policies []rule.Policy) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for i, p := range policies {
		if i > 0 {
			body.AppendNewline()
		}
		switch v := p.(type) {
		case rule.Rule:
			writeRuleBlock(body, RuleBlockOf(v))
		case rule.SimpleRule:
			writeSimpleRuleBlock(body, SimpleRuleBlockOf(v))
		}
	}

	_, err := w.Write(f.Bytes())
	return err
}

func writeRuleBlock(body *hclwrite.Body, rb RuleBlock) {
	b := body.AppendNewBlock("rule", []string{rb.Name}).Body()
	b.SetAttributeValue("action", cty.StringVal(rb.Action))

	if p := rb.Process; p != nil {
		pb := b.AppendNewBlock("process", nil).Body()
		setInt(pb, "pid", int64(p.PID))
		setInt(pb, "ppid", int64(p.PPID))
		setInt(pb, "pgid", int64(p.PGID))
		setInt(pb, "uid", int64(p.UID))
		setInt(pb, "euid", int64(p.EUID))
		setInt(pb, "gid", int64(p.GID))
		setInt(pb, "egid", int64(p.EGID))
		setString(pb, "comm", p.Comm)
	}
	if d := rb.Device; d != nil {
		db := b.AppendNewBlock("device", nil).Body()
		setInt(db, "busnum", int64(d.BusNum))
		setInt(db, "devnum", int64(d.DevNum))
		setInt(db, "portnum", int64(d.PortNum))
		setInt(db, "ifnum", int64(d.IfNum))
		setString(db, "devpath", d.DevPath)
		setString(db, "product", d.Product)
		setString(db, "manufacturer", d.Manufacturer)
		setString(db, "serial", d.Serial)
	}
	if p := rb.Packet; p != nil {
		pb := b.AppendNewBlock("packet", nil).Body()
		pb.SetAttributeValue("type", cty.StringVal(p.Type))
		pb.SetAttributeValue("direction", cty.StringVal(p.Direction))
		setInt(pb, "endpoint", int64(p.Endpoint))
		setInt(pb, "address", int64(p.Address))
	}
	if m := rb.Module; m != nil {
		b.AppendNewBlock("module", nil).Body().SetAttributeValue("name", cty.StringVal(m.Name))
	}
}

func writeSimpleRuleBlock(body *hclwrite.Body, sb SimpleRuleBlock) {
	b := body.AppendNewBlock("simple_rule", []string{sb.Name}).Body()
	b.SetAttributeValue("action", cty.StringVal(sb.Action))
	b.SetAttributeValue("kind", cty.StringVal(sb.Kind))

	if len(sb.Comm) > 0 {
		vals := make([]cty.Value, len(sb.Comm))
		for i, c := range sb.Comm {
			vals[i] = cty.StringVal(c)
		}
		b.SetAttributeValue("comm", cty.ListVal(vals))
	}
	if len(sb.PGID) > 0 {
		vals := make([]cty.Value, len(sb.PGID))
		for i, g := range sb.PGID {
			vals[i] = cty.NumberIntVal(int64(g))
		}
		b.SetAttributeValue("pgid", cty.ListVal(vals))
	}
}

func setInt(b *hclwrite.Body, name string, v int64) {
	if v != 0 {
		b.SetAttributeValue(name, cty.NumberIntVal(v))
	}
}

func setString(b *hclwrite.Body, name, v string) {
	if v != "" {
		b.SetAttributeValue(name, cty.StringVal(v))
	}
}

// PolicyFile is the YAML and JSON form of a policy.
type PolicyFile struct {
	Rules       []RuleBlock       `yaml:"rules,omitempty" json:"rules"`
	SimpleRules []SimpleRuleBlock `yaml:"simple_rules,omitempty" json:"simple_rules"`
}

// NewPolicyFile groups policies by kind, keeping their order.
func NewPolicyFile(policies []rule.Policy) PolicyFile {
	pf := PolicyFile{Rules: []RuleBlock{}, SimpleRules: []SimpleRuleBlock{}}
	for _, p := range policies {
		switch v := p.(type) {
		case rule.Rule:
			pf.Rules = append(pf.Rules, RuleBlockOf(v))
		case rule.SimpleRule:
			pf.SimpleRules = append(pf.SimpleRules, SimpleRuleBlockOf(v))
		}
	}
	return pf
}

// MarshalPolicyYAML renders policies as a PolicyFile.
func MarshalPolicyYAML(policies []rule.Policy) ([]byte, error) {
	pf := NewPolicyFile(policies)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(pf); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to encode policy")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to encode policy")
	}
	return buf.Bytes(), nil
}

// UnmarshalPolicyYAML parses and validates a YAML PolicyFile.
func UnmarshalPolicyYAML(data []byte) ([]rule.Policy, error) {
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse policy YAML")
	}
	c := Config{Rules: pf.Rules, SimpleRules: pf.SimpleRules}
	return c.Policies()
}

// LoadPolicies reads the rules from path: YAML for .yaml and .yml files,
// HCL otherwise.
func LoadPolicies(path string) ([]rule.Policy, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindNotFound, "failed to read policy file")
		}
		return UnmarshalPolicyYAML(data)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Policies()
}
