// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// RuleBlock is a full rule. Each criterion block that is present becomes a
// valid table; omitted blocks are ignored by the kernel.
type RuleBlock struct {
	Name    string        `hcl:"name,label" json:"name" yaml:"name"`
	Action  string        `hcl:"action" json:"action" yaml:"action"`
	Process *ProcessBlock `hcl:"process,block" json:"process,omitempty" yaml:"process,omitempty"`
	Device  *DeviceBlock  `hcl:"device,block" json:"device,omitempty" yaml:"device,omitempty"`
	Packet  *PacketBlock  `hcl:"packet,block" json:"packet,omitempty" yaml:"packet,omitempty"`
	Module  *ModuleBlock  `hcl:"module,block" json:"module,omitempty" yaml:"module,omitempty"`
}

type ProcessBlock struct {
	PID  int32  `hcl:"pid,optional" json:"pid,omitempty" yaml:"pid,omitempty"`
	PPID int32  `hcl:"ppid,optional" json:"ppid,omitempty" yaml:"ppid,omitempty"`
	PGID int32  `hcl:"pgid,optional" json:"pgid,omitempty" yaml:"pgid,omitempty"`
	UID  uint32 `hcl:"uid,optional" json:"uid,omitempty" yaml:"uid,omitempty"`
	EUID uint32 `hcl:"euid,optional" json:"euid,omitempty" yaml:"euid,omitempty"`
	GID  uint32 `hcl:"gid,optional" json:"gid,omitempty" yaml:"gid,omitempty"`
	EGID uint32 `hcl:"egid,optional" json:"egid,omitempty" yaml:"egid,omitempty"`
	Comm string `hcl:"comm,optional" json:"comm,omitempty" yaml:"comm,omitempty"`
}

type DeviceBlock struct {
	BusNum       int32  `hcl:"busnum,optional" json:"busnum,omitempty" yaml:"busnum,omitempty"`
	DevNum       int32  `hcl:"devnum,optional" json:"devnum,omitempty" yaml:"devnum,omitempty"`
	PortNum      int32  `hcl:"portnum,optional" json:"portnum,omitempty" yaml:"portnum,omitempty"`
	IfNum        int32  `hcl:"ifnum,optional" json:"ifnum,omitempty" yaml:"ifnum,omitempty"`
	DevPath      string `hcl:"devpath,optional" json:"devpath,omitempty" yaml:"devpath,omitempty"`
	Product      string `hcl:"product,optional" json:"product,omitempty" yaml:"product,omitempty"`
	Manufacturer string `hcl:"manufacturer,optional" json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Serial       string `hcl:"serial,optional" json:"serial,omitempty" yaml:"serial,omitempty"`
}

// PacketBlock matches the transfer shape. Type and direction are required
// because their zero values (iso, out) are real settings.
type PacketBlock struct {
	Type      string `hcl:"type" json:"type" yaml:"type"`
	Direction string `hcl:"direction" json:"direction" yaml:"direction"`
	Endpoint  int32  `hcl:"endpoint,optional" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Address   int32  `hcl:"address,optional" json:"address,omitempty" yaml:"address,omitempty"`
}

type ModuleBlock struct {
	Name string `hcl:"name" json:"name" yaml:"name"`
}

// SimpleRuleBlock is a whitelist of process group ids or command names.
type SimpleRuleBlock struct {
	Name   string   `hcl:"name,label" json:"name" yaml:"name"`
	Action string   `hcl:"action" json:"action" yaml:"action"`
	Kind   string   `hcl:"kind" json:"kind" yaml:"kind"`
	Comm   []string `hcl:"comm,optional" json:"comm,omitempty" yaml:"comm,omitempty"`
	PGID   []int32  `hcl:"pgid,optional" json:"pgid,omitempty" yaml:"pgid,omitempty"`
}

// Rule converts the block, validating it.
func (b RuleBlock) Rule() (rule.Rule, error) {
	action, err := rule.ParseAction(b.Action)
	if err != nil {
		return rule.Rule{}, errors.Attr(err, "rule", b.Name)
	}

	var c rule.Criteria
	if p := b.Process; p != nil {
		c.Process = rule.ProcessCriterion{Valid: true, Process: rule.Process{
			PID: p.PID, PPID: p.PPID, PGID: p.PGID,
			UID: p.UID, EUID: p.EUID, GID: p.GID, EGID: p.EGID,
			Comm: p.Comm,
		}}
	}
	if d := b.Device; d != nil {
		c.Device = rule.DeviceCriterion{Valid: true, Device: rule.Device{
			BusNum: d.BusNum, DevNum: d.DevNum, PortNum: d.PortNum, IfNum: d.IfNum,
			DevPath: d.DevPath, Product: d.Product, Manufacturer: d.Manufacturer, Serial: d.Serial,
		}}
	}
	if p := b.Packet; p != nil {
		typ, err := rule.ParseTransferType(p.Type)
		if err != nil {
			return rule.Rule{}, errors.Attr(err, "rule", b.Name)
		}
		dir, err := rule.ParseDirection(p.Direction)
		if err != nil {
			return rule.Rule{}, errors.Attr(err, "rule", b.Name)
		}
		c.Packet = rule.PacketCriterion{Valid: true, Packet: rule.Packet{
			Type: typ, Direction: dir, Endpoint: p.Endpoint, Address: p.Address,
		}}
	}
	if m := b.Module; m != nil {
		c.Module = rule.ModuleCriterion{Valid: true, Name: m.Name}
	}

	r, err := rule.New(action, b.Name, c)
	if err != nil {
		return rule.Rule{}, errors.Attr(err, "rule", b.Name)
	}
	return r, nil
}

// SimpleRule converts the block, validating it.
func (b SimpleRuleBlock) SimpleRule() (rule.SimpleRule, error) {
	action, err := rule.ParseAction(b.Action)
	if err != nil {
		return rule.SimpleRule{}, errors.Attr(err, "simple_rule", b.Name)
	}
	kind, err := rule.ParseSimpleKind(b.Kind)
	if err != nil {
		return rule.SimpleRule{}, errors.Attr(err, "simple_rule", b.Name)
	}

	var r rule.SimpleRule
	switch kind {
	case rule.SimplePGID:
		if len(b.Comm) > 0 {
			return rule.SimpleRule{}, errors.Errorf(errors.KindValidation,
				"simple_rule %q: comm given for kind pgid", b.Name)
		}
		r, err = rule.NewPGIDRule(action, b.Name, b.PGID...)
	case rule.SimpleComm:
		if len(b.PGID) > 0 {
			return rule.SimpleRule{}, errors.Errorf(errors.KindValidation,
				"simple_rule %q: pgid given for kind comm", b.Name)
		}
		r, err = rule.NewCommRule(action, b.Name, b.Comm...)
	}
	if err != nil {
		return rule.SimpleRule{}, errors.Attr(err, "simple_rule", b.Name)
	}
	return r, nil
}

// Policies converts every rule block, rules first, in file order.
func (c *Config) Policies() ([]rule.Policy, error) {
	out := make([]rule.Policy, 0, len(c.Rules)+len(c.SimpleRules))
	for _, b := range c.Rules {
		r, err := b.Rule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	for _, b := range c.SimpleRules {
		r, err := b.SimpleRule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// RuleBlockOf converts r back into its config form.
func RuleBlockOf(r rule.Rule) RuleBlock {
	b := RuleBlock{Name: r.Name, Action: r.Action.String()}
	if c := r.Criteria.Process; c.Valid {
		p := c.Process
		b.Process = &ProcessBlock{
			PID: p.PID, PPID: p.PPID, PGID: p.PGID,
			UID: p.UID, EUID: p.EUID, GID: p.GID, EGID: p.EGID,
			Comm: p.Comm,
		}
	}
	if c := r.Criteria.Device; c.Valid {
		d := c.Device
		b.Device = &DeviceBlock{
			BusNum: d.BusNum, DevNum: d.DevNum, PortNum: d.PortNum, IfNum: d.IfNum,
			DevPath: d.DevPath, Product: d.Product, Manufacturer: d.Manufacturer, Serial: d.Serial,
		}
	}
	if c := r.Criteria.Packet; c.Valid {
		b.Packet = &PacketBlock{
			Type: c.Type.String(), Direction: c.Direction.String(),
			Endpoint: c.Endpoint, Address: c.Address,
		}
	}
	if c := r.Criteria.Module; c.Valid {
		b.Module = &ModuleBlock{Name: c.Name}
	}
	return b
}

// SimpleRuleBlockOf converts r back into its config form.
func SimpleRuleBlockOf(r rule.SimpleRule) SimpleRuleBlock {
	b := SimpleRuleBlock{Name: r.Name, Action: r.Action.String(), Kind: r.Kind.String()}
	if r.Kind == rule.SimpleComm {
		b.Comm = append([]string(nil), r.Comms...)
	} else {
		b.PGID = append([]int32(nil), r.PGIDs...)
	}
	return b
}
