// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rule holds the USB filter policy model: criterion tables, full
// rules and simple whitelist rules, plus their evaluation against events.
package rule

import (
	"grimm.is/usbwall/internal/errors"
)

// ModuleHandle is the kernel's reference to the loaded matcher module of a
// rule. Userspace never interprets it; it is forwarded byte for byte.
type ModuleHandle uint64

// Policy is either a Rule or a SimpleRule.
type Policy interface {
	PolicyName() string
	PolicyAction() Action
	Validate() error
	policy()
}

// Value returns p as a Rule or SimpleRule value, dereferencing pointers.
// It reports false for nil and nil pointers.
func Value(p Policy) (Policy, bool) {
	switch v := p.(type) {
	case Rule:
		return v, true
	case SimpleRule:
		return v, true
	case *Rule:
		if v != nil {
			return *v, true
		}
	case *SimpleRule:
		if v != nil {
			return *v, true
		}
	}
	return nil, false
}

// Rule is a full filter rule: an action applied when every valid criterion
// table matches.
type Rule struct {
	Action Action `json:"action" yaml:"action"`
	Name   string `json:"name" yaml:"name"`
	Criteria `yaml:",inline"`

	// Handle is owned by the kernel and only forwarded.
	Handle ModuleHandle `json:"handle,omitempty" yaml:"handle,omitempty"`
}

// New builds a Rule. At least one criterion table must be valid; a rule
// without any would match all traffic.
func New(action Action, name string, c Criteria) (Rule, error) {
	r := Rule{Action: action, Name: name, Criteria: c}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Ref returns a name-only Rule, enough to address an installed rule in DEL.
func Ref(name string) Rule {
	return Rule{Name: name}
}

// Validate applies the construction checks of New.
func (r Rule) Validate() error {
	if err := validateHeader(r.Action, r.Name); err != nil {
		return err
	}
	if r.Criteria.Active() == 0 {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"rule %q has no valid criterion table", r.Name), "rule", r.Name)
	}
	if err := r.Criteria.validate(); err != nil {
		return errors.Attr(err, "rule", r.Name)
	}
	return nil
}

// Evaluate reports whether e satisfies every valid process, device and
// packet table. The module table is evaluated by the kernel module it
// names and adds no constraint here.
func (r Rule) Evaluate(e Event) bool {
	return r.Process.Matches(e.Process) &&
		r.Device.Matches(e.Device) &&
		r.Packet.Matches(e.Packet)
}

// Equal compares two rules exactly, including the module handle.
func (r Rule) Equal(o Rule) bool {
	return r.Action == o.Action &&
		TextEqual(r.Name, o.Name, NameLen) &&
		r.Criteria.Equal(o.Criteria) &&
		r.Handle == o.Handle
}

func (r Rule) PolicyName() string   { return r.Name }
func (r Rule) PolicyAction() Action { return r.Action }
func (Rule) policy()                {}

func validateHeader(action Action, name string) error {
	if !action.Known() {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"unknown action %d", int32(action)), "field", "action")
	}
	if name == "" {
		return errors.Attr(errors.Wrap(ErrInvalidRule, errors.KindValidation,
			"rule name is required"), "field", "name")
	}
	return checkText("name", name, NameLen)
}
