// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package kernel

import (
	"slices"

	"grimm.is/usbwall/internal/rule"
)

// table holds installed rules in installation order, keyed by name per kind.
type table struct {
	rules  []rule.Rule
	simple []rule.SimpleRule
}

func (t *table) add(p rule.Policy) bool {
	if t.index(p) >= 0 {
		return false
	}
	switch v := p.(type) {
	case rule.Rule:
		t.rules = append(t.rules, v)
	case rule.SimpleRule:
		t.simple = append(t.simple, v)
	}
	return true
}

func (t *table) remove(p rule.Policy) bool {
	i := t.index(p)
	if i < 0 {
		return false
	}
	switch p.(type) {
	case rule.Rule:
		t.rules = slices.Delete(t.rules, i, i+1)
	case rule.SimpleRule:
		t.simple = slices.Delete(t.simple, i, i+1)
	}
	return true
}

func (t *table) index(p rule.Policy) int {
	name := p.PolicyName()
	switch p.(type) {
	case rule.Rule:
		return slices.IndexFunc(t.rules, func(r rule.Rule) bool {
			return rule.TextEqual(r.Name, name, rule.NameLen)
		})
	case rule.SimpleRule:
		return slices.IndexFunc(t.simple, func(r rule.SimpleRule) bool {
			return rule.TextEqual(r.Name, name, rule.NameLen)
		})
	}
	return -1
}

// policies lists rules first, then simple rules.
func (t *table) policies() []rule.Policy {
	out := make([]rule.Policy, 0, len(t.rules)+len(t.simple))
	for _, r := range t.rules {
		out = append(out, r)
	}
	for _, r := range t.simple {
		out = append(out, r)
	}
	return out
}

// verdict applies simple whitelists first, then full rules; the first match
// wins. Rules constrained only by a module table are decided by that module
// and never match here.
func (t *table) verdict(e rule.Event) (rule.Action, bool) {
	for _, r := range t.simple {
		if r.Evaluate(e) {
			return r.Action, true
		}
	}
	for _, r := range t.rules {
		if r.Module.Valid && r.Active() == 1 {
			continue
		}
		if r.Evaluate(e) {
			return r.Action, true
		}
	}
	return 0, false
}
