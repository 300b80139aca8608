// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import (
	"slices"

	"grimm.is/usbwall/internal/errors"
)

// SimpleRule is a whitelist keyed only by process group id or command name.
// Exactly one of PGIDs and Comms is used, selected by Kind.
type SimpleRule struct {
	Action Action     `json:"action" yaml:"action"`
	Name   string     `json:"name" yaml:"name"`
	Kind   SimpleKind `json:"kind" yaml:"kind"`
	PGIDs  []int32    `json:"pgids,omitempty" yaml:"pgids,omitempty"`
	Comms  []string   `json:"comms,omitempty" yaml:"comms,omitempty"`
}

// NewPGIDRule builds a simple rule matching any of pgids.
func NewPGIDRule(action Action, name string, pgids ...int32) (SimpleRule, error) {
	r := SimpleRule{Action: action, Name: name, Kind: SimplePGID, PGIDs: slices.Clone(pgids)}
	if err := r.Validate(); err != nil {
		return SimpleRule{}, err
	}
	return r, nil
}

// NewCommRule builds a simple rule matching any of comms.
func NewCommRule(action Action, name string, comms ...string) (SimpleRule, error) {
	r := SimpleRule{Action: action, Name: name, Kind: SimpleComm, Comms: slices.Clone(comms)}
	if err := r.Validate(); err != nil {
		return SimpleRule{}, err
	}
	return r, nil
}

// SimpleRef returns a name-only SimpleRule for DEL.
func SimpleRef(name string) SimpleRule {
	return SimpleRule{Name: name}
}

// Len returns the number of entries in the active list.
func (r SimpleRule) Len() int {
	if r.Kind == SimpleComm {
		return len(r.Comms)
	}
	return len(r.PGIDs)
}

// Validate checks capacity and entry contents. A zero pgid or empty comm is
// rejected: on the wire an all-zero slot marks an unused entry.
func (r SimpleRule) Validate() error {
	if err := validateHeader(r.Action, r.Name); err != nil {
		return err
	}

	var n, other int
	switch r.Kind {
	case SimplePGID:
		n, other = len(r.PGIDs), len(r.Comms)
	case SimpleComm:
		n, other = len(r.Comms), len(r.PGIDs)
	default:
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"unknown simple rule kind %d", int32(r.Kind)), "rule", r.Name)
	}
	if other != 0 {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"%s rule carries entries of the other kind", r.Kind), "rule", r.Name)
	}
	if n > SimpleEntryNum {
		return errors.Attr(errors.Wrapf(ErrCapacityExceeded, errors.KindValidation,
			"%d entries, limit %d", n, SimpleEntryNum), "rule", r.Name)
	}

	for i, pgid := range r.PGIDs {
		if pgid == 0 {
			return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
				"pgid entry %d is zero", i), "rule", r.Name)
		}
	}
	for i, comm := range r.Comms {
		if comm == "" {
			return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
				"comm entry %d is empty", i), "rule", r.Name)
		}
		if err := checkText("comm", comm, CommLen); err != nil {
			return errors.Attr(err, "rule", r.Name)
		}
	}
	return nil
}

// Evaluate reports whether the event's process group id or command name is
// listed.
func (r SimpleRule) Evaluate(e Event) bool {
	switch r.Kind {
	case SimplePGID:
		return slices.Contains(r.PGIDs, e.Process.PGID)
	case SimpleComm:
		for _, c := range r.Comms {
			if TextEqual(c, e.Process.Comm, CommLen) {
				return true
			}
		}
	}
	return false
}

// Equal compares two simple rules, entries in order.
func (r SimpleRule) Equal(o SimpleRule) bool {
	if r.Action != o.Action || r.Kind != o.Kind || !TextEqual(r.Name, o.Name, NameLen) {
		return false
	}
	if !slices.Equal(r.PGIDs, o.PGIDs) || len(r.Comms) != len(o.Comms) {
		return false
	}
	for i := range r.Comms {
		if !TextEqual(r.Comms[i], o.Comms[i], CommLen) {
			return false
		}
	}
	return true
}

func (r SimpleRule) PolicyName() string   { return r.Name }
func (r SimpleRule) PolicyAction() Action { return r.Action }
func (SimpleRule) policy()                {}
