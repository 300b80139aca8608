// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nlm implements the netlink message protocol spoken with the
// usbfilter kernel module: the fixed-size message envelope, its codec and
// the bounded queue that stages received messages.
package nlm

import (
	"fmt"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// Protocol is the netlink protocol number registered by the kernel module.
const Protocol = 31

// DumpFileName is the default file a rule dump is written to.
const DumpFileName = "config_dmp"

// Opcode is the operation requested or acknowledged by an Envelope.
type Opcode int32

const (
	OpInit Opcode = 0 // open the session
	OpAdd  Opcode = 1 // install a rule
	OpDel  Opcode = 2 // remove a rule by name
	OpSyn  Opcode = 3 // stream installed rules for reconciliation
	OpEna  Opcode = 4 // enable filtering
	OpDis  Opcode = 5 // disable filtering
	OpChg  Opcode = 6 // change the default behavior
	OpDmp  Opcode = 7 // dump installed rules
	OpAck  Opcode = 8 // acknowledgement from the kernel
)

var opcodeNames = [...]string{"INIT", "ADD", "DEL", "SYN", "ENA", "DIS", "CHG", "DMP", "ACK"}

func (o Opcode) String() string {
	if o.Known() {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OPCODE(%d)", int32(o))
}

// Known reports whether o is one of the nine defined opcodes.
func (o Opcode) Known() bool {
	return o >= OpInit && o <= OpAck
}

// Streaming reports whether the kernel answers o with a sequence of
// envelopes terminated by a LAST acknowledgement.
func (o Opcode) Streaming() bool {
	return o == OpSyn || o == OpDmp
}

// PayloadType is the discriminant selecting the payload arm.
type PayloadType int32

const (
	TypeRule       PayloadType = 0
	TypeSimpleRule PayloadType = 1
)

func (t PayloadType) String() string {
	switch t {
	case TypeRule:
		return "rule"
	case TypeSimpleRule:
		return "simple_rule"
	}
	return fmt.Sprintf("type(%d)", int32(t))
}

// TypeOf returns the discriminant for p. A nil payload is sent as an
// all-zero rule arm.
func TypeOf(p rule.Policy) PayloadType {
	v, _ := rule.Value(p)
	if _, ok := v.(rule.SimpleRule); ok {
		return TypeSimpleRule
	}
	return TypeRule
}

// Result is the outcome carried by an ACK.
type Result int32

const (
	ResultSuccess Result = 0
	ResultFailure Result = -1
	ResultLast    Result = 1 // end of a DMP or SYN stream
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultFailure:
		return "FAILURE"
	case ResultLast:
		return "LAST"
	}
	return fmt.Sprintf("RESULT(%d)", int32(r))
}

func (r Result) Known() bool {
	return r == ResultSuccess || r == ResultFailure || r == ResultLast
}

// Envelope is one protocol message. Payload is nil, a rule.Rule or a
// rule.SimpleRule; the wire discriminant is derived from it.
type Envelope struct {
	Opcode   Opcode
	Behavior rule.Action
	Result   Result
	Payload  rule.Policy
}

// Type returns the payload discriminant.
func (e Envelope) Type() PayloadType {
	return TypeOf(e.Payload)
}

// Rule returns the rule payload, if that arm is live.
func (e Envelope) Rule() (rule.Rule, bool) {
	v, _ := rule.Value(e.Payload)
	r, ok := v.(rule.Rule)
	return r, ok
}

// SimpleRule returns the simple rule payload, if that arm is live.
func (e Envelope) SimpleRule() (rule.SimpleRule, bool) {
	v, _ := rule.Value(e.Payload)
	r, ok := v.(rule.SimpleRule)
	return r, ok
}

func (e Envelope) String() string {
	switch {
	case e.Opcode == OpAck:
		return fmt.Sprintf("%s(%s)", e.Opcode, e.Result)
	case e.Opcode == OpChg:
		return fmt.Sprintf("%s(%s)", e.Opcode, e.Behavior)
	}
	if p, ok := rule.Value(e.Payload); ok {
		return fmt.Sprintf("%s(%s %q)", e.Opcode, e.Type(), p.PolicyName())
	}
	return e.Opcode.String()
}

// Validate checks the per-opcode payload requirements before sending.
func (e Envelope) Validate() error {
	p, ok := rule.Value(e.Payload)
	if e.Payload != nil && !ok {
		return errors.Errorf(errors.KindValidation, "%s carries a nil %T payload", e.Opcode, e.Payload)
	}

	switch e.Opcode {
	case OpAdd:
		if p == nil {
			return errors.Errorf(errors.KindValidation, "%s requires a rule payload", e.Opcode)
		}
		return p.Validate()
	case OpDel:
		if p == nil || p.PolicyName() == "" {
			return errors.Errorf(errors.KindValidation, "%s requires a rule name", e.Opcode)
		}
		if n := len(p.PolicyName()); n > rule.NameLen {
			return errors.Errorf(errors.KindValidation, "rule name is %d bytes, limit %d", n, rule.NameLen)
		}
	case OpChg:
		if !e.Behavior.Known() {
			return errors.Errorf(errors.KindValidation, "unknown default behavior %d", int32(e.Behavior))
		}
	case OpAck:
		if !e.Result.Known() {
			return errors.Errorf(errors.KindValidation, "unknown result %d", int32(e.Result))
		}
	case OpInit, OpSyn, OpEna, OpDis, OpDmp:
	default:
		return errors.Wrapf(ErrUnknownOpcode, errors.KindValidation, "opcode %d", int32(e.Opcode))
	}
	return nil
}

func NewInit() Envelope    { return Envelope{Opcode: OpInit} }
func NewSync() Envelope    { return Envelope{Opcode: OpSyn} }
func NewEnable() Envelope  { return Envelope{Opcode: OpEna} }
func NewDisable() Envelope { return Envelope{Opcode: OpDis} }
func NewDump() Envelope    { return Envelope{Opcode: OpDmp} }

// NewAdd wraps p for installation.
func NewAdd(p rule.Policy) Envelope { return Envelope{Opcode: OpAdd, Payload: p} }

// NewDel wraps p for removal; only its name is significant.
func NewDel(p rule.Policy) Envelope { return Envelope{Opcode: OpDel, Payload: p} }

// NewChange sets the default behavior for unmatched traffic.
func NewChange(behavior rule.Action) Envelope {
	return Envelope{Opcode: OpChg, Behavior: behavior}
}

// NewAck acknowledges a request.
func NewAck(result Result) Envelope { return Envelope{Opcode: OpAck, Result: result} }
