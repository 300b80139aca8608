// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlm

import (
	"encoding/binary"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// Wire sizes. Integers are 4 bytes in host byte order; the module handle
// occupies 8 bytes. The simple rule arm is the larger one, so the union and
// the frame size do not depend on pointer width.
const (
	HeaderLen     = 16
	RuleLen       = 4 + rule.NameLen + processLen + deviceLen + packetLen + moduleLen + 8
	SimpleRuleLen = 4 + rule.NameLen + 4 + rule.SimpleEntryNum*rule.CommLen
	PayloadLen    = max(RuleLen, SimpleRuleLen)
	FrameLen      = HeaderLen + PayloadLen

	processLen = 8*4 + rule.CommLen
	deviceLen  = 5*4 + rule.DevPathLen + rule.ProductLen + rule.ManufacturerLen + rule.SerialLen
	packetLen  = 5 * 4
	moduleLen  = 4 + rule.ModuleNameLen
)

// byteOrder matches the kernel peer, which reads the struct in host order.
var byteOrder = binary.NativeEndian

type writer struct {
	b   []byte
	off int
}

func (w *writer) i32(v int32) {
	byteOrder.PutUint32(w.b[w.off:], uint32(v))
	w.off += 4
}

func (w *writer) u32(v uint32) { w.i32(int32(v)) }

func (w *writer) u64(v uint64) {
	byteOrder.PutUint64(w.b[w.off:], v)
	w.off += 8
}

func (w *writer) flag(v bool) {
	if v {
		w.i32(1)
	} else {
		w.i32(0)
	}
}

// text writes s into a zero-padded field of n bytes.
func (w *writer) text(s string, n int) {
	copy(w.b[w.off:w.off+n], s)
	w.off += n
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) i32() int32 {
	v := int32(byteOrder.Uint32(r.b[r.off:]))
	r.off += 4
	return v
}

func (r *reader) u32() uint32 { return uint32(r.i32()) }

func (r *reader) u64() uint64 {
	v := byteOrder.Uint64(r.b[r.off:])
	r.off += 8
	return v
}

func (r *reader) flag() bool { return r.i32() != 0 }

func (r *reader) text(n int) string {
	s := rule.Clip(string(r.b[r.off:r.off+n]), n)
	r.off += n
	return s
}

// Encode serializes e into a FrameLen-byte frame.
func Encode(e Envelope) []byte {
	frame := make([]byte, FrameLen)
	w := &writer{b: frame}
	w.i32(int32(e.Opcode))
	w.i32(int32(e.Type()))
	w.i32(int32(e.Behavior))
	w.i32(int32(e.Result))
	encodePayload(frame[HeaderLen:], e.Payload)
	return frame
}

// Decode parses a frame received from the kernel. Only the payload arm
// selected by the discriminant is read.
func Decode(frame []byte) (Envelope, error) {
	if len(frame) != FrameLen {
		return Envelope{}, errors.Attr(errors.Wrapf(ErrMalformedFrame, errors.KindValidation,
			"frame is %d bytes, want %d", len(frame), FrameLen), "length", len(frame))
	}

	r := &reader{b: frame}
	op := Opcode(r.i32())
	typ := PayloadType(r.i32())
	env := Envelope{
		Opcode:   op,
		Behavior: rule.Action(r.i32()),
		Result:   Result(r.i32()),
	}
	if !op.Known() {
		return Envelope{}, errors.Attr(errors.Wrapf(ErrUnknownOpcode, errors.KindValidation,
			"opcode %d", int32(op)), "opcode", int32(op))
	}

	p, err := DecodePayload(typ, frame[HeaderLen:])
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = p
	return env, nil
}

// EncodePayload returns the discriminant and the PayloadLen-byte union for p.
func EncodePayload(p rule.Policy) (PayloadType, []byte) {
	b := make([]byte, PayloadLen)
	encodePayload(b, p)
	return TypeOf(p), b
}

// DecodePayload parses a PayloadLen-byte union as arm t. An all-zero arm
// means the message carries no payload and yields nil.
func DecodePayload(t PayloadType, b []byte) (rule.Policy, error) {
	if len(b) != PayloadLen {
		return nil, errors.Wrapf(ErrMalformedFrame, errors.KindValidation,
			"payload is %d bytes, want %d", len(b), PayloadLen)
	}
	switch t {
	case TypeRule:
		if allZero(b[:RuleLen]) {
			return nil, nil
		}
		return decodeRule(&reader{b: b}), nil
	case TypeSimpleRule:
		if allZero(b[:SimpleRuleLen]) {
			return nil, nil
		}
		return decodeSimpleRule(&reader{b: b})
	}
	return nil, errors.Attr(errors.Wrapf(ErrUnknownPayloadKind, errors.KindValidation,
		"payload type %d", int32(t)), "type", int32(t))
}

func encodePayload(b []byte, p rule.Policy) {
	w := &writer{b: b}
	v, _ := rule.Value(p)
	switch v := v.(type) {
	case rule.Rule:
		encodeRule(w, v)
	case rule.SimpleRule:
		encodeSimpleRule(w, v)
	}
}

func encodeRule(w *writer, r rule.Rule) {
	w.i32(int32(r.Action))
	w.text(r.Name, rule.NameLen)

	p := r.Process
	w.flag(p.Valid)
	w.i32(p.PID)
	w.i32(p.PPID)
	w.i32(p.PGID)
	w.u32(p.UID)
	w.u32(p.EUID)
	w.u32(p.GID)
	w.u32(p.EGID)
	w.text(p.Comm, rule.CommLen)

	d := r.Device
	w.flag(d.Valid)
	w.i32(d.BusNum)
	w.i32(d.DevNum)
	w.i32(d.PortNum)
	w.i32(d.IfNum)
	w.text(d.DevPath, rule.DevPathLen)
	w.text(d.Product, rule.ProductLen)
	w.text(d.Manufacturer, rule.ManufacturerLen)
	w.text(d.Serial, rule.SerialLen)

	k := r.Packet
	w.flag(k.Valid)
	w.i32(int32(k.Type))
	w.i32(int32(k.Direction))
	w.i32(k.Endpoint)
	w.i32(k.Address)

	w.flag(r.Module.Valid)
	w.text(r.Module.Name, rule.ModuleNameLen)

	w.u64(uint64(r.Handle))
}

func decodeRule(rd *reader) rule.Rule {
	var r rule.Rule
	r.Action = rule.Action(rd.i32())
	r.Name = rd.text(rule.NameLen)

	p := &r.Process
	p.Valid = rd.flag()
	p.PID = rd.i32()
	p.PPID = rd.i32()
	p.PGID = rd.i32()
	p.UID = rd.u32()
	p.EUID = rd.u32()
	p.GID = rd.u32()
	p.EGID = rd.u32()
	p.Comm = rd.text(rule.CommLen)

	d := &r.Device
	d.Valid = rd.flag()
	d.BusNum = rd.i32()
	d.DevNum = rd.i32()
	d.PortNum = rd.i32()
	d.IfNum = rd.i32()
	d.DevPath = rd.text(rule.DevPathLen)
	d.Product = rd.text(rule.ProductLen)
	d.Manufacturer = rd.text(rule.ManufacturerLen)
	d.Serial = rd.text(rule.SerialLen)

	k := &r.Packet
	k.Valid = rd.flag()
	k.Type = rule.TransferType(rd.i32())
	k.Direction = rule.Direction(rd.i32())
	k.Endpoint = rd.i32()
	k.Address = rd.i32()

	r.Module.Valid = rd.flag()
	r.Module.Name = rd.text(rule.ModuleNameLen)

	r.Handle = rule.ModuleHandle(rd.u64())
	return r
}

func encodeSimpleRule(w *writer, r rule.SimpleRule) {
	w.i32(int32(r.Action))
	w.text(r.Name, rule.NameLen)
	w.i32(int32(r.Kind))

	switch r.Kind {
	case rule.SimplePGID:
		for i := 0; i < rule.SimpleEntryNum; i++ {
			var v int32
			if i < len(r.PGIDs) {
				v = r.PGIDs[i]
			}
			w.i32(v)
		}
	case rule.SimpleComm:
		for i := 0; i < rule.SimpleEntryNum; i++ {
			var v string
			if i < len(r.Comms) {
				v = r.Comms[i]
			}
			w.text(v, rule.CommLen)
		}
	}
}

func decodeSimpleRule(rd *reader) (rule.SimpleRule, error) {
	var r rule.SimpleRule
	r.Action = rule.Action(rd.i32())
	r.Name = rd.text(rule.NameLen)
	r.Kind = rule.SimpleKind(rd.i32())

	switch r.Kind {
	case rule.SimplePGID:
		for i := 0; i < rule.SimpleEntryNum; i++ {
			if v := rd.i32(); v != 0 {
				r.PGIDs = append(r.PGIDs, v)
			}
		}
	case rule.SimpleComm:
		for i := 0; i < rule.SimpleEntryNum; i++ {
			if v := rd.text(rule.CommLen); v != "" {
				r.Comms = append(r.Comms, v)
			}
		}
	default:
		return rule.SimpleRule{}, errors.Attr(errors.Wrapf(ErrUnknownPayloadKind, errors.KindValidation,
			"simple rule kind %d", int32(r.Kind)), "kind", int32(r.Kind))
	}
	return r, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
