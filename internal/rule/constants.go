// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import (
	"fmt"
	"strings"

	"grimm.is/usbwall/internal/errors"
)

// Fixed text bounds shared with the kernel peer.
const (
	CommLen         = 16
	DevPathLen      = 16
	ProductLen      = 32
	ManufacturerLen = 32
	SerialLen       = 32
	ModuleNameLen   = 32
	NameLen         = 32

	// SimpleEntryNum is the fixed capacity of a simple rule's entry list.
	SimpleEntryNum = 16
)

// Action is the verdict a rule applies. The same values encode the
// default behavior set with CHG.
type Action int32

const (
	Allow Action = 0
	Drop  Action = 1
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Drop:
		return "drop"
	}
	return fmt.Sprintf("action(%d)", int32(a))
}

// Known reports whether a is ALLOW or DROP.
func (a Action) Known() bool {
	return a == Allow || a == Drop
}

// ParseAction accepts "allow" or "drop" in any case.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "allow":
		return Allow, nil
	case "drop":
		return Drop, nil
	}
	return 0, errors.Errorf(errors.KindValidation, "unknown action %q", s)
}

// TransferType mirrors the USB pipe types.
type TransferType int32

const (
	TransferISO       TransferType = 0
	TransferInterrupt TransferType = 1
	TransferControl   TransferType = 2
	TransferBulk      TransferType = 3
)

var transferNames = map[TransferType]string{
	TransferISO:       "iso",
	TransferInterrupt: "interrupt",
	TransferControl:   "control",
	TransferBulk:      "bulk",
}

func (t TransferType) String() string {
	if s, ok := transferNames[t]; ok {
		return s
	}
	return fmt.Sprintf("transfer(%d)", int32(t))
}

func (t TransferType) Known() bool {
	_, ok := transferNames[t]
	return ok
}

// ParseTransferType accepts iso, interrupt (or int), control (or ctrl) and bulk.
func ParseTransferType(s string) (TransferType, error) {
	switch strings.ToLower(s) {
	case "iso", "isochronous":
		return TransferISO, nil
	case "interrupt", "int":
		return TransferInterrupt, nil
	case "control", "ctrl":
		return TransferControl, nil
	case "bulk":
		return TransferBulk, nil
	}
	return 0, errors.Errorf(errors.KindValidation, "unknown transfer type %q", s)
}

// Direction is the data direction of a transfer.
type Direction int32

const (
	DirOut Direction = 0 // host to device
	DirIn  Direction = 1 // device to host
)

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirIn:
		return "in"
	}
	return fmt.Sprintf("direction(%d)", int32(d))
}

func (d Direction) Known() bool {
	return d == DirOut || d == DirIn
}

// ParseDirection accepts "in" or "out".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "out":
		return DirOut, nil
	case "in":
		return DirIn, nil
	}
	return 0, errors.Errorf(errors.KindValidation, "unknown direction %q", s)
}

// SimpleKind selects which list a SimpleRule carries.
type SimpleKind int32

const (
	SimplePGID SimpleKind = 0
	SimpleComm SimpleKind = 1
)

func (k SimpleKind) String() string {
	switch k {
	case SimplePGID:
		return "pgid"
	case SimpleComm:
		return "comm"
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

func (k SimpleKind) Known() bool {
	return k == SimplePGID || k == SimpleComm
}

// ParseSimpleKind accepts "pgid" or "comm".
func ParseSimpleKind(s string) (SimpleKind, error) {
	switch strings.ToLower(s) {
	case "pgid":
		return SimplePGID, nil
	case "comm":
		return SimpleComm, nil
	}
	return 0, errors.Errorf(errors.KindValidation, "unknown simple rule kind %q", s)
}
