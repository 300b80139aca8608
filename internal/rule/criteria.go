// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import "grimm.is/usbwall/internal/errors"

// ProcessCriterion matches the issuing process. When Valid is false the
// table is a wildcard and its fields are ignored.
type ProcessCriterion struct {
	Valid bool `json:"valid" yaml:"valid"`
	Process `yaml:",inline"`
}

// Equal compares two tables field by field, text over its fixed bound.
func (c ProcessCriterion) Equal(o ProcessCriterion) bool {
	return c.Valid == o.Valid && c.Process.equal(o.Process)
}

// Matches reports whether p satisfies the table. An invalid table matches
// everything.
func (c ProcessCriterion) Matches(p Process) bool {
	return !c.Valid || c.Process.equal(p)
}

func (c ProcessCriterion) validate() error {
	if !c.Valid {
		return nil
	}
	return checkText("process.comm", c.Comm, CommLen)
}

// DeviceCriterion matches the USB device.
type DeviceCriterion struct {
	Valid bool `json:"valid" yaml:"valid"`
	Device `yaml:",inline"`
}

func (c DeviceCriterion) Equal(o DeviceCriterion) bool {
	return c.Valid == o.Valid && c.Device.equal(o.Device)
}

func (c DeviceCriterion) Matches(d Device) bool {
	return !c.Valid || c.Device.equal(d)
}

func (c DeviceCriterion) validate() error {
	if !c.Valid {
		return nil
	}
	for _, f := range []struct {
		name  string
		val   string
		bound int
	}{
		{"device.devpath", c.DevPath, DevPathLen},
		{"device.product", c.Product, ProductLen},
		{"device.manufacturer", c.Manufacturer, ManufacturerLen},
		{"device.serial", c.Serial, SerialLen},
	} {
		if err := checkText(f.name, f.val, f.bound); err != nil {
			return err
		}
	}
	return nil
}

// PacketCriterion matches the transfer shape.
type PacketCriterion struct {
	Valid bool `json:"valid" yaml:"valid"`
	Packet `yaml:",inline"`
}

func (c PacketCriterion) Equal(o PacketCriterion) bool {
	return c.Valid == o.Valid && c.Packet.equal(o.Packet)
}

func (c PacketCriterion) Matches(p Packet) bool {
	return !c.Valid || c.Packet.equal(p)
}

func (c PacketCriterion) validate() error {
	if !c.Valid {
		return nil
	}
	if !c.Type.Known() {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"unknown transfer type %d", int32(c.Type)), "field", "packet.type")
	}
	if !c.Direction.Known() {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"unknown direction %d", int32(c.Direction)), "field", "packet.direction")
	}
	return nil
}

// ModuleCriterion names the loadable kernel matcher that owns a rule. The
// module's logic runs only in the kernel; userspace carries the name.
type ModuleCriterion struct {
	Valid bool   `json:"valid" yaml:"valid"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (c ModuleCriterion) Equal(o ModuleCriterion) bool {
	return c.Valid == o.Valid && TextEqual(c.Name, o.Name, ModuleNameLen)
}

func (c ModuleCriterion) validate() error {
	if !c.Valid {
		return nil
	}
	return checkText("module.name", c.Name, ModuleNameLen)
}

// Criteria groups the four tables of a Rule.
type Criteria struct {
	Process ProcessCriterion `json:"process" yaml:"process"`
	Device  DeviceCriterion  `json:"device" yaml:"device"`
	Packet  PacketCriterion  `json:"packet" yaml:"packet"`
	Module  ModuleCriterion  `json:"module" yaml:"module"`
}

// Active returns the number of valid tables.
func (c Criteria) Active() int {
	n := 0
	for _, v := range []bool{c.Process.Valid, c.Device.Valid, c.Packet.Valid, c.Module.Valid} {
		if v {
			n++
		}
	}
	return n
}

func (c Criteria) Equal(o Criteria) bool {
	return c.Process.Equal(o.Process) &&
		c.Device.Equal(o.Device) &&
		c.Packet.Equal(o.Packet) &&
		c.Module.Equal(o.Module)
}

func (c Criteria) validate() error {
	if err := c.Process.validate(); err != nil {
		return err
	}
	if err := c.Device.validate(); err != nil {
		return err
	}
	if err := c.Packet.validate(); err != nil {
		return err
	}
	return c.Module.validate()
}
