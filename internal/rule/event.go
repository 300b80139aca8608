// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

// Process identifies the task that issued a USB operation.
type Process struct {
	PID  int32  `json:"pid,omitempty" yaml:"pid,omitempty"`
	PPID int32  `json:"ppid,omitempty" yaml:"ppid,omitempty"`
	PGID int32  `json:"pgid,omitempty" yaml:"pgid,omitempty"`
	UID  uint32 `json:"uid,omitempty" yaml:"uid,omitempty"`
	EUID uint32 `json:"euid,omitempty" yaml:"euid,omitempty"`
	GID  uint32 `json:"gid,omitempty" yaml:"gid,omitempty"`
	EGID uint32 `json:"egid,omitempty" yaml:"egid,omitempty"`
	Comm string `json:"comm,omitempty" yaml:"comm,omitempty"`
}

func (p Process) equal(o Process) bool {
	return p.PID == o.PID &&
		p.PPID == o.PPID &&
		p.PGID == o.PGID &&
		p.UID == o.UID &&
		p.EUID == o.EUID &&
		p.GID == o.GID &&
		p.EGID == o.EGID &&
		TextEqual(p.Comm, o.Comm, CommLen)
}

// Device identifies the physical or logical USB device involved.
type Device struct {
	BusNum       int32  `json:"busnum,omitempty" yaml:"busnum,omitempty"`
	DevNum       int32  `json:"devnum,omitempty" yaml:"devnum,omitempty"`
	PortNum      int32  `json:"portnum,omitempty" yaml:"portnum,omitempty"`
	IfNum        int32  `json:"ifnum,omitempty" yaml:"ifnum,omitempty"`
	DevPath      string `json:"devpath,omitempty" yaml:"devpath,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Serial       string `json:"serial,omitempty" yaml:"serial,omitempty"`
}

func (d Device) equal(o Device) bool {
	return d.BusNum == o.BusNum &&
		d.DevNum == o.DevNum &&
		d.PortNum == o.PortNum &&
		d.IfNum == o.IfNum &&
		TextEqual(d.DevPath, o.DevPath, DevPathLen) &&
		TextEqual(d.Product, o.Product, ProductLen) &&
		TextEqual(d.Manufacturer, o.Manufacturer, ManufacturerLen) &&
		TextEqual(d.Serial, o.Serial, SerialLen)
}

// Packet describes the transfer shape, taken from the URB pipe.
type Packet struct {
	Type      TransferType `json:"type" yaml:"type"`
	Direction Direction    `json:"direction" yaml:"direction"`
	Endpoint  int32        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Address   int32        `json:"address,omitempty" yaml:"address,omitempty"`
}

func (p Packet) equal(o Packet) bool {
	return p == o
}

// Event is a candidate USB operation checked against rules.
type Event struct {
	Process Process
	Device  Device
	Packet  Packet
}
