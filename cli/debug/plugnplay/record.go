//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package plugnplay

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

type Kind int

const (
	AHBMaster Kind = iota
	AHBSlave
	APBSlave
)

func (k Kind) String() string {
	switch k {
	case AHBMaster:
		return "AHB master"
	case AHBSlave:
		return "AHB slave"
	case APBSlave:
		return "APB slave"
	}
	return "unknown"
}

type BankType uint8

const (
	BankAPBIO  BankType = 1
	BankAHBMem BankType = 2
	BankAHBIO  BankType = 3
)

func (t BankType) String() string {
	switch t {
	case BankAPBIO:
		return "APB"
	case BankAHBMem:
		return "AHB"
	case BankAHBIO:
		return "AHB I/O"
	}
	return fmt.Sprintf("type %d", t)
}

// Bank is one decoded base address register.
type Bank struct {
	Type  BankType
	Start uint32
	Size  uint64
	Mask  uint16

	Prefetchable bool
	Cacheable    bool
}

func (b Bank) Contains(addr uint32) bool {
	return addr >= b.Start && uint64(addr-b.Start) < b.Size
}

func (b Bank) String() string {
	var flags []string
	if b.Prefetchable {
		flags = append(flags, "pref")
	}
	if b.Cacheable {
		flags = append(flags, "cache")
	}
	s := fmt.Sprintf("%s: %08x - %08x", b.Type, b.Start, uint64(b.Start)+b.Size)
	if len(flags) > 0 {
		s += " (" + strings.Join(flags, ",") + ")"
	}
	return s
}

// Record is one device found in a configuration area.
type Record struct {
	Kind       Kind
	Slot       int
	ConfigAddr uint32

	Vendor  uint8
	Device  uint16
	Version uint8
	IRQ     uint8

	Banks []Bank
}

func (r Record) Name() string {
	return VendorName(r.Vendor) + " " + DeviceName(r.Vendor, r.Device)
}

func (r Record) Is(vendor uint8, device uint16) bool {
	return r.Vendor == vendor && r.Device == device
}

func (r Record) String() string {
	s := fmt.Sprintf("%s %d: %-8s %-10s ver %d", r.Kind, r.Slot,
		VendorName(r.Vendor), DeviceName(r.Vendor, r.Device), r.Version)
	if r.IRQ != 0 {
		s += fmt.Sprintf(", irq %d", r.IRQ)
	}
	for _, b := range r.Banks {
		s += "\n    " + b.String()
	}
	return s
}

// Failure records a slot that was not empty but could not be decoded.
type Failure struct {
	Kind       Kind
	Slot       int
	ConfigAddr uint32
	Words      []uint32
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %d at 0x%08x: %s", f.Kind, f.Slot, f.ConfigAddr, f.Err)
}

const (
	identReserved = 0xc00
)

func decodeIdent(r *Record, w uint32) error {
	if w&identReserved != 0 {
		return errors.NotValidf("identification word 0x%08x with reserved bits set", w)
	}
	r.Vendor = uint8(w >> 24)
	if r.Vendor == 0 {
		return errors.NotValidf("identification word 0x%08x with zero vendor", w)
	}
	r.Device = uint16(w>>12) & 0xfff
	r.Version = uint8(w>>5) & 0x1f
	r.IRQ = uint8(w) & 0x1f
	return nil
}

// decodeBank decodes a BAR word. ok is false for an unused (all-zero) BAR.
func decodeBank(w uint32, kind Kind, ioArea, bridge uint32) (b Bank, ok bool, err error) {
	if w == 0 {
		return Bank{}, false, nil
	}
	addr := w >> 20
	b = Bank{
		Type:         BankType(w & 0xf),
		Mask:         uint16(w>>4) & 0xfff,
		Prefetchable: w&(1<<17) != 0,
		Cacheable:    w&(1<<16) != 0,
	}
	switch {
	case kind == APBSlave && b.Type == BankAPBIO:
		b.Start = bridge | addr<<8
		b.Size = uint64(0x1000-uint32(b.Mask)) << 8
	case kind != APBSlave && b.Type == BankAHBMem:
		b.Start = addr << 20
		b.Size = uint64(0x1000-uint32(b.Mask)) << 20
	case kind != APBSlave && b.Type == BankAHBIO:
		b.Start = ioArea | addr<<8
		b.Size = uint64(0x1000-uint32(b.Mask)) << 8
	default:
		return Bank{}, false, errors.NotValidf("%s BAR 0x%08x", kind, w)
	}
	return b, true, nil
}
