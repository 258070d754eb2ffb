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
// Package plugnplay discovers devices on a GRLIB AMBA system by reading the
// AHB and APB Plug&Play configuration areas.
package plugnplay

import (
	"context"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/common/multierror"
)

var ErrParse = errors.New("Plug&Play parse error")

const (
	ahbMasterOffset = 0xff000
	ahbSlaveOffset  = 0xff800
	apbOffset       = 0xff000

	ahbSlotStride = 32
	apbSlotStride = 8

	ahbMasterWords = 1
	ahbSlaveWords  = 8
	apbWords       = 2

	ahbSlaveFirstBAR = 4
)

type Config struct {
	IOArea     uint32 `yaml:"io_area"`
	ScanAPB    bool   `yaml:"scan_apb"`
	MaxMasters int    `yaml:"max_masters"`
	MaxSlaves  int    `yaml:"max_slaves"`
	MaxAPB     int    `yaml:"max_apb"`
}

func DefaultConfig() Config {
	return Config{
		IOArea:     0xfff00000,
		ScanAPB:    true,
		MaxMasters: 64,
		MaxSlaves:  64,
		MaxAPB:     16,
	}
}

func (c Config) Validate() error {
	if c.IOArea&0xfffff != 0 {
		return errors.NotValidf("I/O area 0x%08x (must be 1 MB aligned)", c.IOArea)
	}
	if c.MaxMasters < 1 || c.MaxMasters > 64 {
		return errors.NotValidf("max AHB masters %d", c.MaxMasters)
	}
	if c.MaxSlaves < 1 || c.MaxSlaves > 64 {
		return errors.NotValidf("max AHB slaves %d", c.MaxSlaves)
	}
	if c.MaxAPB < 1 || c.MaxAPB > 512 {
		return errors.NotValidf("max APB slaves %d", c.MaxAPB)
	}
	return nil
}

// DeviceTable is the result of a scan, in discovery order.
type DeviceTable struct {
	Records  []Record
	Failures []Failure
}

func (dt *DeviceTable) ofKind(k Kind) []Record {
	var res []Record
	for _, r := range dt.Records {
		if r.Kind == k {
			res = append(res, r)
		}
	}
	return res
}

func (dt *DeviceTable) Masters() []Record { return dt.ofKind(AHBMaster) }
func (dt *DeviceTable) Slaves() []Record  { return dt.ofKind(AHBSlave) }
func (dt *DeviceTable) APB() []Record     { return dt.ofKind(APBSlave) }

// Find returns the first record with the given vendor and device.
func (dt *DeviceTable) Find(vendor uint8, device uint16) (Record, bool) {
	for _, r := range dt.Records {
		if r.Is(vendor, device) {
			return r, true
		}
	}
	return Record{}, false
}

func (dt *DeviceTable) FindAll(vendor uint8, device uint16) []Record {
	var res []Record
	for _, r := range dt.Records {
		if r.Is(vendor, device) {
			res = append(res, r)
		}
	}
	return res
}

// FailuresError returns all slot failures as one error, nil if there were none.
func (dt *DeviceTable) FailuresError() error {
	var err error
	for _, f := range dt.Failures {
		err = multierror.Append(err, f)
	}
	return err
}

type area struct {
	kind     Kind
	base     uint32
	stride   int
	words    int
	maxSlots int
	bridge   uint32
}

// Scan reads the configuration areas and builds the device table. Slots that
// cannot be decoded are recorded in Failures and skipped. An area without a
// terminating empty slot is an ErrParse.
func Scan(ctx context.Context, mem common.MemReader, cfg Config) (*DeviceTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotatef(err, "invalid Plug&Play config")
	}
	dt := &DeviceTable{}
	if err := scanArea(ctx, mem, cfg, area{
		kind:     AHBMaster,
		base:     cfg.IOArea | ahbMasterOffset,
		stride:   ahbSlotStride,
		words:    ahbMasterWords,
		maxSlots: cfg.MaxMasters,
	}, dt); err != nil {
		return nil, errors.Trace(err)
	}
	if err := scanArea(ctx, mem, cfg, area{
		kind:     AHBSlave,
		base:     cfg.IOArea | ahbSlaveOffset,
		stride:   ahbSlotStride,
		words:    ahbSlaveWords,
		maxSlots: cfg.MaxSlaves,
	}, dt); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.ScanAPB {
		for _, br := range dt.FindAll(VendorGaisler, DeviceAPBMST) {
			if len(br.Banks) == 0 {
				glog.Warningf("APB bridge in slot %d has no banks", br.Slot)
				continue
			}
			base := br.Banks[0].Start
			if err := scanArea(ctx, mem, cfg, area{
				kind:     APBSlave,
				base:     base + apbOffset,
				stride:   apbSlotStride,
				words:    apbWords,
				maxSlots: cfg.MaxAPB,
				bridge:   base,
			}, dt); err != nil {
				return nil, errors.Annotatef(err, "APB bridge at 0x%08x", base)
			}
		}
	}
	glog.V(1).Infof("Plug&Play: %d masters, %d slaves, %d APB devices, %d failures",
		len(dt.Masters()), len(dt.Slaves()), len(dt.APB()), len(dt.Failures))
	return dt, nil
}

func scanArea(ctx context.Context, mem common.MemReader, cfg Config, a area, dt *DeviceTable) error {
	for slot := 0; slot < a.maxSlots; slot++ {
		addr := a.base + uint32(slot*a.stride)
		words, err := mem.ReadTargetMem(ctx, addr, a.words)
		if err != nil {
			return errors.Annotatef(err, "failed to read %s slot %d at 0x%08x", a.kind, slot, addr)
		}
		if words[0] == 0 {
			glog.V(2).Infof("%s area at 0x%08x: %d slot(s)", a.kind, a.base, slot)
			return nil
		}
		r, err := decodeSlot(a, cfg.IOArea, slot, addr, words)
		if err != nil {
			glog.Errorf("%s slot %d: %s", a.kind, slot, err)
			dt.Failures = append(dt.Failures, Failure{
				Kind:       a.kind,
				Slot:       slot,
				ConfigAddr: addr,
				Words:      words,
				Err:        err,
			})
			continue
		}
		glog.V(3).Infof("%s", r)
		dt.Records = append(dt.Records, r)
	}
	return errors.Annotatef(ErrParse, "no terminator in %d %s slots at 0x%08x", a.maxSlots, a.kind, a.base)
}

func decodeSlot(a area, ioArea uint32, slot int, addr uint32, words []uint32) (Record, error) {
	r := Record{Kind: a.kind, Slot: slot, ConfigAddr: addr}
	if err := decodeIdent(&r, words[0]); err != nil {
		return Record{}, errors.Trace(err)
	}
	var bars []uint32
	switch a.kind {
	case AHBSlave:
		bars = words[ahbSlaveFirstBAR:]
	case APBSlave:
		bars = words[1:]
	}
	for i, w := range bars {
		b, ok, err := decodeBank(w, a.kind, ioArea, a.bridge)
		if err != nil {
			return Record{}, errors.Annotatef(err, "bank %d", i)
		}
		if ok {
			r.Banks = append(r.Banks, b)
		}
	}
	return r, nil
}
