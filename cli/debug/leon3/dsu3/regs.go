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
package dsu3

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Register identifies an IU register visible through the DSU.
type Register int

const (
	RegG0 Register = iota
	RegO0          = RegG0 + 8
	RegL0          = RegO0 + 8
	RegI0          = RegL0 + 8

	RegY    = RegI0 + 8
	RegPSR  = RegY + 1
	RegWIM  = RegY + 2
	RegTBR  = RegY + 3
	RegPC   = RegY + 4
	RegNPC  = RegY + 5
	RegFSR  = RegY + 6
	RegCPSR = RegY + 7

	// RegASR16 is the first of the ancillary state registers %asr16-%asr31.
	RegASR16 = RegCPSR + 1

	numRegisters = RegASR16 + 16
)

var specialNames = [...]string{"y", "psr", "wim", "tbr", "pc", "npc", "fsr", "cpsr"}

var aliases = map[string]Register{
	"sp": RegO0 + 6,
	"fp": RegI0 + 6,
	"ra": RegI0 + 7,
}

func (r Register) String() string {
	switch {
	case r < RegO0:
		return fmt.Sprintf("g%d", r-RegG0)
	case r < RegL0:
		return fmt.Sprintf("o%d", r-RegO0)
	case r < RegI0:
		return fmt.Sprintf("l%d", r-RegL0)
	case r < RegY:
		return fmt.Sprintf("i%d", r-RegI0)
	case r < RegASR16:
		return specialNames[r-RegY]
	case r < numRegisters:
		return fmt.Sprintf("asr%d", 16+int(r-RegASR16))
	}
	return fmt.Sprintf("reg%d", int(r))
}

// ParseRegister accepts names like "%o6", "l0", "PC", "asr17" or "sp".
func ParseRegister(name string) (Register, error) {
	n := strings.ToLower(strings.TrimPrefix(name, "%"))
	if r, ok := aliases[n]; ok {
		return r, nil
	}
	for r := RegG0; r < numRegisters; r++ {
		if r.String() == n {
			return r, nil
		}
	}
	return 0, errors.NotFoundf("register %q", name)
}

// Registers lists all registers in the order of RegFile.
func Registers() []Register {
	res := make([]Register, numRegisters)
	for i := range res {
		res[i] = Register(i)
	}
	return res
}

// RegFile is a snapshot of the current window and the special registers.
type RegFile struct {
	Globals [8]uint32
	Outs    [8]uint32
	Locals  [8]uint32
	Ins     [8]uint32

	Y, PSR, WIM, TBR, PC, NPC, FSR, CPSR uint32

	// ASR holds %asr16-%asr31.
	ASR [16]uint32
}

func (rf *RegFile) Get(r Register) uint32 {
	switch {
	case r < RegO0:
		return rf.Globals[r-RegG0]
	case r < RegL0:
		return rf.Outs[r-RegO0]
	case r < RegI0:
		return rf.Locals[r-RegL0]
	case r < RegY:
		return rf.Ins[r-RegI0]
	case r >= RegASR16:
		return rf.ASR[r-RegASR16]
	}
	return [...]uint32{rf.Y, rf.PSR, rf.WIM, rf.TBR, rf.PC, rf.NPC, rf.FSR, rf.CPSR}[r-RegY]
}

func cwp(psr uint32) int {
	return int(psr & 0x1f)
}

// windowOffset returns the offset of a windowed or global register within
// the IU register file for the given current window pointer.
func (d *Driver) windowOffset(r Register, cwp int) uint32 {
	nw := uint32(d.cfg.NWindows)
	w := uint32(cwp) * 64
	switch {
	case r < RegO0:
		return nw*64 + uint32(r-RegG0)*4
	case r < RegL0:
		return (w + 32 + uint32(r-RegO0)*4) % (nw * 64)
	case r < RegI0:
		return (w + 64 + uint32(r-RegL0)*4) % (nw * 64)
	}
	return (w + 96 + uint32(r-RegI0)*4) % (nw * 64)
}

// registerOffset maps a register to its DSU offset. Windowed registers need
// the current PSR.
func (d *Driver) registerOffset(ctx context.Context, r Register) (uint32, error) {
	if r < 0 || r >= numRegisters {
		return 0, errors.NotValidf("register %d", int(r))
	}
	if r >= RegASR16 {
		return d.cfg.Regs.asr(16 + int(r-RegASR16)), nil
	}
	if r >= RegY {
		return d.cfg.Regs.Special + uint32(r-RegY)*4, nil
	}
	if r < RegO0 {
		return d.cfg.Regs.RegFile + d.windowOffset(r, 0), nil
	}
	psr, err := d.readReg(ctx, d.cfg.Regs.Special+uint32(RegPSR-RegY)*4)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read PSR")
	}
	if cwp(psr) >= d.cfg.NWindows {
		return 0, errors.NotValidf("CWP %d with %d windows", cwp(psr), d.cfg.NWindows)
	}
	return d.cfg.Regs.RegFile + d.windowOffset(r, cwp(psr)), nil
}

func (d *Driver) ReadRegister(ctx context.Context, r Register) (uint32, error) {
	if err := d.requireHalted(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	if r == RegG0 {
		return 0, nil
	}
	off, err := d.registerOffset(ctx, r)
	if err != nil {
		return 0, errors.Trace(err)
	}
	v, err := d.readReg(ctx, off)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read %%%s", r)
	}
	return v, nil
}

// WriteRegister sets a register. Writes to %g0 are ignored.
func (d *Driver) WriteRegister(ctx context.Context, r Register, v uint32) error {
	if err := d.requireHalted(ctx); err != nil {
		return errors.Trace(err)
	}
	if r == RegG0 {
		return nil
	}
	off, err := d.registerOffset(ctx, r)
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.writeReg(ctx, off, v); err != nil {
		return errors.Annotatef(err, "failed to write %%%s", r)
	}
	return nil
}

// ReadRegisters reads the special registers, the whole register file and the
// ancillary state registers in three block transfers.
func (d *Driver) ReadRegisters(ctx context.Context) (*RegFile, error) {
	if err := d.requireHalted(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	sp, err := d.mem.ReadTargetMem(ctx, d.base+d.cfg.Regs.Special, 8)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read special registers")
	}
	rf := &RegFile{Y: sp[0], PSR: sp[1], WIM: sp[2], TBR: sp[3], PC: sp[4], NPC: sp[5], FSR: sp[6], CPSR: sp[7]}
	w := cwp(rf.PSR)
	if w >= d.cfg.NWindows {
		return nil, errors.NotValidf("CWP %d with %d windows", w, d.cfg.NWindows)
	}
	words, err := d.mem.ReadTargetMem(ctx, d.base+d.cfg.Regs.RegFile, d.cfg.NWindows*16+8)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read register file")
	}
	for i := 0; i < 8; i++ {
		rf.Globals[i] = words[d.windowOffset(RegG0+Register(i), w)/4]
		rf.Outs[i] = words[d.windowOffset(RegO0+Register(i), w)/4]
		rf.Locals[i] = words[d.windowOffset(RegL0+Register(i), w)/4]
		rf.Ins[i] = words[d.windowOffset(RegI0+Register(i), w)/4]
	}
	rf.Globals[0] = 0
	asr, err := d.mem.ReadTargetMem(ctx, d.base+d.cfg.Regs.ASR16, len(rf.ASR))
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read ancillary state registers")
	}
	copy(rf.ASR[:], asr)
	return rf, nil
}

func (d *Driver) GetPC(ctx context.Context) (uint32, error) {
	return d.ReadRegister(ctx, RegPC)
}
