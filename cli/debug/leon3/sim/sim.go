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
// Package sim simulates a LEON3 system-on-chip as seen through an AHBJTAG
// TAP: AHB memory, the Plug&Play configuration area and a DSU3 with one or
// more cores, trace buffers and IU watchpoints. It implements jtag.Transport
// and is used as a stand-in target by the command line tool and in tests.
package sim

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag"
)

type Config struct {
	Family string
	Cores  int

	RAMBase uint32
	RAMSize uint32
	APBBase uint32
	DSUBase uint32

	// Latency is the number of DDATA captures that report "not ready" before
	// each AHB access completes.
	Latency int
	// StepLatency and HaltLatency are numbers of DSU control register reads
	// that still report the core out of debug mode after a step or halt request.
	StepLatency int
	HaltLatency int

	NWindows    int
	Watchpoints int
	ITraceLines int
	ATraceLines int

	StartHalted bool
	ResetPC     uint32
}

func DefaultConfig() Config {
	return Config{
		Family:      "xilinx",
		Cores:       1,
		RAMBase:     0x40000000,
		RAMSize:     0x04000000,
		APBBase:     0x80000000,
		DSUBase:     0x90000000,
		NWindows:    8,
		Watchpoints: 2,
		ITraceLines: 256,
		ATraceLines: 256,
		ResetPC:     0x40000000,
	}
}

const (
	adataLen = 35
	ddataLen = 33
	seqBit   = uint64(1) << 32

	dsuCoreStride = 0x1000000
)

type txn struct {
	active bool
	addr   uint32
	size   uint8
	write  bool
	wait   int
}

type System struct {
	mu sync.Mutex

	cfg Config
	fam jtag.Family

	ir  uint32
	cur txn
	nak int

	rom map[uint32]uint32
	mem map[uint32]uint32

	cores   []*Core
	brss    uint32
	dbgm    uint32
	timeTag uint32

	atraceCtrl uint32
	atrace     [][4]uint32
	atracePtr  int

	// Counters for tests and the CLI.
	IRWrites    int
	DDATAShifts int
	Starts      []Start
}

// Start records one ADATA shift.
type Start struct {
	Addr  uint32
	Size  uint8
	Write bool
}

func New(cfg Config) (*System, error) {
	fam, err := jtag.LookupFamily(cfg.Family)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Cores < 1 || cfg.Cores > 16 {
		return nil, errors.NotValidf("number of cores %d", cfg.Cores)
	}
	if cfg.Watchpoints < 0 || cfg.Watchpoints > 4 {
		return nil, errors.NotValidf("number of watchpoints %d", cfg.Watchpoints)
	}
	if cfg.NWindows < 2 || cfg.NWindows > 32 {
		return nil, errors.NotValidf("number of register windows %d", cfg.NWindows)
	}
	if cfg.ITraceLines <= 0 || cfg.ATraceLines <= 0 {
		return nil, errors.NotValidf("trace buffer size")
	}
	s := &System{
		cfg:    cfg,
		fam:    fam,
		rom:    make(map[uint32]uint32),
		mem:    make(map[uint32]uint32),
		atrace: make([][4]uint32, cfg.ATraceLines),
	}
	for i := 0; i < cfg.Cores; i++ {
		c := newCore(s, i)
		if cfg.StartHalted {
			c.enterDebug(0x0b)
		}
		s.cores = append(s.cores, c)
	}
	s.buildPlugAndPlay()
	glog.V(1).Infof("sim: %d core(s), RAM 0x%08x-0x%08x, DSU at 0x%08x",
		cfg.Cores, cfg.RAMBase, cfg.RAMBase+cfg.RAMSize-1, cfg.DSUBase)
	return s, nil
}

func (s *System) Config() Config {
	return s.cfg
}

func (s *System) Core(i int) *Core {
	return s.cores[i]
}

// InjectWait makes the next n DDATA captures report "not ready".
func (s *System) InjectWait(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nak = n
}

// Peek returns a memory word bypassing the JTAG path.
func (s *System) Peek(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readWord(addr &^ 3)
}

// Poke sets a memory word bypassing the JTAG path. Plug&Play ROM words can be
// replaced this way too.
func (s *System) Poke(addr, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr &^= 3
	if _, ok := s.rom[addr]; ok || s.inPlugAndPlay(addr) {
		s.rom[addr] = value
		return
	}
	s.writeWord(addr, value, 0xffffffff)
}

// Run lets core i execute up to n instructions if it is running and returns
// the number executed. Execution stops at a watchpoint.
func (s *System) Run(i, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cores[i]
	done := 0
	for ; done < n && !c.debug && !c.haltMode && !c.powerDown; done++ {
		if c.hitWatchpoint() {
			c.enterDebug(0x0b)
			break
		}
		c.execute()
	}
	return done
}

// PowerDown puts core i into power-down mode. It stops executing until a
// break request takes it into debug mode.
func (s *System) PowerDown(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cores[i].powerDown = true
}

// HaltMode stops core i in halt mode with the given trap type. The core
// does not enter debug mode.
func (s *System) HaltMode(i int, tt uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cores[i]
	c.haltMode = true
	c.tt = tt
}

// Trap forces core i into debug mode with the given trap type.
func (s *System) Trap(i int, tt uint8, errorMode bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cores[i]
	c.errorMode = errorMode
	c.enterDebug(tt)
}

func (s *System) WriteIR(ctx context.Context, ir uint32, irLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if irLen != s.fam.IRLen {
		return errors.Errorf("IR length mismatch: got %d, want %d", irLen, s.fam.IRLen)
	}
	s.ir = ir
	s.IRWrites++
	return nil
}

func (s *System) ShiftDR(ctx context.Context, data uint64, bits int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.ir {
	case s.fam.ADATACode():
		if bits != adataLen {
			return 0, errors.Errorf("ADATA is %d bits, got %d", adataLen, bits)
		}
		s.start(data)
		return 0, nil
	case s.fam.DDATACode():
		if bits != ddataLen {
			return 0, errors.Errorf("DDATA is %d bits, got %d", ddataLen, bits)
		}
		s.DDATAShifts++
		return s.ddata(data), nil
	}
	// BYPASS
	return 0, nil
}

func (s *System) start(adata uint64) {
	s.cur = txn{
		active: true,
		addr:   uint32(adata),
		size:   uint8(adata>>32) & 3,
		write:  adata&(1<<34) != 0,
		wait:   s.cfg.Latency,
	}
	s.Starts = append(s.Starts, Start{Addr: s.cur.addr, Size: s.cur.size, Write: s.cur.write})
	if s.cur.size == 3 {
		// Reserved size, the bus never answers.
		glog.Errorf("sim: reserved transfer size at 0x%08x", s.cur.addr)
		s.cur.active = false
	}
}

func (s *System) ddata(in uint64) uint64 {
	if !s.cur.active {
		return 0
	}
	if s.nak > 0 {
		s.nak--
		return 0
	}
	if s.cur.wait > 0 {
		s.cur.wait--
		return 0
	}
	mask := laneMask(s.cur.addr, s.cur.size)
	aligned := s.cur.addr &^ 3
	var out uint64
	if s.cur.write {
		s.writeWord(aligned, uint32(in), mask)
		s.traceAHB(aligned, uint32(in)&mask, true, s.cur.size)
		out = seqBit
	} else {
		v := s.readWord(aligned) & mask
		s.traceAHB(aligned, v, false, s.cur.size)
		out = seqBit | uint64(v)
	}
	if in&seqBit != 0 {
		s.cur.addr += 4
		s.cur.wait = s.cfg.Latency
	} else {
		s.cur.active = false
	}
	return out
}

func laneMask(addr uint32, size uint8) uint32 {
	switch size {
	case 0:
		return 0xff << (8 * (3 - addr&3))
	case 1:
		return 0xffff << (8 * (2 - addr&2))
	}
	return 0xffffffff
}

func (s *System) inDSU(addr uint32) bool {
	return addr >= s.cfg.DSUBase && addr-s.cfg.DSUBase < uint32(len(s.cores))*dsuCoreStride
}

func (s *System) readWord(addr uint32) uint32 {
	if v, ok := s.rom[addr]; ok {
		return v
	}
	if s.inDSU(addr) {
		off := addr - s.cfg.DSUBase
		return s.cores[off/dsuCoreStride].readReg(off % dsuCoreStride)
	}
	return s.mem[addr]
}

func (s *System) writeWord(addr, value, mask uint32) {
	if _, ok := s.rom[addr]; ok {
		return
	}
	if s.inDSU(addr) {
		off := addr - s.cfg.DSUBase
		c := s.cores[off/dsuCoreStride]
		old := c.readRegRaw(off % dsuCoreStride)
		c.writeReg(off%dsuCoreStride, old&^mask|value&mask)
		return
	}
	s.mem[addr] = s.mem[addr]&^mask | value&mask
}

func (s *System) inRAM(addr uint32) bool {
	return addr >= s.cfg.RAMBase && addr-s.cfg.RAMBase < s.cfg.RAMSize
}

// traceAHB records a RAM access in the AHB trace buffer when tracing is enabled.
func (s *System) traceAHB(addr, data uint32, write bool, size uint8) {
	if s.atraceCtrl&1 == 0 || !s.inRAM(addr) {
		return
	}
	var w1 uint32
	if write {
		w1 |= 1 << 15
	}
	w1 |= 2 << 13 // NONSEQ
	w1 |= uint32(size) << 10
	w1 |= uint32(len(s.cores)) << 3 // AHBJTAG master index
	s.atrace[s.atracePtr] = [4]uint32{s.timeTag & 0x3fffffff, w1, data, addr}
	s.atracePtr = (s.atracePtr + 1) % len(s.atrace)
	s.timeTag++
}
