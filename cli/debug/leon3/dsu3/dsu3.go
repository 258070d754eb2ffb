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
// Package dsu3 drives the GRLIB LEON3 Debug Support Unit: run control,
// hardware breakpoints, IU register access and trace buffer readback.
// All accesses go through a memory-mapped register window found by
// Plug&Play.
package dsu3

import (
	"context"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/plugnplay"
)

var (
	ErrStepTimeout      = errors.New("single step did not complete")
	ErrHaltTimeout      = errors.New("core did not enter debug mode")
	ErrNoFreeBreakpoint = errors.New("no free hardware breakpoint")
	ErrCoreNotHalted    = errors.New("core is not halted")
	ErrNotFound         = errors.New("DSU3 not found")
)

// DSU control register bits.
const (
	ctrlTE = 1 << 0  // trace enable
	ctrlBE = 1 << 1  // break on error
	ctrlBW = 1 << 2  // break on IU watchpoint
	ctrlBS = 1 << 3  // break on s/w breakpoint
	ctrlBX = 1 << 4  // break on any trap
	ctrlBZ = 1 << 5  // break on error trap
	ctrlDM = 1 << 6  // debug mode
	ctrlPE = 1 << 9  // processor error mode
	ctrlHL = 1 << 10 // halt
	ctrlPW = 1 << 11 // power down

	// Read-only status bits, never written back.
	ctrlStatus = ctrlDM | ctrlPE | ctrlHL | ctrlPW

	dtrEM = 1 << 12

	ttWatchpoint  = 0x0b
	ttSoftwareBP  = 0x81
	ahbTraceEN    = 1 << 0
	watchpointIF  = 1 << 0
	watchpointMsk = 0xfffffffc
)

// RegisterMap holds DSU register offsets relative to a per-core window.
type RegisterMap struct {
	CoreStride  uint32 `yaml:"core_stride"`
	Ctrl        uint32 `yaml:"ctrl"`
	TimeTag     uint32 `yaml:"time_tag"`
	BRSS        uint32 `yaml:"brss"`
	DBGM        uint32 `yaml:"dbgm"`
	ATraceCtrl  uint32 `yaml:"ahb_trace_ctrl"`
	ATraceIndex uint32 `yaml:"ahb_trace_index"`
	ITrace      uint32 `yaml:"itrace"`
	ITraceCtrl  uint32 `yaml:"itrace_ctrl"`
	ATrace      uint32 `yaml:"ahb_trace"`
	RegFile     uint32 `yaml:"regfile"`
	Special     uint32 `yaml:"special"`
	Trap        uint32 `yaml:"trap"`
	ASR16       uint32 `yaml:"asr16"`
}

// DefaultRegisterMap is the GRLIB DSU3 layout.
func DefaultRegisterMap() RegisterMap {
	return RegisterMap{
		CoreStride:  0x1000000,
		Ctrl:        0x000000,
		TimeTag:     0x000008,
		BRSS:        0x000020,
		DBGM:        0x000024,
		ATraceCtrl:  0x000040,
		ATraceIndex: 0x000044,
		ITrace:      0x100000,
		ITraceCtrl:  0x110000,
		ATrace:      0x200000,
		RegFile:     0x300000,
		Special:     0x400000,
		Trap:        0x400020,
		ASR16:       0x400040,
	}
}

func (m RegisterMap) Validate() error {
	for _, v := range []uint32{m.Ctrl, m.TimeTag, m.BRSS, m.DBGM, m.ATraceCtrl, m.ATraceIndex,
		m.ITrace, m.ITraceCtrl, m.ATrace, m.RegFile, m.Special, m.Trap, m.ASR16} {
		if v&3 != 0 || v >= m.CoreStride {
			return errors.NotValidf("register offset 0x%x", v)
		}
	}
	if m.CoreStride == 0 {
		return errors.NotValidf("zero core stride")
	}
	return nil
}

// asr returns the offset of ASR n (16..31).
func (m RegisterMap) asr(n int) uint32 {
	return m.ASR16 + uint32(4*(n-16))
}

type Config struct {
	Breakpoints int `yaml:"breakpoints"`
	NWindows    int `yaml:"nwindows"`
	HaltPolls   int `yaml:"halt_polls"`
	StepPolls   int `yaml:"step_polls"`
	ITraceLines int `yaml:"itrace_lines"`
	ATraceLines int `yaml:"atrace_lines"`
	// BreakOnTrap and BreakOnErrorTrap make the core enter debug mode on
	// any trap or on error traps only.
	BreakOnTrap      bool        `yaml:"break_on_trap"`
	BreakOnErrorTrap bool        `yaml:"break_on_error_trap"`
	Regs             RegisterMap `yaml:"regs"`
}

func DefaultConfig() Config {
	return Config{
		Breakpoints: 2,
		NWindows:    8,
		HaltPolls:   100,
		StepPolls:   100,
		ITraceLines: 256,
		ATraceLines: 256,
		Regs:        DefaultRegisterMap(),
	}
}

func (c Config) Validate() error {
	if c.Breakpoints < 0 || c.Breakpoints > 4 {
		return errors.NotValidf("number of breakpoints %d (0 to 4)", c.Breakpoints)
	}
	if c.NWindows < 2 || c.NWindows > 32 {
		return errors.NotValidf("number of register windows %d", c.NWindows)
	}
	if c.HaltPolls < 1 || c.StepPolls < 1 {
		return errors.NotValidf("poll counts %d/%d", c.HaltPolls, c.StepPolls)
	}
	if c.ITraceLines < 1 || c.ITraceLines > 0x10000 || c.ATraceLines < 1 || c.ATraceLines > 0x10000 {
		return errors.NotValidf("trace buffer depth %d/%d", c.ITraceLines, c.ATraceLines)
	}
	return errors.Trace(c.Regs.Validate())
}

// breakBits returns the DSU control break enables for the configuration.
func (c Config) breakBits() uint32 {
	v := uint32(ctrlBW | ctrlBS | ctrlBE)
	if c.BreakOnTrap {
		v |= ctrlBX
	}
	if c.BreakOnErrorTrap {
		v |= ctrlBZ
	}
	return v
}

// Window is the DSU register window of the whole system.
type Window struct {
	Base     uint32
	Size     uint64
	NumCores int
}

// Locate finds the DSU in the device table. The number of cores is the
// number of LEON3 processors on the AHB, at least one.
func Locate(dt *plugnplay.DeviceTable) (Window, error) {
	r, ok := dt.Find(plugnplay.VendorGaisler, plugnplay.DeviceLEON3DSU)
	if !ok || len(r.Banks) == 0 {
		return Window{}, errors.Trace(ErrNotFound)
	}
	n := 0
	for _, m := range dt.Masters() {
		if m.Is(plugnplay.VendorGaisler, plugnplay.DeviceLEON3) || m.Is(plugnplay.VendorGaisler, plugnplay.DeviceLEON3FT) {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	w := Window{Base: r.Banks[0].Start, Size: r.Banks[0].Size, NumCores: n}
	glog.V(1).Infof("DSU3 at 0x%08x, %d core(s)", w.Base, w.NumCores)
	return w, nil
}

type bpSlot struct {
	addr uint32
	set  bool
}

// CoreState is what the driver remembers about a core between attachments.
type CoreState struct {
	attached bool

	RunState   common.RunState
	HaltReason common.HaltReason
	TrapType   uint8

	// requested is the halt reason expected from our own break request.
	requested common.HaltReason
	bps       []bpSlot

	// Trace buffer positions as of the last readback.
	ITraceCursor int
	ATraceCursor int
}

func NewCoreState() *CoreState {
	return &CoreState{}
}

// Driver operates on one core. It carries no state of its own besides
// the CoreState it was attached with.
type Driver struct {
	mem  common.MemReaderWriter
	win  Window
	cfg  Config
	id   int
	base uint32
	st   *CoreState
}

// Attach binds a driver to core id. The first attachment of a CoreState
// enables breaking on watchpoints, software breakpoints and errors and loads
// the run state and breakpoint slots from the hardware.
func Attach(ctx context.Context, mem common.MemReaderWriter, win Window, id int, cfg Config, st *CoreState) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotatef(err, "invalid DSU3 config")
	}
	if id < 0 || id >= win.NumCores {
		return nil, errors.NotValidf("core %d (%d present)", id, win.NumCores)
	}
	if uint64(id+1)*uint64(cfg.Regs.CoreStride) > win.Size {
		return nil, errors.NotValidf("core %d outside the DSU window", id)
	}
	d := &Driver{
		mem:  mem,
		win:  win,
		cfg:  cfg,
		id:   id,
		base: win.Base + uint32(id)*cfg.Regs.CoreStride,
		st:   st,
	}
	if st.attached {
		return d, nil
	}
	ctrl, err := d.readReg(ctx, cfg.Regs.Ctrl)
	if err != nil {
		return nil, errors.Annotatef(err, "core %d: failed to read DSU control", id)
	}
	if err := d.writeReg(ctx, cfg.Regs.Ctrl, ctrl&^(ctrlStatus|ctrlBX|ctrlBZ)|cfg.breakBits()); err != nil {
		return nil, errors.Annotatef(err, "core %d: failed to set DSU control", id)
	}
	st.bps = make([]bpSlot, cfg.Breakpoints)
	for i := range st.bps {
		a, err := d.readReg(ctx, cfg.Regs.asr(24+2*i))
		if err != nil {
			return nil, errors.Annotatef(err, "core %d: failed to read watchpoint %d", id, i)
		}
		if a&watchpointIF != 0 {
			st.bps[i] = bpSlot{addr: a &^ 3, set: true}
		}
	}
	if err := d.update(ctx, ctrl); err != nil {
		return nil, errors.Trace(err)
	}
	st.attached = true
	glog.V(1).Infof("core %d attached, DSU window 0x%08x, %s", id, d.base, st.RunState)
	return d, nil
}

func (d *Driver) ID() int {
	return d.id
}

func (d *Driver) State() *CoreState {
	return d.st
}

func (d *Driver) readReg(ctx context.Context, off uint32) (uint32, error) {
	v, err := d.mem.ReadTargetReg(ctx, d.base+off)
	if err != nil {
		return 0, errors.Trace(err)
	}
	glog.V(4).Infof("DSU%d[0x%06x] -> 0x%08x", d.id, off, v)
	return v, nil
}

func (d *Driver) writeReg(ctx context.Context, off, v uint32) error {
	glog.V(4).Infof("DSU%d[0x%06x] <- 0x%08x", d.id, off, v)
	return errors.Trace(d.mem.WriteTargetReg(ctx, d.base+off, v))
}

// updateBRSS does a read-modify-write of the break and single step register,
// which lives in the core 0 window only.
func (d *Driver) updateBRSS(ctx context.Context, set, clear uint32) error {
	addr := d.win.Base + d.cfg.Regs.BRSS
	v, err := d.mem.ReadTargetReg(ctx, addr)
	if err != nil {
		return errors.Annotatef(err, "failed to read BRSS")
	}
	nv := v&^clear | set
	glog.V(4).Infof("BRSS 0x%08x -> 0x%08x", v, nv)
	if err := d.mem.WriteTargetReg(ctx, addr, nv); err != nil {
		return errors.Annotatef(err, "failed to write BRSS")
	}
	return nil
}

func (d *Driver) bnBit() uint32 { return 1 << uint(d.id) }
func (d *Driver) ssBit() uint32 { return 1 << uint(16+d.id) }

// update derives run state and halt reason from a DSU control value. Debug
// mode and halt mode both count as halted. Power-down is only reported
// outside of them.
func (d *Driver) update(ctx context.Context, ctrl uint32) error {
	st := d.st
	if ctrl&(ctrlDM|ctrlHL) == 0 {
		st.RunState = common.Running
		if ctrl&ctrlPW != 0 {
			st.RunState = common.Sleeping
		}
		st.HaltReason = common.HaltReasonNone
		st.TrapType = 0
		return nil
	}
	dtr, err := d.readReg(ctx, d.cfg.Regs.Trap)
	if err != nil {
		return errors.Annotatef(err, "failed to read DSU trap register")
	}
	tt := uint8(dtr >> 4)
	st.RunState = common.Halted
	st.TrapType = tt
	switch {
	case ctrl&ctrlPE != 0 || dtr&dtrEM != 0:
		st.HaltReason = common.HaltReasonException
	case st.requested != common.HaltReasonNone:
		st.HaltReason = st.requested
	case tt == ttWatchpoint || tt == ttSoftwareBP:
		st.HaltReason = common.HaltReasonBreakpoint
	default:
		st.HaltReason = common.HaltReasonTrap
	}
	return nil
}

func (d *Driver) status() common.CoreStatus {
	return common.CoreStatus{State: d.st.RunState, Reason: d.st.HaltReason, TrapType: d.st.TrapType}
}

// Status re-reads the DSU control register.
func (d *Driver) Status(ctx context.Context) (common.CoreStatus, error) {
	ctrl, err := d.readReg(ctx, d.cfg.Regs.Ctrl)
	if err != nil {
		return common.CoreStatus{}, errors.Annotatef(err, "core %d: status", d.id)
	}
	if err := d.update(ctx, ctrl); err != nil {
		return common.CoreStatus{}, errors.Trace(err)
	}
	return d.status(), nil
}

// pollDM reads DSU control up to n times until the core is in debug mode and
// returns the last value read.
func (d *Driver) pollDM(ctx context.Context, n int) (uint32, bool, error) {
	var ctrl uint32
	for i := 0; i < n; i++ {
		var err error
		ctrl, err = d.readReg(ctx, d.cfg.Regs.Ctrl)
		if err != nil {
			return 0, false, errors.Trace(err)
		}
		if ctrl&ctrlDM != 0 {
			glog.V(3).Infof("core %d in debug mode after %d poll(s)", d.id, i+1)
			return ctrl, true, nil
		}
	}
	return ctrl, false, nil
}

// Halt requests a break and waits for the core to enter debug mode.
func (d *Driver) Halt(ctx context.Context) error {
	if _, err := d.Status(ctx); err != nil {
		return errors.Trace(err)
	}
	if d.st.RunState == common.Halted {
		return nil
	}
	if err := d.updateBRSS(ctx, d.bnBit(), 0); err != nil {
		return errors.Annotatef(err, "core %d: halt failed", d.id)
	}
	d.st.requested = common.HaltReasonRequest
	ctrl, ok, err := d.pollDM(ctx, d.cfg.HaltPolls)
	if err != nil {
		return errors.Annotatef(err, "core %d: halt failed", d.id)
	}
	if err := d.update(ctx, ctrl); err != nil {
		return errors.Trace(err)
	}
	if !ok {
		d.st.requested = common.HaltReasonNone
		return errors.Annotatef(ErrHaltTimeout, "core %d after %d polls", d.id, d.cfg.HaltPolls)
	}
	glog.V(3).Infof("core %d halted", d.id)
	return nil
}

// Resume releases the core from debug mode. It does nothing if the core is
// not halted.
func (d *Driver) Resume(ctx context.Context) error {
	if _, err := d.Status(ctx); err != nil {
		return errors.Trace(err)
	}
	if d.st.RunState != common.Halted {
		return nil
	}
	if err := d.updateBRSS(ctx, 0, d.bnBit()|d.ssBit()); err != nil {
		return errors.Annotatef(err, "core %d: resume failed", d.id)
	}
	d.st.RunState = common.Running
	d.st.HaltReason = common.HaltReasonNone
	d.st.requested = common.HaltReasonNone
	glog.V(3).Infof("core %d resumed", d.id)
	return nil
}

// Step executes one instruction and parks the core in debug mode again.
func (d *Driver) Step(ctx context.Context) error {
	if err := d.requireHalted(ctx); err != nil {
		return errors.Trace(err)
	}
	d.st.RunState = common.SteppingInProgress
	if err := d.updateBRSS(ctx, d.ssBit(), d.bnBit()); err != nil {
		d.st.RunState = common.Halted
		return errors.Annotatef(err, "core %d: step failed", d.id)
	}
	ctrl, ok, err := d.pollDM(ctx, d.cfg.StepPolls)
	if err != nil {
		d.settle(ctx)
		return errors.Annotatef(err, "core %d: step failed", d.id)
	}
	if !ok {
		d.st.requested = common.HaltReasonNone
		if err := d.update(ctx, ctrl); err != nil {
			d.settle(ctx)
			return errors.Trace(err)
		}
		return errors.Annotatef(ErrStepTimeout, "core %d after %d polls", d.id, d.cfg.StepPolls)
	}
	if err := d.updateBRSS(ctx, d.bnBit(), d.ssBit()); err != nil {
		d.settle(ctx)
		return errors.Annotatef(err, "core %d: failed to re-park after step", d.id)
	}
	d.st.requested = common.HaltReasonStep
	if err := d.update(ctx, ctrl); err != nil {
		d.settle(ctx)
		return errors.Trace(err)
	}
	return nil
}

// settle replaces the stepping state after a failed step with what the
// hardware reports, or Halted if the hardware cannot be read.
func (d *Driver) settle(ctx context.Context) {
	d.st.requested = common.HaltReasonNone
	if _, err := d.Status(ctx); err != nil {
		glog.Errorf("core %d: state unknown after failed step: %s", d.id, err)
		d.st.RunState = common.Halted
	}
}

// requireHalted refreshes a cached non-halted state from the hardware, the
// core may have stopped on a breakpoint since it was last looked at.
func (d *Driver) requireHalted(ctx context.Context) error {
	if d.st.RunState != common.Halted {
		if _, err := d.Status(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	if d.st.RunState != common.Halted {
		return errors.Annotatef(ErrCoreNotHalted, "core %d is %s", d.id, d.st.RunState)
	}
	return nil
}

// SetBreakpoint programs an instruction fetch watchpoint at addr and returns
// its slot. Setting an address that already has a slot returns that slot.
func (d *Driver) SetBreakpoint(ctx context.Context, addr uint32) (int, error) {
	if err := d.requireHalted(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	addr &^= 3
	free := -1
	for i, bp := range d.st.bps {
		if bp.set && bp.addr == addr {
			return i, nil
		}
		if !bp.set && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return 0, errors.Annotatef(ErrNoFreeBreakpoint, "%d slot(s) in use", len(d.st.bps))
	}
	if err := d.writeReg(ctx, d.cfg.Regs.asr(25+2*free), watchpointMsk); err != nil {
		return 0, errors.Annotatef(err, "breakpoint set failed")
	}
	if err := d.writeReg(ctx, d.cfg.Regs.asr(24+2*free), addr|watchpointIF); err != nil {
		return 0, errors.Annotatef(err, "breakpoint set failed")
	}
	d.st.bps[free] = bpSlot{addr: addr, set: true}
	glog.V(3).Infof("core %d: breakpoint %d at 0x%08x", d.id, free, addr)
	return free, nil
}

// ClearBreakpoint frees a slot. Clearing a free slot does nothing.
func (d *Driver) ClearBreakpoint(ctx context.Context, slot int) error {
	if slot < 0 || slot >= len(d.st.bps) {
		return errors.NotValidf("breakpoint slot %d", slot)
	}
	if err := d.requireHalted(ctx); err != nil {
		return errors.Trace(err)
	}
	if !d.st.bps[slot].set {
		return nil
	}
	if err := d.writeReg(ctx, d.cfg.Regs.asr(24+2*slot), 0); err != nil {
		return errors.Annotatef(err, "breakpoint clear failed")
	}
	if err := d.writeReg(ctx, d.cfg.Regs.asr(25+2*slot), 0); err != nil {
		return errors.Annotatef(err, "breakpoint clear failed")
	}
	d.st.bps[slot] = bpSlot{}
	glog.V(3).Infof("core %d: breakpoint %d cleared", d.id, slot)
	return nil
}

func (d *Driver) Breakpoints() []common.Breakpoint {
	res := make([]common.Breakpoint, len(d.st.bps))
	for i, bp := range d.st.bps {
		res[i] = common.Breakpoint{Slot: i, Addr: bp.addr, Set: bp.set}
	}
	return res
}

// ReadTimeTag returns the DSU time tag counter.
func (d *Driver) ReadTimeTag(ctx context.Context) (uint32, error) {
	return d.readReg(ctx, d.cfg.Regs.TimeTag)
}

// EnableTrace switches the instruction and AHB trace buffers on or off.
func (d *Driver) EnableTrace(ctx context.Context, instr, ahb bool) error {
	ctrl, err := d.readReg(ctx, d.cfg.Regs.Ctrl)
	if err != nil {
		return errors.Trace(err)
	}
	ctrl &^= ctrlStatus
	if instr {
		ctrl |= ctrlTE
	} else {
		ctrl &^= ctrlTE
	}
	if err := d.writeReg(ctx, d.cfg.Regs.Ctrl, ctrl); err != nil {
		return errors.Trace(err)
	}
	var actrl uint32
	if ahb {
		actrl = ahbTraceEN
	}
	return errors.Trace(d.writeReg(ctx, d.cfg.Regs.ATraceCtrl, actrl))
}
