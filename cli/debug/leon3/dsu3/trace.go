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

	"github.com/golang/glog"
	"github.com/juju/errors"
)

const (
	traceLineWords = 4
	timeTagMask    = 0x3fffffff
)

// InstructionEntry is one line of the instruction trace buffer.
type InstructionEntry struct {
	TimeTag    uint32
	MultiCycle bool
	Result     uint32
	PC         uint32
	Trap       bool
	ErrorMode  bool
	Opcode     uint32
}

func decodeInstruction(l []uint32) InstructionEntry {
	return InstructionEntry{
		TimeTag:    l[0] & timeTagMask,
		MultiCycle: l[0]&(1<<30) != 0,
		Result:     l[1],
		PC:         l[2] &^ 3,
		Trap:       l[2]&2 != 0,
		ErrorMode:  l[2]&1 != 0,
		Opcode:     l[3],
	}
}

func (e InstructionEntry) String() string {
	s := fmt.Sprintf("%10d  %08x  %08x  [%08x]", e.TimeTag, e.PC, e.Opcode, e.Result)
	if e.Trap {
		s += "  trap"
	}
	if e.ErrorMode {
		s += "  error mode"
	}
	return s
}

// AHBEntry is one line of the AHB trace buffer.
type AHBEntry struct {
	TimeTag    uint32
	Breakpoint bool
	IRQ        uint16
	Write      bool
	Trans      uint8
	Size       uint8
	Burst      uint8
	Master     uint8
	Lock       bool
	Resp       uint8
	Data       uint32
	Addr       uint32
}

func decodeAHB(l []uint32) AHBEntry {
	return AHBEntry{
		TimeTag:    l[0] & timeTagMask,
		Breakpoint: l[0]&(1<<31) != 0,
		IRQ:        uint16(l[1] >> 16),
		Write:      l[1]&(1<<15) != 0,
		Trans:      uint8(l[1]>>13) & 3,
		Size:       uint8(l[1]>>10) & 7,
		Burst:      uint8(l[1]>>7) & 7,
		Master:     uint8(l[1]>>3) & 0xf,
		Lock:       l[1]&(1<<2) != 0,
		Resp:       uint8(l[1]) & 3,
		Data:       l[2],
		Addr:       l[3],
	}
}

func (e AHBEntry) String() string {
	dir := "read "
	if e.Write {
		dir = "write"
	}
	s := fmt.Sprintf("%10d  %08x  %s  %08x  %d  %d  %d  %d", e.TimeTag, e.Addr, dir, e.Data, e.Trans, e.Size, e.Burst, e.Master)
	if e.Breakpoint {
		s += "  bp"
	}
	return s
}

type traceBuf struct {
	name  string
	buf   uint32
	depth int
}

// readLines reads the n lines written most recently before ptr, oldest
// first. Lines that were never written (all zero) are skipped.
func (d *Driver) readLines(ctx context.Context, tb traceBuf, ptr, n int) ([][]uint32, error) {
	start := (ptr - n + tb.depth) % tb.depth
	var words []uint32
	for n > 0 {
		cnt := n
		if start+cnt > tb.depth {
			cnt = tb.depth - start
		}
		w, err := d.mem.ReadTargetMem(ctx, d.base+tb.buf+uint32(start*16), cnt*traceLineWords)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read %s trace", tb.name)
		}
		words = append(words, w...)
		start = (start + cnt) % tb.depth
		n -= cnt
	}
	var res [][]uint32
	for i := 0; i+traceLineWords <= len(words); i += traceLineWords {
		l := words[i : i+traceLineWords]
		if l[0]|l[1]|l[2]|l[3] == 0 {
			continue
		}
		res = append(res, l)
	}
	glog.V(3).Infof("%s trace: %d line(s) before %d", tb.name, len(res), ptr)
	return res, nil
}

func clampLines(max, depth int) int {
	if max <= 0 || max > depth {
		return depth
	}
	return max
}

func (d *Driver) itrace() traceBuf {
	return traceBuf{name: "instruction", buf: d.cfg.Regs.ITrace, depth: d.cfg.ITraceLines}
}

func (d *Driver) atrace() traceBuf {
	return traceBuf{name: "AHB", buf: d.cfg.Regs.ATrace, depth: d.cfg.ATraceLines}
}

func (d *Driver) itracePtr(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, d.cfg.Regs.ITraceCtrl)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read instruction trace pointer")
	}
	return int(v&0xffff) % d.cfg.ITraceLines, nil
}

func (d *Driver) atracePtr(ctx context.Context) (int, error) {
	v, err := d.readReg(ctx, d.cfg.Regs.ATraceIndex)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read AHB trace index")
	}
	return int(v>>4) % d.cfg.ATraceLines, nil
}

// ReadInstructionTrace returns up to max of the most recent instruction trace
// lines, oldest first. max <= 0 means the whole buffer.
func (d *Driver) ReadInstructionTrace(ctx context.Context, max int) ([]InstructionEntry, error) {
	ptr, err := d.itracePtr(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return d.instructionLines(ctx, ptr, clampLines(max, d.cfg.ITraceLines))
}

// ReadInstructionTraceSince returns the instruction trace lines written since
// the previous readback.
func (d *Driver) ReadInstructionTraceSince(ctx context.Context) ([]InstructionEntry, error) {
	ptr, err := d.itracePtr(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	n := (ptr - d.st.ITraceCursor + d.cfg.ITraceLines) % d.cfg.ITraceLines
	return d.instructionLines(ctx, ptr, n)
}

func (d *Driver) instructionLines(ctx context.Context, ptr, n int) ([]InstructionEntry, error) {
	var res []InstructionEntry
	if n > 0 {
		lines, err := d.readLines(ctx, d.itrace(), ptr, n)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, l := range lines {
			res = append(res, decodeInstruction(l))
		}
	}
	d.st.ITraceCursor = ptr
	return res, nil
}

// ReadAHBTrace returns up to max of the most recent AHB trace lines, oldest
// first. max <= 0 means the whole buffer.
func (d *Driver) ReadAHBTrace(ctx context.Context, max int) ([]AHBEntry, error) {
	ptr, err := d.atracePtr(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return d.ahbLines(ctx, ptr, clampLines(max, d.cfg.ATraceLines))
}

// ReadAHBTraceSince returns the AHB trace lines written since the previous
// readback.
func (d *Driver) ReadAHBTraceSince(ctx context.Context) ([]AHBEntry, error) {
	ptr, err := d.atracePtr(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	n := (ptr - d.st.ATraceCursor + d.cfg.ATraceLines) % d.cfg.ATraceLines
	return d.ahbLines(ctx, ptr, n)
}

func (d *Driver) ahbLines(ctx context.Context, ptr, n int) ([]AHBEntry, error) {
	var res []AHBEntry
	if n > 0 {
		lines, err := d.readLines(ctx, d.atrace(), ptr, n)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, l := range lines {
			res = append(res, decodeAHB(l))
		}
	}
	d.st.ATraceCursor = ptr
	return res, nil
}
