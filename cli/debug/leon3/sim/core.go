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
package sim

const (
	ctrlWritable = 0x3f // TE BE BW BS BX BZ
	ctrlBW       = 1 << 2
	ctrlDM       = 1 << 6
	ctrlPE       = 1 << 9
	ctrlHL       = 1 << 10
	ctrlPW       = 1 << 11

	offCtrl       = 0x000000
	offTimeTag    = 0x000008
	offBRSS       = 0x000020
	offDBGM       = 0x000024
	offATraceCtrl = 0x000040
	offATraceIdx  = 0x000044
	offITB        = 0x100000
	offITBCtrl    = 0x110000
	offATrace     = 0x200000
	offRegFile    = 0x300000
	offSpecial    = 0x400000
	offDTR        = 0x400020
	offASI        = 0x400024
	offASR16      = 0x400040
)

// Core is one simulated LEON3 integer unit together with its DSU window.
type Core struct {
	s  *System
	id int

	ctrl      uint32
	debug     bool
	errorMode bool
	tt        uint8
	hideDM    int
	// haltMode is HL without debug mode, powerDown is PW.
	haltMode  bool
	powerDown bool

	// Y PSR WIM TBR PC NPC FSR CPSR
	special [8]uint32
	asi     uint32
	asr     [16]uint32
	regs    []uint32

	itb    [][4]uint32
	itbPtr int
}

func newCore(s *System, id int) *Core {
	c := &Core{
		s:    s,
		id:   id,
		regs: make([]uint32, s.cfg.NWindows*16+8),
		itb:  make([][4]uint32, s.cfg.ITraceLines),
	}
	c.special[1] = 0xf30000e0
	c.special[4] = s.cfg.ResetPC
	c.special[5] = s.cfg.ResetPC + 4
	return c
}

func (c *Core) PC() uint32 {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.special[4]
}

func (c *Core) InDebugMode() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.debug
}

func (c *Core) enterDebug(tt uint8) {
	c.debug = true
	c.powerDown = false
	c.tt = tt
	c.s.brss |= 1 << uint(c.id)
}

func (c *Core) resume() {
	c.debug = false
	c.errorMode = false
	c.s.brss &^= 1 << uint(c.id)
}

func (c *Core) step() {
	c.execute()
	c.enterDebug(0x0b)
	c.hideDM = c.s.cfg.StepLatency
}

func (c *Core) execute() {
	pc := c.special[4]
	op := c.s.readWord(pc &^ 3)
	c.itb[c.itbPtr] = [4]uint32{c.s.timeTag & 0x3fffffff, 0, pc &^ 3, op}
	c.itbPtr = (c.itbPtr + 1) % len(c.itb)
	c.special[4], c.special[5] = c.special[5], c.special[5]+4
	c.s.timeTag++
}

func (c *Core) hitWatchpoint() bool {
	pc := c.special[4]
	for i := 0; i < c.s.cfg.Watchpoints; i++ {
		addr := c.asr[24+2*i-16]
		mask := c.asr[25+2*i-16]
		if addr&1 != 0 && (pc^addr)&mask&^3 == 0 {
			return true
		}
	}
	return false
}

func (c *Core) readReg(off uint32) uint32 {
	v := c.readRegRaw(off)
	if off == offCtrl && c.hideDM > 0 {
		c.hideDM--
	}
	return v
}

func (c *Core) readRegRaw(off uint32) uint32 {
	s := c.s
	switch {
	case off == offCtrl:
		v := c.ctrl
		if c.debug && c.hideDM == 0 {
			v |= ctrlDM
		}
		if c.errorMode {
			v |= ctrlPE
		}
		if c.haltMode {
			v |= ctrlHL
		}
		if c.powerDown {
			v |= ctrlPW
		}
		return v
	case off == offTimeTag:
		return s.timeTag
	case off == offBRSS && c.id == 0:
		return s.brss
	case off == offDBGM && c.id == 0:
		return s.dbgm
	case off == offATraceCtrl:
		return s.atraceCtrl
	case off == offATraceIdx:
		return uint32(s.atracePtr) << 4
	case off >= offITB && off < offITB+uint32(len(c.itb))*16:
		return c.itb[(off-offITB)/16][(off/4)%4]
	case off == offITBCtrl:
		return uint32(c.itbPtr)
	case off >= offATrace && off < offATrace+uint32(len(s.atrace))*16:
		return s.atrace[(off-offATrace)/16][(off/4)%4]
	case off >= offRegFile && off < offRegFile+uint32(len(c.regs))*4:
		return c.regs[(off-offRegFile)/4]
	case off >= offSpecial && off < offDTR:
		return c.special[(off-offSpecial)/4]
	case off == offDTR:
		v := uint32(c.tt) << 4
		if c.errorMode {
			v |= 1 << 12
		}
		return v
	case off == offASI:
		return c.asi
	case off >= offASR16 && off < offASR16+16*4:
		return c.asr[(off-offASR16)/4]
	}
	return 0
}

func (c *Core) writeReg(off, v uint32) {
	s := c.s
	switch {
	case off == offCtrl:
		c.ctrl = v & ctrlWritable
	case off == offTimeTag:
		s.timeTag = v
	case off == offBRSS && c.id == 0:
		s.writeBRSS(v)
	case off == offDBGM && c.id == 0:
		s.dbgm = v
	case off == offATraceCtrl:
		s.atraceCtrl = v & 3
	case off == offATraceIdx:
		s.atracePtr = int(v>>4) % len(s.atrace)
	case off >= offITB && off < offITB+uint32(len(c.itb))*16:
		c.itb[(off-offITB)/16][(off/4)%4] = v
	case off == offITBCtrl:
		c.itbPtr = int(v&0xffff) % len(c.itb)
	case off >= offATrace && off < offATrace+uint32(len(s.atrace))*16:
		s.atrace[(off-offATrace)/16][(off/4)%4] = v
	case off >= offRegFile && off < offRegFile+uint32(len(c.regs))*4:
		c.regs[(off-offRegFile)/4] = v
	case off >= offSpecial && off < offDTR:
		c.special[(off-offSpecial)/4] = v
	case off == offASI:
		c.asi = v
	case off >= offASR16 && off < offASR16+16*4:
		c.asr[(off-offASR16)/4] = v
	}
}

// writeBRSS acts on edges of the break-now bits: a falling edge releases a
// core in debug mode (for one instruction if its single-step bit is set), a
// rising edge halts a running core when break-on-BN is enabled.
func (s *System) writeBRSS(v uint32) {
	old := s.brss
	s.brss = v
	for i, c := range s.cores {
		bn := uint32(1) << uint(i)
		ss := uint32(1) << uint(16+i)
		switch {
		case c.debug && old&bn != 0 && v&bn == 0:
			if v&ss != 0 {
				c.step()
			} else {
				c.resume()
			}
		case !c.debug && old&bn == 0 && v&bn != 0 && c.ctrl&ctrlBW != 0:
			c.enterDebug(0x0b)
			c.hideDM = s.cfg.HaltLatency
		}
	}
}
