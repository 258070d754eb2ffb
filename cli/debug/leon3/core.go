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
package leon3

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/dsu3"
)

// Core is a checked-out handle for one LEON3 core. All of its state lives in
// the session, so handles can be released and re-attached freely.
type Core struct {
	s        *Session
	d        *dsu3.Driver
	released bool
}

var _ common.Core = (*Core)(nil)

func (c *Core) check() error {
	if c.released {
		return errors.Annotatef(ErrReleased, "core %d", c.d.ID())
	}
	return nil
}

// Release returns the handle to the session. Releasing twice is harmless.
func (c *Core) Release() {
	if c.released {
		return
	}
	c.released = true
	c.s.release(c.d.ID())
}

func (c *Core) ID() int {
	return c.d.ID()
}

func (c *Core) Status(ctx context.Context) (common.CoreStatus, error) {
	if err := c.check(); err != nil {
		return common.CoreStatus{}, errors.Trace(err)
	}
	return c.d.Status(ctx)
}

func (c *Core) Halt(ctx context.Context) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.d.Halt(ctx)
}

func (c *Core) Resume(ctx context.Context) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.d.Resume(ctx)
}

func (c *Core) Step(ctx context.Context) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.d.Step(ctx)
}

func (c *Core) GetReg(ctx context.Context, name string) (uint32, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	r, err := dsu3.ParseRegister(name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return c.d.ReadRegister(ctx, r)
}

func (c *Core) SetReg(ctx context.Context, name string, value uint32) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	r, err := dsu3.ParseRegister(name)
	if err != nil {
		return errors.Trace(err)
	}
	return c.d.WriteRegister(ctx, r, value)
}

func (c *Core) GetPC(ctx context.Context) (uint32, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.d.GetPC(ctx)
}

func (c *Core) ReadRegisters(ctx context.Context) (*dsu3.RegFile, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.d.ReadRegisters(ctx)
}

func (c *Core) SetBreakpoint(ctx context.Context, addr uint32) (int, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.d.SetBreakpoint(ctx, addr)
}

func (c *Core) ClearBreakpoint(ctx context.Context, slot int) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.d.ClearBreakpoint(ctx, slot)
}

func (c *Core) Breakpoints() []common.Breakpoint {
	if c.released {
		return nil
	}
	return c.d.Breakpoints()
}

func (c *Core) ReadInstructionTrace(ctx context.Context, max int) ([]dsu3.InstructionEntry, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.d.ReadInstructionTrace(ctx, max)
}

func (c *Core) ReadInstructionTraceSince(ctx context.Context) ([]dsu3.InstructionEntry, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.d.ReadInstructionTraceSince(ctx)
}

func (c *Core) ReadAHBTrace(ctx context.Context, max int) ([]dsu3.AHBEntry, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.d.ReadAHBTrace(ctx, max)
}

func (c *Core) ReadAHBTraceSince(ctx context.Context) ([]dsu3.AHBEntry, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.d.ReadAHBTraceSince(ctx)
}

func (c *Core) EnableTrace(ctx context.Context, instr, ahb bool) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.d.EnableTrace(ctx, instr, ahb)
}

func (c *Core) ReadTimeTag(ctx context.Context) (uint32, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.d.ReadTimeTag(ctx)
}

func (c *Core) ReadTarget8(ctx context.Context, addr uint32) (uint8, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.s.mem.ReadTarget8(ctx, addr)
}

func (c *Core) ReadTarget16(ctx context.Context, addr uint32) (uint16, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.s.mem.ReadTarget16(ctx, addr)
}

func (c *Core) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	if err := c.check(); err != nil {
		return 0, errors.Trace(err)
	}
	return c.s.mem.ReadTargetReg(ctx, addr)
}

func (c *Core) ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.s.mem.ReadTargetMem(ctx, addr, length)
}

func (c *Core) WriteTarget8(ctx context.Context, addr uint32, value uint8) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTarget8(ctx, addr, value)
}

func (c *Core) WriteTarget16(ctx context.Context, addr uint32, value uint16) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTarget16(ctx, addr, value)
}

func (c *Core) WriteTargetReg(ctx context.Context, addr uint32, value uint32) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTargetReg(ctx, addr, value)
}

func (c *Core) WriteTargetMem(ctx context.Context, addr uint32, data []uint32) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTargetMem(ctx, addr, data)
}

func (c *Core) ReadTargetMem64(ctx context.Context, addr uint32, length int) ([]uint64, error) {
	if err := c.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.s.mem.ReadTargetMem64(ctx, addr, length)
}

func (c *Core) WriteTargetMem64(ctx context.Context, addr uint32, data []uint64) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTargetMem64(ctx, addr, data)
}

func (c *Core) ReadTargetBytes(ctx context.Context, addr uint32, data []byte) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.ReadTargetBytes(ctx, addr, data)
}

func (c *Core) WriteTargetBytes(ctx context.Context, addr uint32, data []byte) error {
	if err := c.check(); err != nil {
		return errors.Trace(err)
	}
	return c.s.mem.WriteTargetBytes(ctx, addr, data)
}
