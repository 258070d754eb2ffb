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
package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/config"
	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/dsu3"
	"github.com/mongoose-os/leon3dbg/cli/flags"
	"github.com/mongoose-os/leon3dbg/cli/ourutil"
)

const (
	defaultDumpWords  = 16
	defaultTraceLines = 16
)

func (e *env) withCore(ctx context.Context, f func(c *leon3.Core) error) error {
	c, err := e.sess.Attach(ctx, e.core)
	if err != nil {
		return errors.Trace(err)
	}
	defer c.Release()
	return errors.Trace(f(c))
}

func formatStatus(st common.CoreStatus) string {
	if st.State != common.Halted {
		return st.State.String()
	}
	switch st.Reason {
	case common.HaltReasonTrap, common.HaltReasonBreakpoint:
		return fmt.Sprintf("halted (%s, tt 0x%02x)", st.Reason, st.TrapType)
	}
	return fmt.Sprintf("halted (%s)", st.Reason)
}

func scan(ctx context.Context, e *env, args []string) error {
	dt := e.sess.Devices()
	for _, r := range dt.Records {
		fmt.Fprintln(e.out, r)
	}
	for _, f := range dt.Failures {
		ourutil.Errorf(e.out, "%s", f)
	}
	return nil
}

func info(ctx context.Context, e *env, args []string) error {
	w := e.sess.Window()
	fmt.Fprintf(e.out, "DSU3:      0x%08x - 0x%08x, %d core(s)\n", w.Base, uint64(w.Base)+w.Size, w.NumCores)
	fmt.Fprintf(e.out, "JTAG:      %s, %s\n", *flags.Transport, e.cfg.AHBJTAG.Family)
	return e.withCore(ctx, func(c *leon3.Core) error {
		tt, err := c.ReadTimeTag(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		st, err := c.Status(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "Core %d:    %s, time tag %d\n", c.ID(), formatStatus(st), tt)
		s := e.sess.Stats()
		fmt.Fprintf(e.out, "AHB:       %d transactions, %d DR shifts, %d retries, %d timeouts\n",
			s.Transactions, s.Shifts, s.Retries, s.Timeouts)
		return nil
	})
}

func status(ctx context.Context, e *env, args []string) error {
	for i := 0; i < e.sess.NumCores(); i++ {
		err := e.sess.WithCore(ctx, i, func(c common.Core) error {
			st, err := c.Status(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			line := fmt.Sprintf("core %d: %s", i, formatStatus(st))
			if st.State == common.Halted {
				pc, err := c.GetPC(ctx)
				if err != nil {
					return errors.Trace(err)
				}
				line += fmt.Sprintf(" at 0x%08x", pc)
			}
			fmt.Fprintln(e.out, line)
			return nil
		})
		if err != nil {
			return errors.Annotatef(err, "core %d", i)
		}
	}
	return nil
}

func halt(ctx context.Context, e *env, args []string) error {
	return e.withCore(ctx, func(c *leon3.Core) error {
		if err := c.Halt(ctx); err != nil {
			return errors.Trace(err)
		}
		pc, err := c.GetPC(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		color.New(color.FgGreen).Fprintf(e.out, "core %d halted at 0x%08x\n", c.ID(), pc)
		return nil
	})
}

func resume(ctx context.Context, e *env, args []string) error {
	return e.withCore(ctx, func(c *leon3.Core) error {
		if err := c.Resume(ctx); err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "core %d running\n", c.ID())
		return nil
	})
}

func step(ctx context.Context, e *env, args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = ourutil.ParseInt(args[0]); err != nil {
			return errors.Trace(err)
		}
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		for i := 0; i < n; i++ {
			if err := c.Step(ctx); err != nil {
				return errors.Annotatef(err, "step %d", i+1)
			}
			pc, err := c.GetPC(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			fmt.Fprintf(e.out, "pc 0x%08x\n", pc)
		}
		return nil
	})
}

func regs(ctx context.Context, e *env, args []string) error {
	return e.withCore(ctx, func(c *leon3.Core) error {
		rf, err := c.ReadRegisters(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
		for i := dsu3.Register(0); i < 8; i++ {
			for _, r := range []dsu3.Register{dsu3.RegG0 + i, dsu3.RegO0 + i, dsu3.RegL0 + i, dsu3.RegI0 + i} {
				fmt.Fprintf(w, "%s\t%08x\t", r, rf.Get(r))
			}
			fmt.Fprintln(w)
		}
		for _, r := range dsu3.Registers()[dsu3.RegY:] {
			fmt.Fprintf(w, "%s\t%08x\n", r, rf.Get(r))
		}
		return errors.Trace(w.Flush())
	})
}

func reg(ctx context.Context, e *env, args []string) error {
	return e.withCore(ctx, func(c *leon3.Core) error {
		if len(args) > 1 {
			v, err := ourutil.ParseUint32(args[1])
			if err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(c.SetReg(ctx, args[0], v))
		}
		v, err := c.GetReg(ctx, args[0])
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "%s = 0x%08x\n", strings.ToLower(args[0]), v)
		return nil
	})
}

func bp(ctx context.Context, e *env, args []string) error {
	return e.withCore(ctx, func(c *leon3.Core) error {
		if len(args) == 0 {
			for _, b := range c.Breakpoints() {
				if b.Set {
					fmt.Fprintf(e.out, "%d: 0x%08x\n", b.Slot, b.Addr)
				} else {
					fmt.Fprintf(e.out, "%d: -\n", b.Slot)
				}
			}
			return nil
		}
		addr, err := ourutil.ParseUint32(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		slot, err := c.SetBreakpoint(ctx, addr)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "breakpoint %d at 0x%08x\n", slot, addr)
		return nil
	})
}

func bpClear(ctx context.Context, e *env, args []string) error {
	slot, err := ourutil.ParseInt(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		return errors.Trace(c.ClearBreakpoint(ctx, slot))
	})
}

func memRead(ctx context.Context, e *env, args []string) error {
	addr, err := ourutil.ParseUint32(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	n := defaultDumpWords
	if len(args) > 1 {
		if n, err = ourutil.ParseInt(args[1]); err != nil {
			return errors.Trace(err)
		}
	}
	if len(args) > 2 {
		switch args[2] {
		case "w":
		case "d":
			return e.withCore(ctx, func(c *leon3.Core) error {
				dwords, err := c.ReadTargetMem64(ctx, addr, n)
				if err != nil {
					return errors.Trace(err)
				}
				for i := 0; i < len(dwords); i += 2 {
					line := fmt.Sprintf("%08x:", addr+uint32(i*8))
					for j := i; j < i+2 && j < len(dwords); j++ {
						line += fmt.Sprintf(" %016x", dwords[j])
					}
					fmt.Fprintln(e.out, line)
				}
				return nil
			})
		default:
			return errors.NotValidf("access size %q", args[2])
		}
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		words, err := c.ReadTargetMem(ctx, addr, n)
		if err != nil {
			return errors.Trace(err)
		}
		for i := 0; i < len(words); i += 4 {
			line := fmt.Sprintf("%08x:", addr+uint32(i*4))
			for j := i; j < i+4 && j < len(words); j++ {
				line += fmt.Sprintf(" %08x", words[j])
			}
			fmt.Fprintln(e.out, line)
		}
		return nil
	})
}

func memWrite(ctx context.Context, e *env, args []string) error {
	addr, err := ourutil.ParseUint32(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	v, err := ourutil.ParseUint32(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	size := "w"
	if len(args) > 2 {
		size = args[2]
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		switch size {
		case "b":
			if v > 0xff {
				return errors.NotValidf("byte value 0x%x", v)
			}
			return errors.Trace(c.WriteTarget8(ctx, addr, uint8(v)))
		case "h":
			if v > 0xffff {
				return errors.NotValidf("half-word value 0x%x", v)
			}
			return errors.Trace(c.WriteTarget16(ctx, addr, uint16(v)))
		case "w":
			return errors.Trace(c.WriteTargetReg(ctx, addr, v))
		}
		return errors.NotValidf("access size %q", size)
	})
}

// load writes a file to memory. The tail is padded with zeroes to a whole word.
func load(ctx context.Context, e *env, args []string) error {
	addr, err := ourutil.ParseUint32(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	data, err := ioutil.ReadFile(args[1])
	if err != nil {
		return errors.Annotatef(err, "failed to read %s", args[1])
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(data, make([]byte, 4-pad)...)
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		if err := c.WriteTargetBytes(ctx, addr, data); err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "wrote %d bytes at 0x%08x\n", len(data), addr)
		return nil
	})
}

func save(ctx context.Context, e *env, args []string) error {
	addr, err := ourutil.ParseUint32(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	n, err := ourutil.ParseInt(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	if n < 0 {
		return errors.NotValidf("length %d", n)
	}
	data := make([]byte, (n+3)&^3)
	return e.withCore(ctx, func(c *leon3.Core) error {
		if err := c.ReadTargetBytes(ctx, addr, data); err != nil {
			return errors.Trace(err)
		}
		if err := ioutil.WriteFile(args[2], data[:n], 0644); err != nil {
			return errors.Annotatef(err, "failed to write %s", args[2])
		}
		fmt.Fprintf(e.out, "saved %d bytes from 0x%08x\n", n, addr)
		return nil
	})
}

func traceLines(args []string) (int, error) {
	if len(args) == 0 {
		return defaultTraceLines, nil
	}
	n, err := ourutil.ParseInt(args[0])
	return n, errors.Trace(err)
}

func itrace(ctx context.Context, e *env, args []string) error {
	n, err := traceLines(args)
	if err != nil {
		return errors.Trace(err)
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		entries, err := c.ReadInstructionTrace(ctx, n)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "%10s  %-8s  %-8s  %s\n", "time", "pc", "opcode", "result")
		for _, en := range entries {
			fmt.Fprintln(e.out, en)
		}
		return nil
	})
}

func atrace(ctx context.Context, e *env, args []string) error {
	n, err := traceLines(args)
	if err != nil {
		return errors.Trace(err)
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		entries, err := c.ReadAHBTrace(ctx, n)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(e.out, "%10s  %-8s  %-5s  %-8s  trans size burst master\n", "time", "addr", "dir", "data")
		for _, en := range entries {
			fmt.Fprintln(e.out, en)
		}
		return nil
	})
}

func trace(ctx context.Context, e *env, args []string) error {
	var on bool
	switch args[0] {
	case "on":
		on = true
	case "off":
	default:
		return errors.NotValidf("trace mode %q", args[0])
	}
	return e.withCore(ctx, func(c *leon3.Core) error {
		return errors.Trace(c.EnableTrace(ctx, on, on))
	})
}

func selectCore(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(e.out, "core %d of %d\n", e.core, e.sess.NumCores())
		return nil
	}
	n, err := ourutil.ParseInt(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	if n < 0 || n >= e.sess.NumCores() {
		return errors.NotValidf("core %d (target has %d)", n, e.sess.NumCores())
	}
	e.core = n
	return nil
}

func showConfig(ctx context.Context, e *env, args []string) error {
	s, err := config.Dump(e.cfg)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprint(e.out, s)
	return nil
}

func simRun(ctx context.Context, e *env, args []string) error {
	if e.sim == nil {
		return errors.NotSupportedf("sim-run on a real target")
	}
	n, err := ourutil.ParseInt(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	if e.core >= e.sess.NumCores() {
		return errors.NotValidf("core %d", e.core)
	}
	done := e.sim.Run(e.core, n)
	fmt.Fprintf(e.out, "core %d executed %d instruction(s)\n", e.core, done)
	return nil
}
