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
// Package bitbang implements a JTAG transport by toggling GPIO pins of a
// Raspberry Pi.
package bitbang

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	rpio "github.com/stianeikeland/go-rpio/v4"
)

type Config struct {
	TCK, TMS, TDI, TDO int
	// Optional TRST, -1 if not connected.
	TRST int
	// HalfPeriod is the delay between clock edges, 0 to run as fast as GPIO allows.
	HalfPeriod time.Duration

	// Other TAPs in the chain. IR bits of TAPs between the target and TDO
	// and between TDI and the target are filled with ones (BYPASS), each
	// bypassed TAP contributes one DR bit.
	IRBitsTDOSide int
	IRBitsTDISide int
	TAPsTDOSide   int
	TAPsTDISide   int
}

func DefaultConfig() Config {
	// Pin numbers follow the wiring used by go-jtagenum on a Pi header.
	return Config{TCK: 11, TMS: 25, TDI: 10, TDO: 9, TRST: -1}
}

// pins abstracts GPIO access so the TAP logic can be exercised without hardware.
type pins interface {
	set(tck, tms, tdi bool)
	tdo() bool
}

type rpioPins struct {
	tck, tms, tdi, tdoPin rpio.Pin
}

func (p *rpioPins) set(tck, tms, tdi bool) {
	write(p.tms, tms)
	write(p.tdi, tdi)
	write(p.tck, tck)
}

func (p *rpioPins) tdo() bool {
	return p.tdoPin.Read() == rpio.High
}

func write(pin rpio.Pin, v bool) {
	if v {
		pin.High()
	} else {
		pin.Low()
	}
}

type Transport struct {
	cfg  Config
	p    pins
	open bool
}

// Open maps GPIO memory, configures the pins and resets the TAP into Run-Test/Idle.
func Open(cfg Config) (*Transport, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Annotatef(err, "failed to open GPIO")
	}
	p := &rpioPins{
		tck:    rpio.Pin(cfg.TCK),
		tms:    rpio.Pin(cfg.TMS),
		tdi:    rpio.Pin(cfg.TDI),
		tdoPin: rpio.Pin(cfg.TDO),
	}
	p.tck.Output()
	p.tms.Output()
	p.tdi.Output()
	p.tdoPin.Input()
	p.tdoPin.PullUp()
	if cfg.TRST >= 0 {
		trst := rpio.Pin(cfg.TRST)
		trst.Output()
		trst.High()
	}
	glog.V(1).Infof("GPIO JTAG: TCK %d TMS %d TDI %d TDO %d", cfg.TCK, cfg.TMS, cfg.TDI, cfg.TDO)
	t := newTransport(cfg, p)
	t.open = true
	return t, nil
}

func newTransport(cfg Config, p pins) *Transport {
	t := &Transport{cfg: cfg, p: p}
	t.Reset()
	return t
}

func (t *Transport) Close() error {
	if !t.open {
		return nil
	}
	t.open = false
	return errors.Trace(rpio.Close())
}

// clock performs one TCK cycle and returns TDO sampled before the rising edge.
func (t *Transport) clock(tms, tdi bool) bool {
	t.p.set(false, tms, tdi)
	t.delay()
	out := t.p.tdo()
	t.p.set(true, tms, tdi)
	t.delay()
	return out
}

func (t *Transport) delay() {
	if t.cfg.HalfPeriod > 0 {
		time.Sleep(t.cfg.HalfPeriod)
	}
}

// Reset drives the TAP to Test-Logic-Reset and then to Run-Test/Idle.
func (t *Transport) Reset() {
	for i := 0; i < 5; i++ {
		t.clock(true, false)
	}
	t.clock(false, false)
}

// shift clocks the bit stream through Shift-xR, leaving on the last bit
// (Exit1-xR), then goes Update-xR -> Run-Test/Idle.
func (t *Transport) shift(in []bool) []bool {
	out := make([]bool, len(in))
	for i, b := range in {
		out[i] = t.clock(i == len(in)-1, b)
	}
	t.clock(true, false)  // Update
	t.clock(false, false) // Idle
	return out
}

func (t *Transport) WriteIR(ctx context.Context, ir uint32, irLen int) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	// Idle -> Select-DR -> Select-IR -> Capture-IR -> Shift-IR
	for _, tms := range []bool{true, true, false, false} {
		t.clock(tms, false)
	}
	var in []bool
	in = appendOnes(in, t.cfg.IRBitsTDOSide)
	in = appendBits(in, uint64(ir), irLen)
	in = appendOnes(in, t.cfg.IRBitsTDISide)
	t.shift(in)
	glog.V(4).Infof("IR <- 0x%x/%d", ir, irLen)
	return nil
}

func (t *Transport) ShiftDR(ctx context.Context, data uint64, bits int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Trace(err)
	}
	if bits <= 0 || bits > 64 {
		return 0, errors.NotValidf("DR length %d", bits)
	}
	// Idle -> Select-DR -> Capture-DR -> Shift-DR
	for _, tms := range []bool{true, false, false} {
		t.clock(tms, false)
	}
	var in []bool
	in = appendBits(in, 0, t.cfg.TAPsTDOSide)
	in = appendBits(in, data, bits)
	in = appendBits(in, 0, t.cfg.TAPsTDISide)
	out := t.shift(in)
	var res uint64
	for i := 0; i < bits; i++ {
		if out[t.cfg.TAPsTDOSide+i] {
			res |= 1 << uint(i)
		}
	}
	glog.V(4).Infof("DR <- 0x%x/%d -> 0x%x", data, bits, res)
	return res, nil
}

func appendBits(s []bool, v uint64, n int) []bool {
	for i := 0; i < n; i++ {
		s = append(s, (v>>uint(i))&1 != 0)
	}
	return s
}

func appendOnes(s []bool, n int) []bool {
	for i := 0; i < n; i++ {
		s = append(s, true)
	}
	return s
}
