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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag"
)

type link struct {
	t   *testing.T
	s   *System
	fam jtag.Family
}

func newLink(t *testing.T, cfg Config) *link {
	s, err := New(cfg)
	require.NoError(t, err)
	fam, err := jtag.LookupFamily(cfg.Family)
	require.NoError(t, err)
	return &link{t: t, s: s, fam: fam}
}

func (l *link) adata(v uint64) {
	ctx := context.Background()
	require.NoError(l.t, l.s.WriteIR(ctx, l.fam.ADATACode(), l.fam.IRLen))
	_, err := l.s.ShiftDR(ctx, v, adataLen)
	require.NoError(l.t, err)
}

func (l *link) ddata(v uint64) uint64 {
	ctx := context.Background()
	require.NoError(l.t, l.s.WriteIR(ctx, l.fam.DDATACode(), l.fam.IRLen))
	out, err := l.s.ShiftDR(ctx, v, ddataLen)
	require.NoError(l.t, err)
	return out
}

func TestNewValidation(t *testing.T) {
	for _, f := range []func(c *Config){
		func(c *Config) { c.Family = "lattice" },
		func(c *Config) { c.Cores = 0 },
		func(c *Config) { c.Watchpoints = 5 },
		func(c *Config) { c.NWindows = 1 },
		func(c *Config) { c.ITraceLines = 0 },
	} {
		cfg := DefaultConfig()
		f(&cfg)
		_, err := New(cfg)
		assert.Error(t, err)
	}
}

func TestWordWriteRead(t *testing.T) {
	l := newLink(t, DefaultConfig())
	l.adata(1<<34 | 2<<32 | 0x40000000)
	assert.Equal(t, seqBit, l.ddata(0xcafef00d))
	assert.Equal(t, uint32(0xcafef00d), l.s.Peek(0x40000000))

	l.s.Poke(0x40000004, 0x11223344)
	l.adata(2<<32 | 0x40000000)
	assert.Equal(t, seqBit|0xcafef00d, l.ddata(seqBit))
	assert.Equal(t, seqBit|0x11223344, l.ddata(0))
	// The transaction is over.
	assert.Equal(t, uint64(0), l.ddata(0))
	assert.Equal(t, []Start{
		{Addr: 0x40000000, Size: 2, Write: true},
		{Addr: 0x40000000, Size: 2},
	}, l.s.Starts)
}

func TestByteLanes(t *testing.T) {
	l := newLink(t, DefaultConfig())
	l.s.Poke(0x40000000, 0xdeadbeef)
	l.adata(1<<34 | 0<<32 | 0x40000002)
	l.ddata(0x00005500)
	assert.Equal(t, uint32(0xdead55ef), l.s.Peek(0x40000000))

	l.adata(1<<32 | 0x40000000)
	assert.Equal(t, seqBit|0xdead0000, l.ddata(0))
}

func TestLatencyAndInjectedWaits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Latency = 2
	l := newLink(t, cfg)
	l.s.Poke(0x40000000, 7)
	l.s.InjectWait(1)
	l.adata(2<<32 | 0x40000000)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint64(0), l.ddata(0), "capture %d", i)
	}
	assert.Equal(t, seqBit|7, l.ddata(0))
}

func TestReservedSizeNeverAnswers(t *testing.T) {
	l := newLink(t, DefaultConfig())
	l.adata(3<<32 | 0x40000000)
	assert.Equal(t, uint64(0), l.ddata(0))
}

func TestProtocolErrors(t *testing.T) {
	l := newLink(t, DefaultConfig())
	ctx := context.Background()
	assert.Error(t, l.s.WriteIR(ctx, l.fam.ADATACode(), l.fam.IRLen+1))
	require.NoError(t, l.s.WriteIR(ctx, l.fam.ADATACode(), l.fam.IRLen))
	_, err := l.s.ShiftDR(ctx, 0, ddataLen)
	assert.Error(t, err)
}

func TestROMIsReadOnly(t *testing.T) {
	l := newLink(t, DefaultConfig())
	before := l.s.Peek(0xfffff000)
	assert.NotZero(t, before)
	l.adata(1<<34 | 2<<32 | 0xfffff000)
	l.ddata(0)
	assert.Equal(t, before, l.s.Peek(0xfffff000))

	l.s.Poke(0xfffff000, 0)
	assert.Zero(t, l.s.Peek(0xfffff000))
}

func TestRunStopsAtWatchpoint(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	s.Poke(0x90400064, 0xfffffffc)
	s.Poke(0x90400060, 0x40000008|1)
	assert.Equal(t, 2, s.Run(0, 10))
	c := s.Core(0)
	assert.True(t, c.InDebugMode())
	assert.Equal(t, uint32(0x40000008), c.PC())
	// A halted core does not execute.
	assert.Equal(t, 0, s.Run(0, 10))
}

func TestStartHalted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cores = 2
	cfg.StartHalted = true
	s, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, s.Core(0).InDebugMode())
	assert.True(t, s.Core(1).InDebugMode())
	assert.Equal(t, 0, s.Run(1, 5))
}
