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
package plugnplay

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/leon3dbg/cli/debug/ahbjtag"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/sim"
	"github.com/mongoose-os/leon3dbg/common/multierror"
)

// romReader serves word reads from a map; everything else reads as zero.
type romReader struct {
	words map[uint32]uint32
	reads int
}

func (r *romReader) ReadTarget8(ctx context.Context, addr uint32) (uint8, error) {
	return 0, errors.NotImplementedf("ReadTarget8")
}

func (r *romReader) ReadTarget16(ctx context.Context, addr uint32) (uint16, error) {
	return 0, errors.NotImplementedf("ReadTarget16")
}

func (r *romReader) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	r.reads++
	return r.words[addr], nil
}

func (r *romReader) ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error) {
	r.reads++
	res := make([]uint32, length)
	for i := range res {
		res[i] = r.words[addr+uint32(i*4)]
	}
	return res, nil
}

func ident(vendor, device, version, irq uint32) uint32 {
	return vendor<<24 | device<<12 | version<<5 | irq
}

func newROM() *romReader {
	return &romReader{words: map[uint32]uint32{
		// Masters.
		0xfffff000: ident(VendorGaisler, DeviceLEON3, 0, 0),
		0xfffff020: ident(VendorGaisler, DeviceAHBJTAG, 1, 0),
		// Slaves.
		0xfffff800: ident(VendorESA, DeviceESAMCTRL, 1, 0),
		0xfffff810: 0x4003fc02,
		0xfffff814: 0x0000e003,
		0xfffff820: ident(VendorGaisler, DeviceLEON3DSU, 1, 0),
		0xfffff830: 0x9000f002,
		0xfffff840: ident(VendorGaisler, DeviceAHBRAM, 0, 0),
		0xfffff850: 0xa000fff2,
	}}
}

func TestScanAHB(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	cfg := DefaultConfig()
	dt, err := Scan(ctx, rom, cfg)
	require.NoError(t, err)

	want := []Record{
		{Kind: AHBMaster, Slot: 0, ConfigAddr: 0xfffff000, Vendor: VendorGaisler, Device: DeviceLEON3},
		{Kind: AHBMaster, Slot: 1, ConfigAddr: 0xfffff020, Vendor: VendorGaisler, Device: DeviceAHBJTAG, Version: 1},
		{
			Kind: AHBSlave, Slot: 0, ConfigAddr: 0xfffff800, Vendor: VendorESA, Device: DeviceESAMCTRL, Version: 1,
			Banks: []Bank{
				{Type: BankAHBMem, Start: 0x40000000, Size: 0x4000000, Mask: 0xfc0, Prefetchable: true, Cacheable: true},
				{Type: BankAHBIO, Start: 0xfff00000, Size: 0x20000, Mask: 0xe00},
			},
		},
		{
			Kind: AHBSlave, Slot: 1, ConfigAddr: 0xfffff820, Vendor: VendorGaisler, Device: DeviceLEON3DSU, Version: 1,
			Banks: []Bank{{Type: BankAHBMem, Start: 0x90000000, Size: 0x10000000, Mask: 0xf00}},
		},
		{
			Kind: AHBSlave, Slot: 2, ConfigAddr: 0xfffff840, Vendor: VendorGaisler, Device: DeviceAHBRAM,
			Banks: []Bank{{Type: BankAHBMem, Start: 0xa0000000, Size: 0x100000, Mask: 0xfff}},
		},
	}
	if diff := cmp.Diff(want, dt.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, dt.Failures)
	assert.NoError(t, dt.FailuresError())
	assert.Len(t, dt.Slaves(), 3)
	assert.Empty(t, dt.APB())

	dsu, ok := dt.Find(VendorGaisler, DeviceLEON3DSU)
	require.True(t, ok)
	assert.True(t, dsu.Banks[0].Contains(0x9fffffff))
	assert.False(t, dsu.Banks[0].Contains(0xa0000000))
	_, ok = dt.Find(VendorGaisler, DeviceIRQMP)
	assert.False(t, ok)
}

func TestScanMalformedSlot(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	// Zero vendor with non-zero device.
	rom.words[0xfffff820] = ident(0, DeviceLEON3DSU, 1, 0)
	// APB-type BAR in the AHB area.
	rom.words[0xfffff850] = 0xa000fff1

	dt, err := Scan(ctx, rom, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, dt.Slaves(), 1)
	assert.Equal(t, "ESA MCTRL", dt.Slaves()[0].Name())
	require.Len(t, dt.Failures, 2)
	assert.Equal(t, 1, dt.Failures[0].Slot)
	assert.True(t, errors.IsNotValid(dt.Failures[0].Err))
	assert.Equal(t, uint32(0xfffff840), dt.Failures[1].ConfigAddr)

	merr, ok := dt.FailuresError().(*multierror.Error)
	require.True(t, ok)
	assert.Equal(t, 2, merr.Len())
}

func TestScanReservedBits(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	rom.words[0xfffff020] |= 0x400
	dt, err := Scan(ctx, rom, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, dt.Masters(), 1)
	assert.Len(t, dt.Failures, 1)
}

func TestScanNoTerminator(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	cfg := DefaultConfig()
	cfg.MaxMasters = 2
	_, err := Scan(ctx, rom, cfg)
	assert.Equal(t, ErrParse, errors.Cause(err))

	cfg.MaxMasters = 3
	_, err = Scan(ctx, rom, cfg)
	assert.NoError(t, err)
}

func TestScanDuplicates(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	rom.words[0xfffff020] = ident(VendorGaisler, DeviceLEON3, 0, 0)
	rom.words[0xfffff040] = ident(VendorGaisler, DeviceAHBJTAG, 1, 0)
	dt, err := Scan(ctx, rom, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, dt.FindAll(VendorGaisler, DeviceLEON3), 2)
	assert.Equal(t, []int{0, 1, 2}, []int{dt.Masters()[0].Slot, dt.Masters()[1].Slot, dt.Masters()[2].Slot})
}

func TestScanAPBGating(t *testing.T) {
	ctx := context.Background()
	rom := newROM()
	rom.words[0xfffff860] = ident(VendorGaisler, DeviceAPBMST, 0, 0)
	rom.words[0xfffff870] = 0x8000fff2
	rom.words[0x800ff000] = ident(VendorGaisler, DeviceAPBUART, 1, 2)
	rom.words[0x800ff004] = 0x0010fff1
	rom.words[0x800ff008] = ident(VendorGaisler, DeviceIRQMP, 3, 0)
	rom.words[0x800ff00c] = 0x0020fff1

	cfg := DefaultConfig()
	cfg.ScanAPB = false
	dt, err := Scan(ctx, rom, cfg)
	require.NoError(t, err)
	assert.Empty(t, dt.APB())

	cfg.ScanAPB = true
	dt, err = Scan(ctx, rom, cfg)
	require.NoError(t, err)
	apb := dt.APB()
	require.Len(t, apb, 2)
	assert.Equal(t, Bank{Type: BankAPBIO, Start: 0x80000100, Size: 0x100, Mask: 0xfff}, apb[0].Banks[0])
	assert.Equal(t, uint8(2), apb[0].IRQ)
	assert.Equal(t, uint32(0x80000200), apb[1].Banks[0].Start)

	// No bridge, no APB reads.
	rom = newROM()
	rom.words[0x800ff000] = ident(VendorGaisler, DeviceAPBUART, 1, 2)
	dt, err = Scan(ctx, rom, cfg)
	require.NoError(t, err)
	assert.Empty(t, dt.APB())
}

func TestScanSim(t *testing.T) {
	ctx := context.Background()
	scfg := sim.DefaultConfig()
	scfg.Cores = 2
	s, err := sim.New(scfg)
	require.NoError(t, err)
	c, err := ahbjtag.NewClient(s, ahbjtag.DefaultConfig())
	require.NoError(t, err)

	dt, err := Scan(ctx, c, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, dt.FindAll(VendorGaisler, DeviceLEON3), 2)
	dsu, ok := dt.Find(VendorGaisler, DeviceLEON3DSU)
	require.True(t, ok)
	assert.Equal(t, uint32(0x90000000), dsu.Banks[0].Start)
	var names []string
	for _, r := range dt.APB() {
		names = append(names, DeviceName(r.Vendor, r.Device))
	}
	assert.Equal(t, []string{"APBUART", "IRQMP", "GPTIMER"}, names)
	assert.Empty(t, dt.Failures)
}

func TestRecordString(t *testing.T) {
	r := Record{
		Kind: AHBSlave, Slot: 2, Vendor: VendorGaisler, Device: DeviceLEON3DSU, Version: 1,
		Banks: []Bank{{Type: BankAHBMem, Start: 0x90000000, Size: 0x10000000}},
	}
	assert.Equal(t, "AHB slave 2: GAISLER  LEON3DSU   ver 1\n    AHB: 90000000 - a0000000", r.String())
	assert.Equal(t, "0x7f 0x123", Record{Vendor: 0x7f, Device: 0x123}.Name())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.IOArea = 0xfff00100
	assert.True(t, errors.IsNotValid(cfg.Validate()))
	cfg = DefaultConfig()
	cfg.MaxSlaves = 65
	assert.True(t, errors.IsNotValid(cfg.Validate()))
}
