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
// Package ahbjtag implements AHB bus access through the GRLIB AHBJTAG debug
// link: an address/control register (ADATA, 35 bits) and a data register
// (DDATA, 33 bits) selected by two JTAG user instructions.
package ahbjtag

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag"
)

const (
	adataLen = 35
	ddataLen = 33
	seqBit   = uint64(1) << 32
	writeBit = uint64(1) << 34

	// Auto-increment does not cross this boundary.
	burstBoundary = 0x400

	DefaultMaxAttempts = 64
)

var (
	ErrBusTimeout  = errors.New("AHB transaction timed out")
	ErrBusError    = errors.New("AHB bus error")
	ErrInvalidSize = errors.New("invalid AHB transfer size")
)

// Size is the width of a single AHB transfer.
type Size struct {
	code uint8
}

var (
	Byte     = Size{0}
	HalfWord = Size{1}
	Word     = Size{2}
)

func (s Size) Bytes() int {
	return 1 << s.code
}

func (s Size) String() string {
	switch s {
	case Byte:
		return "byte"
	case HalfWord:
		return "halfword"
	case Word:
		return "word"
	}
	return fmt.Sprintf("size(%d)", s.code)
}

// laneShift returns the position of the addressed bytes within a bus word.
// Byte lanes are big-endian: the lowest address is in bits 31:24.
func laneShift(addr uint32, s Size) uint {
	return uint(8 * (4 - s.Bytes() - int(addr&3)))
}

// Transaction describes one AHB access as started by an ADATA shift.
type Transaction struct {
	Addr  uint32
	Size  Size
	Write bool
	// Seq is set when more than one data phase follows the address phase.
	Seq bool
}

// ADATA returns the 35-bit address register value for the transaction.
func (tr Transaction) ADATA() (uint64, error) {
	if tr.Size.code > Word.code {
		return 0, errors.Annotatef(ErrInvalidSize, "%s", tr.Size)
	}
	v := uint64(tr.Addr) | uint64(tr.Size.code)<<32
	if tr.Write {
		v |= writeBit
	}
	return v, nil
}

func (tr Transaction) String() string {
	dir := "R"
	if tr.Write {
		dir = "W"
	}
	return fmt.Sprintf("%s 0x%08x %s", dir, tr.Addr, tr.Size)
}

type Config struct {
	Family      string `yaml:"family"`
	MaxAttempts int    `yaml:"max_attempts"`
}

func DefaultConfig() Config {
	return Config{
		Family:      "xilinx",
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (c Config) Validate() error {
	if _, err := jtag.LookupFamily(c.Family); err != nil {
		return errors.Trace(err)
	}
	if c.MaxAttempts < 1 {
		return errors.NotValidf("max attempts %d", c.MaxAttempts)
	}
	return nil
}

type Stats struct {
	Transactions int
	Shifts       int
	Retries      int
	Timeouts     int
}

// Client performs AHB accesses over a JTAG transport. It is not safe for
// concurrent use.
type Client struct {
	t           jtag.Transport
	fam         jtag.Family
	maxAttempts int

	curIR   uint32
	irValid bool

	stats Stats
}

var _ common.BlockMemReaderWriter = (*Client)(nil)

func NewClient(t jtag.Transport, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotatef(err, "invalid AHBJTAG config")
	}
	fam, _ := jtag.LookupFamily(cfg.Family)
	glog.V(1).Infof("AHBJTAG: %s, ADATA 0x%x DDATA 0x%x, max %d attempts",
		fam, fam.ADATACode(), fam.DDATACode(), cfg.MaxAttempts)
	return &Client{
		t:           t,
		fam:         fam,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

func (c *Client) Stats() Stats {
	return c.stats
}

// selectIR loads the instruction register unless it already holds ir.
func (c *Client) selectIR(ctx context.Context, ir uint32) error {
	if c.irValid && c.curIR == ir {
		return nil
	}
	glog.V(4).Infof("IR <- 0x%x", ir)
	if err := c.t.WriteIR(ctx, ir, c.fam.IRLen); err != nil {
		c.irValid = false
		return errors.Wrapf(err, ErrBusError, "failed to select IR 0x%x (%s)", ir, err)
	}
	c.curIR, c.irValid = ir, true
	return nil
}

func (c *Client) shift(ctx context.Context, ir uint32, data uint64, bits int) (uint64, error) {
	if err := c.selectIR(ctx, ir); err != nil {
		return 0, errors.Trace(err)
	}
	c.stats.Shifts++
	out, err := c.t.ShiftDR(ctx, data, bits)
	if err != nil {
		c.irValid = false
		return 0, errors.Wrapf(err, ErrBusError, "%d-bit DR shift failed (%s)", bits, err)
	}
	if out>>uint(bits) != 0 {
		return 0, errors.Annotatef(ErrBusError, "malformed %d-bit capture 0x%x", bits, out)
	}
	glog.V(4).Infof("DR(%d) 0x%09x -> 0x%09x", bits, data, out)
	return out, nil
}

// start shifts the address phase of a transaction.
func (c *Client) start(ctx context.Context, tr Transaction) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	adata, err := tr.ADATA()
	if err != nil {
		return errors.Trace(err)
	}
	c.stats.Transactions++
	glog.V(4).Infof("AHB %s", tr)
	if _, err := c.shift(ctx, c.fam.ADATACode(), adata, adataLen); err != nil {
		return errors.Annotatef(err, "%s", tr)
	}
	return nil
}

// transfer shifts DDATA until the bus acknowledges the data phase. seq asks
// for the next word of a burst to be started.
func (c *Client) transfer(ctx context.Context, data uint32, seq bool) (uint32, error) {
	in := uint64(data)
	if seq {
		in |= seqBit
	}
	for attempt := 1; ; attempt++ {
		out, err := c.shift(ctx, c.fam.DDATACode(), in, ddataLen)
		if err != nil {
			return 0, errors.Trace(err)
		}
		if out&seqBit != 0 {
			return uint32(out), nil
		}
		if attempt >= c.maxAttempts {
			c.stats.Timeouts++
			glog.V(3).Infof("DDATA not ready after %d attempts", attempt)
			return 0, errors.Annotatef(ErrBusTimeout, "not ready after %d attempts", attempt)
		}
		c.stats.Retries++
	}
}

func checkAlign(addr uint32, s Size) error {
	if addr&uint32(s.Bytes()-1) != 0 {
		return errors.NotValidf("%s access at unaligned address 0x%08x", s, addr)
	}
	return nil
}

func checkRange(addr uint32, words int) error {
	if err := checkAlign(addr, Word); err != nil {
		return errors.Trace(err)
	}
	if words < 0 {
		return errors.NotValidf("length %d", words)
	}
	if uint64(addr)+uint64(words)*4 > 1<<32 {
		return errors.NotValidf("block 0x%08x + %d words beyond the end of the address space", addr, words)
	}
	return nil
}

// Read performs a single read and returns the bus word with the addressed
// bytes in their lanes.
func (c *Client) Read(ctx context.Context, addr uint32, s Size) (uint32, error) {
	if err := checkAlign(addr, s); err != nil {
		return 0, errors.Trace(err)
	}
	if err := c.start(ctx, Transaction{Addr: addr, Size: s}); err != nil {
		return 0, errors.Trace(err)
	}
	v, err := c.transfer(ctx, 0, false)
	if err != nil {
		return 0, errors.Annotatef(err, "read 0x%08x", addr)
	}
	return v, nil
}

// Write performs a single write. data carries the value in the lanes of the
// addressed bytes.
func (c *Client) Write(ctx context.Context, addr uint32, s Size, data uint32) error {
	if err := checkAlign(addr, s); err != nil {
		return errors.Trace(err)
	}
	if err := c.start(ctx, Transaction{Addr: addr, Size: s, Write: true}); err != nil {
		return errors.Trace(err)
	}
	if _, err := c.transfer(ctx, data, false); err != nil {
		return errors.Annotatef(err, "write 0x%08x", addr)
	}
	return nil
}

func (c *Client) ReadTarget8(ctx context.Context, addr uint32) (uint8, error) {
	v, err := c.Read(ctx, addr, Byte)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint8(v >> laneShift(addr, Byte)), nil
}

func (c *Client) ReadTarget16(ctx context.Context, addr uint32) (uint16, error) {
	v, err := c.Read(ctx, addr, HalfWord)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint16(v >> laneShift(addr, HalfWord)), nil
}

func (c *Client) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	return c.Read(ctx, addr, Word)
}

func (c *Client) WriteTarget8(ctx context.Context, addr uint32, data uint8) error {
	return c.Write(ctx, addr, Byte, uint32(data)<<laneShift(addr, Byte))
}

func (c *Client) WriteTarget16(ctx context.Context, addr uint32, data uint16) error {
	return c.Write(ctx, addr, HalfWord, uint32(data)<<laneShift(addr, HalfWord))
}

func (c *Client) WriteTargetReg(ctx context.Context, addr uint32, data uint32) error {
	return c.Write(ctx, addr, Word, data)
}

// Burst is a run of words that can be transferred after a single address phase.
type Burst struct {
	Addr  uint32
	Words int
}

// SplitBursts splits a word-aligned block so that no burst crosses a 1 KB
// boundary.
func SplitBursts(addr uint32, words int) []Burst {
	var res []Burst
	for words > 0 {
		n := int((burstBoundary - addr&(burstBoundary-1)) / 4)
		if n > words {
			n = words
		}
		res = append(res, Burst{Addr: addr, Words: n})
		addr += uint32(n * 4)
		words -= n
	}
	return res
}

func (c *Client) ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error) {
	if err := checkRange(addr, length); err != nil {
		return nil, errors.Trace(err)
	}
	res := make([]uint32, 0, length)
	for _, b := range SplitBursts(addr, length) {
		glog.V(2).Infof("burst read 0x%08x %d", b.Addr, b.Words)
		if err := c.start(ctx, Transaction{Addr: b.Addr, Size: Word, Seq: b.Words > 1}); err != nil {
			return nil, errors.Trace(err)
		}
		for i := 0; i < b.Words; i++ {
			v, err := c.transfer(ctx, 0, i < b.Words-1)
			if err != nil {
				return nil, errors.Annotatef(err, "read 0x%08x", b.Addr+uint32(i*4))
			}
			res = append(res, v)
		}
	}
	return res, nil
}

func (c *Client) WriteTargetMem(ctx context.Context, addr uint32, data []uint32) error {
	if err := checkRange(addr, len(data)); err != nil {
		return errors.Trace(err)
	}
	for _, b := range SplitBursts(addr, len(data)) {
		glog.V(2).Infof("burst write 0x%08x %d", b.Addr, b.Words)
		if err := c.start(ctx, Transaction{Addr: b.Addr, Size: Word, Write: true, Seq: b.Words > 1}); err != nil {
			return errors.Trace(err)
		}
		for i := 0; i < b.Words; i++ {
			if _, err := c.transfer(ctx, data[i], i < b.Words-1); err != nil {
				return errors.Annotatef(err, "write 0x%08x", b.Addr+uint32(i*4))
			}
		}
		data = data[b.Words:]
	}
	return nil
}

// ReadTargetMem64 reads length double-words. The target is big-endian, so
// the word at the lower address is the upper half.
func (c *Client) ReadTargetMem64(ctx context.Context, addr uint32, length int) ([]uint64, error) {
	if addr&7 != 0 {
		return nil, errors.NotValidf("unaligned double-word access at 0x%08x", addr)
	}
	words, err := c.ReadTargetMem(ctx, addr, 2*length)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := make([]uint64, length)
	for i := range res {
		res[i] = uint64(words[2*i])<<32 | uint64(words[2*i+1])
	}
	return res, nil
}

func (c *Client) WriteTargetMem64(ctx context.Context, addr uint32, data []uint64) error {
	if addr&7 != 0 {
		return errors.NotValidf("unaligned double-word access at 0x%08x", addr)
	}
	words := make([]uint32, 0, 2*len(data))
	for _, v := range data {
		words = append(words, uint32(v>>32), uint32(v))
	}
	return errors.Trace(c.WriteTargetMem(ctx, addr, words))
}

// ReadTargetBytes fills data with target memory in address order. The length
// must be a multiple of 4.
func (c *Client) ReadTargetBytes(ctx context.Context, addr uint32, data []byte) error {
	if len(data)%4 != 0 {
		return errors.NotValidf("buffer length %d (not a multiple of 4)", len(data))
	}
	words, err := c.ReadTargetMem(ctx, addr, len(data)/4)
	if err != nil {
		return errors.Trace(err)
	}
	for i, w := range words {
		binary.BigEndian.PutUint32(data[4*i:], w)
	}
	return nil
}

func (c *Client) WriteTargetBytes(ctx context.Context, addr uint32, data []byte) error {
	if len(data)%4 != 0 {
		return errors.NotValidf("buffer length %d (not a multiple of 4)", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(data[4*i:])
	}
	return errors.Trace(c.WriteTargetMem(ctx, addr, words))
}
