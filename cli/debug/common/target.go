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
package common

import (
	"context"
)

type MemReader interface {
	// ReadTarget8 reads a single byte.
	ReadTarget8(ctx context.Context, addr uint32) (uint8, error)
	// ReadTarget16 reads a half-word, addr must be 2-aligned.
	ReadTarget16(ctx context.Context, addr uint32) (uint16, error)
	// ReadTargetReg reads a single 32-bit word from the target (handy for reading registers).
	ReadTargetReg(ctx context.Context, addr uint32) (uint32, error)
	// ReadTargetMem reads length words at the specified address in the target's memory.
	// addr must be word-aligned.
	ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error)
}

type MemWriter interface {
	WriteTarget8(ctx context.Context, addr uint32, value uint8) error
	WriteTarget16(ctx context.Context, addr uint32, value uint16) error
	// WriteTargetReg writes a single 32-bit word to the target.
	WriteTargetReg(ctx context.Context, addr uint32, value uint32) error
	// WriteTargetMem writes data at the specified address to the target's memory.
	// addr must be word-aligned.
	WriteTargetMem(ctx context.Context, addr uint32, data []uint32) error
}

type MemReaderWriter interface {
	MemReader
	MemWriter
}

// BlockMemReaderWriter adds double-word and byte buffer block transfers.
type BlockMemReaderWriter interface {
	MemReaderWriter

	// ReadTargetMem64 reads length double-words, addr must be 8-aligned.
	ReadTargetMem64(ctx context.Context, addr uint32, length int) ([]uint64, error)
	WriteTargetMem64(ctx context.Context, addr uint32, data []uint64) error
	// ReadTargetBytes fills data from target memory; len(data) must be a multiple of 4.
	ReadTargetBytes(ctx context.Context, addr uint32, data []byte) error
	WriteTargetBytes(ctx context.Context, addr uint32, data []byte) error
}

// RunState is the run-control state of a core as last observed by the driver.
type RunState int

const (
	Running RunState = iota
	Halted
	// SteppingInProgress is only visible while a step is being polled for completion.
	SteppingInProgress
	// Sleeping is a running core in power-down mode.
	Sleeping
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case SteppingInProgress:
		return "stepping"
	case Sleeping:
		return "sleeping"
	}
	return "unknown"
}

type HaltReason int

const (
	HaltReasonNone HaltReason = iota
	HaltReasonRequest
	HaltReasonBreakpoint
	HaltReasonStep
	HaltReasonException
	HaltReasonTrap
)

func (r HaltReason) String() string {
	switch r {
	case HaltReasonNone:
		return ""
	case HaltReasonRequest:
		return "request"
	case HaltReasonBreakpoint:
		return "breakpoint"
	case HaltReasonStep:
		return "step"
	case HaltReasonException:
		return "error mode"
	case HaltReasonTrap:
		return "trap"
	}
	return "unknown"
}

type CoreStatus struct {
	State  RunState
	Reason HaltReason
	// TrapType is the trap that caused debug mode entry, valid when halted.
	TrapType uint8
}

// Core is the run-control and memory access capability of one debuggable core.
// Implementations are architecture specific and are handed out by a session.
type Core interface {
	BlockMemReaderWriter

	// ID returns index of the core within the session.
	ID() int
	// Status refreshes run state from the hardware.
	Status(ctx context.Context) (CoreStatus, error)
	// Halt stops the core and waits for it to enter debug mode.
	Halt(ctx context.Context) error
	// Resume lets the core run from the current program counter.
	Resume(ctx context.Context) error
	// Step executes a single instruction; the core must be halted.
	Step(ctx context.Context) error
	// GetReg retrieves current value of a core register by name.
	GetReg(ctx context.Context, name string) (uint32, error)
	// SetReg sets value of a core register by name.
	SetReg(ctx context.Context, name string, value uint32) error
	// GetPC is a shortcut for the program counter.
	GetPC(ctx context.Context) (uint32, error)
	// SetBreakpoint installs a hardware instruction breakpoint and returns its slot.
	SetBreakpoint(ctx context.Context, addr uint32) (int, error)
	// ClearBreakpoint frees a breakpoint slot. Clearing a free slot is not an error.
	ClearBreakpoint(ctx context.Context, slot int) error
	// Breakpoints returns all hardware breakpoint slots, including the free ones.
	Breakpoints() []Breakpoint
}

type Breakpoint struct {
	Slot int
	Addr uint32
	Set  bool
}
