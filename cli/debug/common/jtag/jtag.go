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
package jtag

import (
	"context"
	"fmt"
	"sort"

	"github.com/juju/errors"
)

// Transport is a raw JTAG scan capability for the TAP that hosts the AHBJTAG
// registers. Chain positioning, adapter clocking and TAP bring-up are the
// implementation's business.
type Transport interface {
	// WriteIR shifts an instruction of irLen bits into the instruction register
	// and leaves the TAP in Run-Test/Idle.
	WriteIR(ctx context.Context, ir uint32, irLen int) error
	// ShiftDR goes through Capture-DR, shifts bits of data (LSB first) through
	// the selected data register, passes Update-DR and returns to Run-Test/Idle.
	// The captured bits are returned.
	ShiftDR(ctx context.Context, data uint64, bits int) (uint64, error)
}

// Closer is implemented by transports that hold hardware resources.
type Closer interface {
	Close() error
}

// Family describes USER data register instruction codes of one FPGA family.
// A code of 0 means the family has no such instruction.
type Family struct {
	Name  string
	IRLen int
	User  [4]uint32
	// ADATA and DDATA are indices into User selecting the registers AHBJTAG is
	// instantiated on.
	ADATA int
	DDATA int
}

func (f Family) ADATACode() uint32 { return f.User[f.ADATA] }
func (f Family) DDATACode() uint32 { return f.User[f.DDATA] }

func (f Family) String() string {
	return fmt.Sprintf("%s (IR %d bits, ADATA 0x%x, DDATA 0x%x)", f.Name, f.IRLen, f.ADATACode(), f.DDATACode())
}

var families = map[string]Family{
	"xilinx": {
		Name: "xilinx", IRLen: 6,
		User:  [4]uint32{0x02, 0x03, 0x22, 0x23},
		ADATA: 0, DDATA: 1,
	},
	"xilinx-v5": {
		Name: "xilinx-v5", IRLen: 10,
		User:  [4]uint32{0x3c2, 0x3c3, 0x3e2, 0x3e3},
		ADATA: 0, DDATA: 1,
	},
	"altera": {
		Name: "altera", IRLen: 10,
		User:  [4]uint32{0x00c, 0x00e, 0, 0},
		ADATA: 0, DDATA: 1,
	},
	"generic": {
		Name: "generic", IRLen: 6,
		User:  [4]uint32{0x02, 0x03, 0x04, 0x05},
		ADATA: 0, DDATA: 1,
	},
}

// LookupFamily returns instruction codes for the named FPGA family.
func LookupFamily(name string) (Family, error) {
	f, ok := families[name]
	if !ok {
		return Family{}, errors.NotFoundf("JTAG family %q (known: %s)", name, FamilyNames())
	}
	return f, nil
}

func FamilyNames() []string {
	var res []string
	for n := range families {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
