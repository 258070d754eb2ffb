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
	"testing"

	"github.com/juju/errors"
)

func TestLookupFamily(t *testing.T) {
	cases := []struct {
		name         string
		irLen        int
		adata, ddata uint32
	}{
		{"xilinx", 6, 0x02, 0x03},
		{"xilinx-v5", 10, 0x3c2, 0x3c3},
		{"altera", 10, 0x00c, 0x00e},
		{"generic", 6, 0x02, 0x03},
	}
	for _, c := range cases {
		f, err := LookupFamily(c.name)
		if err != nil {
			t.Fatalf("%s: %s", c.name, err)
		}
		if f.IRLen != c.irLen || f.ADATACode() != c.adata || f.DDATACode() != c.ddata {
			t.Errorf("%s: got %s", c.name, f)
		}
	}
}

func TestLookupUnknownFamily(t *testing.T) {
	_, err := LookupFamily("lattice")
	if !errors.IsNotFound(err) {
		t.Errorf("got %v, want a not found error", err)
	}
}
