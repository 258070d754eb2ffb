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
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag"
	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag/bitbang"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/sim"
	"github.com/mongoose-os/leon3dbg/cli/flags"
)

// openTransport returns the JTAG link selected by --transport. The simulated
// system is also returned so that sim-only commands can drive it.
func openTransport(cfg leon3.Config) (jtag.Transport, *sim.System, error) {
	switch *flags.Transport {
	case "sim":
		scfg := sim.DefaultConfig()
		scfg.Family = cfg.AHBJTAG.Family
		scfg.Cores = *flags.SimCores
		scfg.Latency = *flags.SimLatency
		scfg.NWindows = cfg.DSU3.NWindows
		scfg.Watchpoints = cfg.DSU3.Breakpoints
		scfg.ITraceLines = cfg.DSU3.ITraceLines
		scfg.ATraceLines = cfg.DSU3.ATraceLines
		s, err := sim.New(scfg)
		if err != nil {
			return nil, nil, errors.Annotatef(err, "failed to create simulated target")
		}
		return s, s, nil
	case "gpio":
		t, err := bitbang.Open(flags.BitbangConfig())
		if err != nil {
			return nil, nil, errors.Annotatef(err, "failed to open GPIO JTAG")
		}
		return t, nil, nil
	}
	return nil, nil, errors.NotSupportedf("transport %q", *flags.Transport)
}
