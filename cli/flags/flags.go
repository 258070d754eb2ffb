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
package flags

import (
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag/bitbang"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
)

var (
	Transport  = flag.String("transport", "sim", "JTAG transport: sim or gpio")
	Family     = flag.String("family", "xilinx", "FPGA family of the TAP hosting AHBJTAG: xilinx, xilinx-v5, altera or generic")
	Core       = flag.Int("core", 0, "Index of the core to operate on")
	ConfigFile = flag.String("config", "", "YAML tuning file")
	Timeout    = flag.Duration("timeout", 20*time.Second, "Timeout for the whole command")
	Verbose    = flag.Bool("verbose", false, "Verbose output")

	MaxAttempts = flag.Int("max-attempts", 0, "Maximum DDATA attempts per AHB access")
	HaltPolls   = flag.Int("halt-polls", 0, "Maximum DSU control reads while waiting for a halt")
	StepPolls   = flag.Int("step-polls", 0, "Maximum DSU control reads while waiting for a single step")
	Breakpoints = flag.Int("breakpoints", 0, "Number of hardware breakpoints (IU watchpoints) implemented")
	NWindows    = flag.Int("nwindows", 0, "Number of SPARC register windows")
	NoAPB       = flag.Bool("no-apb", false, "Do not scan APB buses behind bridges")

	GPIOTCK        = flag.Int("gpio-tck", 11, "BCM number of the TCK pin")
	GPIOTMS        = flag.Int("gpio-tms", 25, "BCM number of the TMS pin")
	GPIOTDI        = flag.Int("gpio-tdi", 10, "BCM number of the TDI pin")
	GPIOTDO        = flag.Int("gpio-tdo", 9, "BCM number of the TDO pin")
	GPIOTRST       = flag.Int("gpio-trst", -1, "BCM number of the TRST pin, -1 if not connected")
	GPIOHalfPeriod = flag.Duration("gpio-half-period", 0, "Delay between TCK edges")
	IRBefore       = flag.Int("ir-before", 0, "Total IR length of TAPs between the target TAP and TDO")
	IRAfter        = flag.Int("ir-after", 0, "Total IR length of TAPs between TDI and the target TAP")
	TAPsBefore     = flag.Int("taps-before", 0, "Number of TAPs between the target TAP and TDO")
	TAPsAfter      = flag.Int("taps-after", 0, "Number of TAPs between TDI and the target TAP")

	SimCores   = flag.Int("sim-cores", 1, "Number of cores of the simulated target")
	SimLatency = flag.Int("sim-latency", 0, "Wait states of the simulated AHB")
)

// Apply overrides cfg with the flags given on the command line.
func Apply(cfg *leon3.Config) {
	if flag.CommandLine.Changed("family") {
		cfg.AHBJTAG.Family = *Family
	}
	if *MaxAttempts > 0 {
		cfg.AHBJTAG.MaxAttempts = *MaxAttempts
	}
	if *HaltPolls > 0 {
		cfg.DSU3.HaltPolls = *HaltPolls
	}
	if *StepPolls > 0 {
		cfg.DSU3.StepPolls = *StepPolls
	}
	if flag.CommandLine.Changed("breakpoints") {
		cfg.DSU3.Breakpoints = *Breakpoints
	}
	if *NWindows > 0 {
		cfg.DSU3.NWindows = *NWindows
	}
	if *NoAPB {
		cfg.PlugAndPlay.ScanAPB = false
	}
}

func BitbangConfig() bitbang.Config {
	return bitbang.Config{
		TCK:           *GPIOTCK,
		TMS:           *GPIOTMS,
		TDI:           *GPIOTDI,
		TDO:           *GPIOTDO,
		TRST:          *GPIOTRST,
		HalfPeriod:    *GPIOHalfPeriod,
		IRBitsTDOSide: *IRBefore,
		IRBitsTDISide: *IRAfter,
		TAPsTDOSide:   *TAPsBefore,
		TAPsTDISide:   *TAPsAfter,
	}
}
