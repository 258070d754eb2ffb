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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/sim"
	"github.com/mongoose-os/leon3dbg/cli/flags"
)

func newTestEnv(t *testing.T, cores int) (*env, *bytes.Buffer) {
	scfg := sim.DefaultConfig()
	scfg.Cores = cores
	s, err := sim.New(scfg)
	require.NoError(t, err)
	cfg := leon3.DefaultConfig()
	sess, err := leon3.Open(context.Background(), s, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	buf := &bytes.Buffer{}
	return &env{out: buf, cfg: cfg, sess: sess, sim: s}, buf
}

func runScript(t *testing.T, e *env, script string) {
	require.NoError(t, consoleLines(context.Background(), e, strings.NewReader(script)))
}

func TestConsoleScript(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, `
# comment
halt
step 2
reg pc
mem-write 0x40001000 0xdeadbeef
mem-read 0x40001000 1
mem-write 0x40001000 0xab b
mem-read 0x40001000 1
bp 0x40000100
bp
status
bogus
reg
quit
scan
`)
	got := out.String()
	for _, want := range []string{
		"core 0 halted at 0x40000000",
		"pc 0x40000004\npc 0x40000008\n",
		"pc = 0x40000008",
		"40001000: deadbeef",
		"40001000: abadbeef",
		"breakpoint 0 at 0x40000100",
		"0: 0x40000100\n1: -\n",
		"core 0: halted",
		`unknown command "bogus"`,
		"usage: reg <name> [value]",
	} {
		assert.Contains(t, got, want)
	}
	// Nothing runs after quit.
	assert.NotContains(t, got, "APBUART")
}

func TestConsoleErrorsDoNotStop(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, "step\nmem-read 0x40000002\nmem-write 0x40000000 0x1ff b\ntrace maybe\ncore 3\nresume\n")
	got := out.String()
	assert.Contains(t, got, "Error:")
	assert.Contains(t, got, "0x1ff")
	assert.Contains(t, got, `trace mode "maybe"`)
	assert.Contains(t, got, "core 0 running")
	assert.Equal(t, 0, e.core)
}

func TestScanAndInfo(t *testing.T) {
	e, out := newTestEnv(t, 2)
	runScript(t, e, "scan\ninfo\n")
	got := out.String()
	assert.Contains(t, got, "LEON3")
	assert.Contains(t, got, "AHBJTAG")
	assert.Contains(t, got, "APBUART")
	assert.Contains(t, got, "DSU3:      0x90000000 - 0xa0000000, 2 core(s)")
	assert.Contains(t, got, "transactions")
}

func TestSelectCoreAndStatus(t *testing.T) {
	e, out := newTestEnv(t, 2)
	runScript(t, e, "core 1\nhalt\nstatus\n")
	assert.Equal(t, 1, e.core)
	got := out.String()
	assert.Contains(t, got, "core 1 halted")
	assert.Contains(t, got, "core 0: running")
	assert.Contains(t, got, "core 1: halted")
}

func TestRegsAndTrace(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, "trace on\nhalt\nstep 3\nregs\nitrace 2\nreg o3 0x1234\nreg %o3\n")
	got := out.String()
	for _, want := range []string{"g0", "o7", "i7", "psr", "npc", "o3 = 0x00001234"} {
		assert.Contains(t, got, want)
	}
	assert.Contains(t, got, "40000004")
	assert.Contains(t, got, "40000008")
}

func TestSimRun(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, "sim-run 3\nhalt\n")
	got := out.String()
	assert.Contains(t, got, "core 0 executed 3 instruction(s)")
	assert.Contains(t, got, "core 0 halted at 0x4000000c")

	e.sim = nil
	out.Reset()
	runScript(t, e, "sim-run 1\n")
	assert.Contains(t, out.String(), "not supported")
}

func TestBreakpointThenInspect(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, "halt\nbp 0x40000010\nresume\nsim-run 100\nreg pc\nstep\nbp 0x40000020\n")
	got := out.String()
	assert.Contains(t, got, "core 0 executed 4 instruction(s)")
	assert.Contains(t, got, "pc = 0x40000010")
	assert.Contains(t, got, "pc 0x40000014")
	assert.Contains(t, got, "breakpoint 1 at 0x40000020")
	assert.NotContains(t, got, "Error:")
}

func TestLoadSave(t *testing.T) {
	e, out := newTestEnv(t, 1)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	saved := filepath.Join(dir, "out.bin")
	require.NoError(t, ioutil.WriteFile(in, []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab}, 0644))

	runScript(t, e, fmt.Sprintf("load 0x40002000 %s\nmem-read 0x40002000 2\nmem-read 0x40002000 1 d\nsave 0x40002000 5 %s\nmem-read 0x40002004 1 d\n", in, saved))
	got := out.String()
	assert.Contains(t, got, "wrote 8 bytes at 0x40002000")
	assert.Contains(t, got, "40002000: 01234567 89ab0000")
	assert.Contains(t, got, "40002000: 0123456789ab0000")
	assert.Contains(t, got, "saved 5 bytes from 0x40002000")
	assert.Contains(t, got, "unaligned double-word access")

	data, err := ioutil.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x23, 0x45, 0x67, 0x89}, data)
}

func TestShowConfig(t *testing.T) {
	e, out := newTestEnv(t, 1)
	runScript(t, e, "config\n")
	assert.Contains(t, out.String(), "max_attempts: 64")
}

func TestCompleteCommand(t *testing.T) {
	assert.ElementsMatch(t, []string{"reg", "regs", "resume"}, completeCommand("re"))
	assert.Equal(t, []string{"quit"}, completeCommand("q"))
	assert.Empty(t, completeCommand("console"))
}

func TestOpenTransport(t *testing.T) {
	saved := *flags.Transport
	defer func() { *flags.Transport = saved }()

	*flags.Transport = "sim"
	tr, s, err := openTransport(leon3.DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, tr)
	assert.NotNil(t, s)

	*flags.Transport = "usb"
	_, _, err = openTransport(leon3.DefaultConfig())
	assert.Error(t, err)
}
