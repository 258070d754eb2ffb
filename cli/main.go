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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/leon3dbg/cli/config"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/sim"
	"github.com/mongoose-os/leon3dbg/cli/flags"
	"github.com/mongoose-os/leon3dbg/cli/ourutil"
	"github.com/mongoose-os/leon3dbg/common/pflagenv"
	"github.com/mongoose-os/leon3dbg/version"
)

const (
	envPrefix = "LEON3DBG_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

type command struct {
	name     string
	handler  handler
	short    string
	args     string
	minArgs  int
	optional []string
	extended bool
	// noSession commands do not talk to the target.
	noSession bool
}

type handler func(ctx context.Context, e *env, args []string) error

// commands is filled in init() because the console refers back to it.
var commands []command

func init() {
	commands = []command{
		{name: "scan", handler: scan, short: "List devices found by Plug&Play", optional: []string{"no-apb"}},
		{name: "info", handler: info, short: "Show DSU, link and core information"},
		{name: "status", handler: status, short: "Show run state of all cores"},
		{name: "halt", handler: halt, short: "Halt the core", optional: []string{"core", "halt-polls"}},
		{name: "resume", handler: resume, short: "Resume the core", optional: []string{"core"}},
		{name: "step", handler: step, short: "Execute instructions one at a time", args: "[count]", optional: []string{"core", "step-polls"}},
		{name: "regs", handler: regs, short: "Show IU registers of the halted core", optional: []string{"core", "nwindows"}},
		{name: "reg", handler: reg, short: "Read or write a register", args: "<name> [value]", minArgs: 1, optional: []string{"core"}},
		{name: "bp", handler: bp, short: "List breakpoints or set one", args: "[addr]", optional: []string{"core", "breakpoints"}},
		{name: "bp-clear", handler: bpClear, short: "Clear a breakpoint slot", args: "<slot>", minArgs: 1, optional: []string{"core"}},
		{name: "mem-read", handler: memRead, short: "Dump memory words or double-words", args: "<addr> [count] [w|d]", minArgs: 1, optional: []string{"max-attempts"}},
		{name: "mem-write", handler: memWrite, short: "Write a byte, half-word or word", args: "<addr> <value> [b|h|w]", minArgs: 2, optional: []string{"max-attempts"}},
		{name: "load", handler: load, short: "Write a binary file to target memory", args: "<addr> <file>", minArgs: 2, optional: []string{"max-attempts"}},
		{name: "save", handler: save, short: "Save target memory to a binary file", args: "<addr> <bytes> <file>", minArgs: 3, optional: []string{"max-attempts"}},
		{name: "itrace", handler: itrace, short: "Show the instruction trace buffer", args: "[lines]", optional: []string{"core"}},
		{name: "atrace", handler: atrace, short: "Show the AHB trace buffer", args: "[lines]", optional: []string{"core"}},
		{name: "trace", handler: trace, short: "Switch trace buffers on or off", args: "<on|off>", minArgs: 1, optional: []string{"core"}},
		{name: "core", handler: selectCore, short: "Show or select the current core", args: "[index]"},
		{name: "console", handler: console, short: "Interactive console"},
		{name: "config", handler: showConfig, short: "Print the effective tuning configuration", optional: []string{"config"}, noSession: true},
		{name: "sim-run", handler: simRun, short: "Let a simulated core execute instructions", args: "<count>", minArgs: 1, extended: true},
	}
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

// env is what command handlers operate on.
type env struct {
	out  io.Writer
	cfg  leon3.Config
	sess *leon3.Session
	// sim is set when the target is simulated.
	sim  *sim.System
	core int
}

func openEnv(ctx context.Context, withSession bool) (*env, error) {
	cfg, err := config.Load(*flags.ConfigFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	e := &env{out: os.Stdout, cfg: cfg, core: *flags.Core}
	if !withSession {
		return e, nil
	}
	t, s, err := openTransport(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if *flags.Verbose {
		ourutil.Reportf("Scanning the target over %s JTAG (%s)...", *flags.Transport, cfg.AHBJTAG.Family)
	}
	sess, err := leon3.Open(ctx, t, cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, f := range sess.Devices().Failures {
		ourutil.Reportf("Warning: %s", f)
	}
	e.sess, e.sim = sess, s
	return e, nil
}

func (e *env) close() {
	if e.sess != nil {
		if err := e.sess.Close(); err != nil {
			glog.Errorf("failed to close session: %s", err)
		}
	}
}

func runCommand(ctx context.Context, e *env, c *command, args []string) error {
	if len(args) < c.minArgs {
		return errors.Errorf("usage: %s %s", c.name, c.args)
	}
	ctx, cancel := context.WithTimeout(ctx, *flags.Timeout)
	defer cancel()
	return errors.Trace(c.handler(ctx, e, args))
}

func run() error {
	if flag.NArg() == 0 {
		usage()
		return nil
	}
	c := findCommand(flag.Arg(0))
	if c == nil {
		usage()
		return errors.NotFoundf("command %q", flag.Arg(0))
	}
	ctx := context.Background()
	e, err := openEnv(ctx, !c.noSession)
	if err != nil {
		return errors.Trace(err)
	}
	defer e.close()
	return errors.Trace(runCommand(ctx, e, c, flag.Args()[1:]))
}

func main() {
	initFlags()
	flag.Parse()
	if _, err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
