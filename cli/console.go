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
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/mongoose-os/leon3dbg/cli/ourutil"
)

const consolePrompt = "leon3> "

func console(ctx context.Context, e *env, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return consoleLines(ctx, e, os.Stdin)
	}
	l := liner.NewLiner()
	defer l.Close()
	l.SetCtrlCAborts(true)
	l.SetCompleter(completeCommand)
	for {
		line, err := l.Prompt(consolePrompt)
		switch {
		case err == liner.ErrPromptAborted || err == io.EOF:
			return nil
		case err != nil:
			return errors.Trace(err)
		}
		if strings.TrimSpace(line) != "" {
			l.AppendHistory(line)
		}
		if execLine(ctx, e, line) {
			return nil
		}
	}
}

// consoleLines runs commands read from r, one per line.
func consoleLines(ctx context.Context, e *env, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if execLine(ctx, e, sc.Text()) {
			return nil
		}
	}
	return errors.Trace(sc.Err())
}

// execLine runs one console line and reports whether the console should exit.
// Command errors are printed and do not end the session.
func execLine(ctx context.Context, e *env, line string) bool {
	args, err := shellwords.Parse(line)
	if err != nil {
		ourutil.Errorf(e.out, "Error: %s", err)
		return false
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return false
	}
	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		printCommands(e.out, true)
		return false
	}
	c := findCommand(args[0])
	if c == nil || c.name == "console" {
		ourutil.Errorf(e.out, "Error: unknown command %q, try \"help\"", args[0])
		return false
	}
	if err := runCommand(ctx, e, c, args[1:]); err != nil {
		ourutil.Errorf(e.out, "Error: %s", err)
	}
	return false
}

func completeCommand(line string) []string {
	var res []string
	for _, c := range commands {
		if c.name != "console" && strings.HasPrefix(c.name, line) {
			res = append(res, c.name)
		}
	}
	for _, s := range []string{"help", "quit"} {
		if strings.HasPrefix(s, line) {
			res = append(res, s)
		}
	}
	return res
}
