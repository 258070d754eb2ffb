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
	goflag "flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/leon3dbg/version"
)

var (
	hiddenFlags = []string{
		"alsologtostderr",
		"log_backtrace_at",
		"log_dir",
		"logbufsecs",
		"logtostderr",
		"stderrthreshold",
		"v",
		"vmodule",
		"sim-cores",
		"sim-latency",
	}
)

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	hideFlags()
	flag.Usage = usage
}

func hideFlags() {
	for _, f := range hiddenFlags {
		flag.CommandLine.MarkHidden(f)
	}
}

func unhideFlags() {
	for _, f := range hiddenFlags {
		f := flag.Lookup(f)
		if f != nil {
			f.Hidden = false
		}
	}
}

func printFlag(w io.Writer, opt string, name string) {
	f := flag.Lookup(name)
	if f == nil {
		return
	}
	arg := "<" + f.Value.Type() + ">"
	if f.Value.Type() == "bool" {
		arg = ""
	}
	fmt.Fprintf(w, "  --%s %s\t%s. %s, default value: %q\n", name, arg, f.Usage, opt, f.DefValue)
}

func printCommands(w io.Writer, extended bool) {
	for _, c := range commands {
		if c.extended && !extended {
			continue
		}
		fmt.Fprintf(w, "  %s %s\t\t%s\n", c.name, c.args, c.short)
	}
}

func usage() {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 1, ' ', 0)

	if len(os.Args) == 3 && os.Args[1] == "help" {
		if c := findCommand(os.Args[2]); c != nil {
			fmt.Fprintf(w, "%s %s %s FLAGS\n", os.Args[0], c.name, c.args)
			fmt.Fprintf(w, "\n%s.\n", c.short)
			fmt.Fprintf(w, "\nFlags:\n")
			for _, name := range c.optional {
				printFlag(w, "Optional", name)
			}
			printFlag(w, "Optional", "transport")
			printFlag(w, "Optional", "family")
			w.Flush()
			os.Exit(1)
		}
	}

	fmt.Fprintf(w, "LEON3 debugger over AHBJTAG %s.\n", version.Version)

	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s <command> [args]\n", os.Args[0])
	fmt.Fprintf(w, "\nCommands:\n")
	printCommands(w, *helpFull)

	fmt.Fprintf(w, "\nGlobal Flags:\n")
	if *helpFull {
		fmt.Fprintf(w, "%s", flag.CommandLine.FlagUsages())
	} else {
		printFlag(w, "Optional", "transport")
		printFlag(w, "Optional", "family")
		printFlag(w, "Optional", "core")
		printFlag(w, "Optional", "config")
		printFlag(w, "Optional", "verbose")
		printFlag(w, "Optional", "logtostderr")
	}

	w.Flush()
}
