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
package ourutil

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
)

func Reportf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	glog.Infof(f, args...)
}

func Freportf(logFile io.Writer, f string, args ...interface{}) {
	fmt.Fprintf(logFile, f+"\n", args...)
	glog.Infof(f, args...)
}

// Errorf reports a failure in red.
func Errorf(w io.Writer, f string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(w, f+"\n", args...)
	glog.Errorf(f, args...)
}

// ParseUint32 parses decimal, 0x-prefixed hex or 0-prefixed octal numbers.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.Replace(s, "_", "", -1), 0, 32)
	if err != nil {
		return 0, errors.NotValidf("number %q", s)
	}
	return uint32(v), nil
}

func ParseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, errors.NotValidf("number %q", s)
	}
	return int(v), nil
}
