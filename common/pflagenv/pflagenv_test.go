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
package pflagenv

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

func TestParseFlagSet(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)

	var family, transport, config, core string
	fs.StringVar(&family, "family", "xilinx", "")
	fs.StringVar(&transport, "transport", "sim", "")
	fs.StringVar(&config, "config", "", "")
	fs.StringVar(&core, "core", "0", "")
	fs.Parse([]string{"--family=altera", "--transport="})

	os.Setenv("TEST_FAMILY", "generic")
	os.Setenv("TEST_TRANSPORT", "gpio")
	os.Setenv("TEST_CONFIG", "tune.yaml")
	defer func() {
		os.Unsetenv("TEST_FAMILY")
		os.Unsetenv("TEST_TRANSPORT")
		os.Unsetenv("TEST_CONFIG")
	}()
	set, err := ParseFlagSet(fs, "TEST_")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if got, want := family, "altera"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := transport, ""; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := config, "tune.yaml"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := core, "0"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := set, []string{"config"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestParseFlagSetBadValue(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)
	var attempts int
	fs.IntVar(&attempts, "max-attempts", 64, "")
	fs.Parse(nil)

	os.Setenv("TEST_MAX_ATTEMPTS", "many")
	defer os.Unsetenv("TEST_MAX_ATTEMPTS")
	_, err := ParseFlagSet(fs, "TEST_")
	if err == nil {
		t.Fatalf("expected an error for a non-numeric value")
	}
	if msg := err.Error(); !strings.Contains(msg, `invalid value "many" for TEST_MAX_ATTEMPTS`) {
		t.Errorf("unexpected message: %q", msg)
	}
	if errors.Cause(err) == err {
		t.Errorf("the parse error is not preserved as the cause")
	}
}

func TestEnvName(t *testing.T) {
	if got, want := EnvName("gpio-tck", "LEON3DBG_"), "LEON3DBG_GPIO_TCK"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}
