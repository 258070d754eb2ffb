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
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
ahbjtag:
  family: altera
  max_attempts: 200
plugnplay:
  scan_apb: false
dsu3:
  breakpoints: 4
  regs:
    trap: 0x400020
`))
	require.NoError(t, err)
	want := leon3.DefaultConfig()
	want.AHBJTAG.Family = "altera"
	want.AHBJTAG.MaxAttempts = 200
	want.PlugAndPlay.ScanAPB = false
	want.DSU3.Breakpoints = 4
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("dsu3:\n  brekpoints: 3\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, leon3.DefaultConfig(), cfg)

	dir, err := ioutil.TempDir("", "leon3dbg")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("dsu3:\n  step_polls: 7\n"), 0644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.DSU3.StepPolls)
	assert.Equal(t, 100, cfg.DSU3.HaltPolls)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	s, err := Dump(leon3.DefaultConfig())
	require.NoError(t, err)
	cfg, err := Parse([]byte(s))
	require.NoError(t, err)
	assert.Equal(t, leon3.DefaultConfig(), cfg)
	assert.Contains(t, s, "max_attempts: 64")
}
