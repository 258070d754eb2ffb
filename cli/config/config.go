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
// Package config loads the YAML tuning file. Values not present in the file
// keep their compiled-in defaults.
package config

import (
	"io/ioutil"

	"github.com/golang/glog"
	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/leon3dbg/cli/debug/leon3"
)

func Parse(data []byte) (leon3.Config, error) {
	cfg := leon3.DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return leon3.Config{}, errors.Annotatef(err, "invalid tuning file")
	}
	return cfg, nil
}

// Load reads the tuning file at path. An empty path yields the defaults.
func Load(path string) (leon3.Config, error) {
	if path == "" {
		return leon3.DefaultConfig(), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return leon3.Config{}, errors.Trace(err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return leon3.Config{}, errors.Annotatef(err, "%s", path)
	}
	glog.V(1).Infof("loaded tuning file %s", path)
	return cfg, nil
}

// Dump renders cfg in the tuning file format.
func Dump(cfg leon3.Config) (string, error) {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}
