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
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// ParseFlagSet iterates through all non-set flags in the given FlagSet,
// checks if there is an environment variable with the uppercased flag name
// prepended with the given envPrefix, and if so, sets flag value to the
// environment variable value. Names of the flags that were taken from the
// environment are returned in sorted order.
//
// It should be called after Parse is called for the given FlagSet.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) ([]string, error) {
	// pflag does not tell a flag set to its default value apart from a flag that
	// was not set at all, so collect everything and drop the ones Visit reports.
	nonset := make(map[string]*pflag.Flag)

	fs.VisitAll(func(f *pflag.Flag) {
		nonset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(nonset, f.Name)
	})

	return setFromEnv(nonset, envPrefix)
}

// Parse is the same as ParseFlagSet, but operates on pflag.CommandLine.
func Parse(envPrefix string) ([]string, error) {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

func setFromEnv(nonset map[string]*pflag.Flag, envPrefix string) ([]string, error) {
	var set []string
	for name, f := range nonset {
		envName := EnvName(name, envPrefix)
		envVar, ok := os.LookupEnv(envName)
		if !ok || envVar == "" {
			continue
		}
		if err := f.Value.Set(envVar); err != nil {
			return nil, errors.Annotatef(err, "invalid value %q for %s", envVar, envName)
		}
		f.Changed = true
		glog.V(1).Infof("--%s=%q (from %s)", name, envVar, envName)
		set = append(set, name)
	}
	sort.Strings(set)
	return set, nil
}

// EnvName returns the environment variable consulted for the flag.
func EnvName(flagName, envPrefix string) string {
	flagName = strings.ToUpper(flagName)
	flagName = strings.Replace(flagName, "-", "_", -1)
	return fmt.Sprint(envPrefix, flagName)
}
