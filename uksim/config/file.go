// Copyright 2026 The gVisor Authors.
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

package config

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"gvisor.dev/ukernel/uksim/flag"
)

// File is the configuration file of uksim.
type File struct {
	// Flags holds flag values keyed by flag name. They are converted to
	// --key=value directly.
	Flags map[string]string `toml:"flags"`
}

// LoadFile loads a configuration file.
func LoadFile(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decoding config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return &f, nil
}

// Apply sets the flags of f that were not set on the command line.
func (f *File) Apply(flagSet *flag.FlagSet) error {
	set := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		set[fl.Name] = true
	})
	names := make([]string, 0, len(f.Flags))
	for name := range f.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if set[name] {
			continue
		}
		if flagSet.Lookup(name) == nil {
			return fmt.Errorf("config file sets unknown flag %q", name)
		}
		if err := flagSet.Set(name, f.Flags[name]); err != nil {
			return fmt.Errorf("config file sets flag %s=%q: %w", name, f.Flags[name], err)
		}
	}
	return nil
}
