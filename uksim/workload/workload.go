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

// Package workload describes a run of the kernel: the programs it can load,
// the program it starts as init and what the run is expected to produce.
//
// Workloads are read from TOML or YAML files:
//
//	name = "hello"
//	init = "main"
//	expect_exit = 0
//	expect_stdout = "hello, world\n"
//
//	[flags]
//	sched = "fifo"
//
//	[apps.main]
//	asm = """
//		li a0, 0
//		li a7, 93
//		ecall
//	"""
package workload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
)

// App is a program of a workload. Exactly one of Asm and File is set.
type App struct {
	// Asm is assembly source, assembled for the flat image base.
	Asm string `toml:"asm" yaml:"asm"`

	// File is the path of a program image, relative to the workload file.
	File string `toml:"file" yaml:"file"`
}

// Workload is a run of the kernel.
type Workload struct {
	// Name identifies the workload in logs. It defaults to the file name.
	Name string `toml:"name" yaml:"name"`

	// Init is the program started as the first task.
	Init string `toml:"init" yaml:"init"`

	// Apps are the programs of the workload, keyed by path. They shadow
	// built-in programs with the same name.
	Apps map[string]App `toml:"apps" yaml:"apps"`

	// Flags override configuration flags for this workload.
	Flags map[string]string `toml:"flags" yaml:"flags"`

	// ExpectExit is init's expected exit code, if set.
	ExpectExit *int32 `toml:"expect_exit" yaml:"expect_exit"`

	// ExpectStdout is the expected console output, if set.
	ExpectStdout *string `toml:"expect_stdout" yaml:"expect_stdout"`

	// dir is the directory of the workload file.
	dir string
}

// Load reads a workload file. The format follows the extension: .toml, .yaml
// or .yml. Unknown keys are errors.
func Load(path string) (*Workload, error) {
	var w Workload
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &w)
		if err != nil {
			return nil, fmt.Errorf("decoding workload %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("workload %q: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("decoding workload %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("workload %q: unknown format %q", path, ext)
	}
	w.dir = filepath.Dir(path)
	if w.Name == "" {
		w.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("workload %q: %w", path, err)
	}
	return &w, nil
}

// Validate checks that the workload is well formed.
func (w *Workload) Validate() error {
	if w.Init == "" {
		return fmt.Errorf("no init program")
	}
	for name, app := range w.Apps {
		if name == "" {
			return fmt.Errorf("app with empty name")
		}
		if (app.Asm == "") == (app.File == "") {
			return fmt.Errorf("app %q: exactly one of asm and file must be set", name)
		}
	}
	return nil
}

// FlagNames returns the names of the flags the workload overrides, sorted.
func (w *Workload) FlagNames() []string {
	names := make([]string, 0, len(w.Flags))
	for name := range w.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the program images of the workload layered over base. base
// is not modified.
func (w *Workload) Build(base loader.AppTable) (loader.AppTable, error) {
	t := make(loader.AppTable, len(base)+len(w.Apps))
	for name, data := range base {
		t[name] = data
	}
	for name, app := range w.Apps {
		if app.Asm != "" {
			data, err := interp.Assemble(app.Asm, loader.FlatBase)
			if err != nil {
				return nil, fmt.Errorf("assembling app %q: %w", name, err)
			}
			t[name] = data
			continue
		}
		path := app.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(w.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading app %q: %w", name, err)
		}
		t[name] = data
	}
	return t, nil
}

// Check compares the outcome of a run with the workload's expectations.
func (w *Workload) Check(code int32, stdout string) error {
	if w.ExpectExit != nil && *w.ExpectExit != code {
		return fmt.Errorf("init exited with code %d, want %d", code, *w.ExpectExit)
	}
	if w.ExpectStdout != nil && *w.ExpectStdout != stdout {
		return fmt.Errorf("console output %q, want %q", stdout, *w.ExpectStdout)
	}
	return nil
}
