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

// Package boot builds a kernel for a workload and runs it.
package boot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
	"gvisor.dev/ukernel/pkg/sentry/ktime"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
	"gvisor.dev/ukernel/pkg/sentry/platform"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
	ukcalls "gvisor.dev/ukernel/pkg/sentry/syscalls/uk"
	"gvisor.dev/ukernel/uksim/apps"
	"gvisor.dev/ukernel/uksim/config"
	"gvisor.dev/ukernel/uksim/flag"
	"gvisor.dev/ukernel/uksim/workload"
)

// Args are the arguments to New.
type Args struct {
	// Conf is the base configuration. Workload flags are applied to a copy.
	Conf *config.Config

	// Workload is the workload to run.
	Workload *workload.Workload

	// Console receives console output as it is written, in addition to the
	// copy kept for the result. It may be nil.
	Console io.Writer
}

// Result is the outcome of a run.
type Result struct {
	// Name is the workload name.
	Name string

	// ExitCode is init's exit code. It is only meaningful if Exited.
	ExitCode int32

	// Exited is true if init exited.
	Exited bool

	// Steps is the number of instructions user code retired.
	Steps uint64

	// Elapsed is the kernel time that passed during the run.
	Elapsed time.Duration

	// Stdout is the console output.
	Stdout string
}

// Loader keeps state needed to start the kernel and run a workload.
type Loader struct {
	// k is the kernel.
	k *kernel.Kernel

	conf *config.Config
	w    *workload.Workload

	// stdout holds the console output.
	stdout bytes.Buffer
}

// New builds the kernel for args.Workload.
func New(args Args) (*Loader, error) {
	conf, err := workloadConfig(args.Conf, args.Workload)
	if err != nil {
		return nil, err
	}
	table, err := args.Workload.Build(apps.Builtin())
	if err != nil {
		return nil, err
	}
	lookup := chainLookup{table}
	if conf.AppsDir != "" {
		lookup = append(lookup, loader.DirLookup{FS: os.DirFS(conf.AppsDir)})
	}

	l := &Loader{
		conf: conf,
		w:    args.Workload,
	}
	var console io.Writer = &l.stdout
	if args.Console != nil {
		console = io.MultiWriter(&l.stdout, args.Console)
	}
	var clock ktime.Clock
	if conf.VirtualClock {
		clock = ktime.NewManualClock(ktime.ZeroTime)
	}

	timeSlice := conf.TimeSlice
	l.k, err = kernel.New(kernel.InitKernelArgs{
		Config: conf.KernelConfig(),
		NewPlatform: func(mf *pgalloc.MemoryFile) platform.Platform {
			return interp.New(mf, timeSlice)
		},
		Clock:    clock,
		Apps:     lookup,
		Console:  console,
		Syscalls: ukcalls.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating kernel: %w", err)
	}
	return l, nil
}

// workloadConfig returns base with the workload's flags applied.
func workloadConfig(base *config.Config, w *workload.Workload) (*config.Config, error) {
	conf := base.Copy()
	if len(w.Flags) == 0 {
		return conf, nil
	}
	flagSet := flag.NewFlagSet("workload", flag.ContinueOnError)
	config.RegisterFlags(flagSet)
	for _, name := range w.FlagNames() {
		if err := conf.Override(flagSet, name, w.Flags[name]); err != nil {
			return nil, fmt.Errorf("workload %q: %w", w.Name, err)
		}
	}
	return conf, nil
}

// Kernel returns the loader's kernel.
func (l *Loader) Kernel() *kernel.Kernel {
	return l.k
}

// Config returns the configuration of the run, with workload flags applied.
func (l *Loader) Config() *config.Config {
	return l.conf
}

// CreateInit creates the workload's init task without running it.
func (l *Loader) CreateInit() (*kernel.Task, error) {
	t, err := l.k.CreateInit(l.w.Init)
	if err != nil {
		return nil, fmt.Errorf("failed to create init process: %w", err)
	}
	return t, nil
}

// Run creates init and runs the kernel until init exits. The returned error
// reports a kernel failure or an unmet workload expectation; the result is
// valid whenever init was created.
func (l *Loader) Run(ctx context.Context) (*Result, error) {
	if _, err := l.CreateInit(); err != nil {
		return nil, err
	}
	start := l.k.Now()
	err := l.k.Run(ctx)
	res := &Result{
		Name:    l.w.Name,
		Steps:   l.k.Steps(),
		Elapsed: l.k.Now().Sub(start),
		Stdout:  l.stdout.String(),
	}
	res.ExitCode, res.Exited = l.k.InitExitCode()
	if err != nil {
		return res, fmt.Errorf("workload %q: %w", l.w.Name, err)
	}
	log.Infof("Workload %q: init exited with code %d after %d steps", l.w.Name, res.ExitCode, res.Steps)
	if err := l.w.Check(res.ExitCode, res.Stdout); err != nil {
		return res, fmt.Errorf("workload %q: %w", l.w.Name, err)
	}
	return res, nil
}

// Destroy releases the kernel.
func (l *Loader) Destroy() {
	l.k.Release()
}

// chainLookup opens a path with the first lookup that has it.
type chainLookup []loader.FileLookup

// Open implements loader.FileLookup.Open.
func (c chainLookup) Open(path string) ([]byte, bool) {
	for _, l := range c {
		if data, ok := l.Open(path); ok {
			return data, true
		}
	}
	return nil, false
}
