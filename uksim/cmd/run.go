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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/metric"
	"gvisor.dev/ukernel/uksim/apps"
	"gvisor.dev/ukernel/uksim/boot"
	"gvisor.dev/ukernel/uksim/config"
	"gvisor.dev/ukernel/uksim/flag"
	"gvisor.dev/ukernel/uksim/workload"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	jobs    int
	metrics string
	quiet   bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run workloads, each on its own kernel"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] [workload file...] - runs each workload on a fresh kernel and reports how init exited.

With no workload file, the built-in init program is run.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.jobs, "j", 4, "number of workloads to run concurrently.")
	f.StringVar(&r.metrics, "metrics", "", "write metrics in Prometheus text format to this file after the run; '-' is stdout.")
	f.BoolVar(&r.quiet, "quiet", false, "do not print console output.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	if r.jobs < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	var ws []*workload.Workload
	for _, path := range f.Args() {
		w, err := workload.Load(path)
		if err != nil {
			Fatalf("%v", err)
		}
		ws = append(ws, w)
	}
	if len(ws) == 0 {
		ws = append(ws, &workload.Workload{Name: apps.Default, Init: apps.Default})
	}

	results, errs := runWorkloads(ctx, conf, ws, r.jobs)
	if err := writeResults(os.Stdout, ws, results, errs, !r.quiet); err != nil {
		Fatalf("writing results: %v", err)
	}
	if r.metrics != "" {
		if err := writeMetrics(r.metrics); err != nil {
			Fatalf("writing metrics: %v", err)
		}
	}
	for _, err := range errs {
		if err != nil {
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// runWorkloads runs ws, at most jobs at a time. The i-th result and error
// belong to ws[i].
func runWorkloads(ctx context.Context, conf *config.Config, ws []*workload.Workload, jobs int) ([]*boot.Result, []error) {
	results := make([]*boot.Result, len(ws))
	errs := make([]error, len(ws))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, w := range ws {
		i, w := i, w
		g.Go(func() error {
			results[i], errs[i] = runWorkload(ctx, conf, w)
			if errs[i] != nil {
				log.Warningf("%v", errs[i])
			}
			return nil
		})
	}
	g.Wait()
	return results, errs
}

func runWorkload(ctx context.Context, conf *config.Config, w *workload.Workload) (*boot.Result, error) {
	l, err := boot.New(boot.Args{Conf: conf, Workload: w})
	if err != nil {
		return nil, err
	}
	defer l.Destroy()
	return l.Run(ctx)
}

// writeResults prints one line per workload, then the console output of
// each if stdout is set.
func writeResults(w io.Writer, ws []*workload.Workload, results []*boot.Result, errs []error, stdout bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", "WORKLOAD", "EXIT", "STEPS", "ELAPSED", "STATUS"); err != nil {
		return err
	}
	for i, res := range results {
		status := "ok"
		if errs[i] != nil {
			status = errs[i].Error()
		}
		if res == nil {
			if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ws[i].Name, "-", "-", "-", status); err != nil {
				return err
			}
			continue
		}
		exit := "-"
		if res.Exited {
			exit = fmt.Sprint(res.ExitCode)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\n", res.Name, exit, res.Steps, res.Elapsed, status); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !stdout {
		return nil
	}
	for _, res := range results {
		if res == nil || res.Stdout == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n--- %s ---\n%s", res.Name, res.Stdout); err != nil {
			return err
		}
	}
	return nil
}

func writeMetrics(path string) error {
	if path == "-" {
		_, err := metric.Write(os.Stdout)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := metric.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
