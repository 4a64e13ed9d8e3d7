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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
	"gvisor.dev/ukernel/uksim/flag"
)

func TestDefault(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	// All defaults doesn't require setting flags.
	flags := c.ToFlags()
	if len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}

	want := kernel.Config{
		PhysFrames:      4096,
		KernelFrames:    16,
		Scheduler:       kernel.SchedStride,
		BigStride:       kernel.DefaultBigStride,
		DefaultPriority: kernel.DefaultPriority,
		StepTime:        time.Microsecond,
	}
	if diff := cmp.Diff(want, c.KernelConfig()); diff != "" {
		t.Errorf("KernelConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	for name, val := range map[string]string{
		"debug":         "true",
		"phys-frames":   "123",
		"sched":         "fifo",
		"virtual-clock": "false",
	} {
		if err := testFlags.Lookup(name).Value.Set(val); err != nil {
			t.Errorf("Flag set: %v", err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := 123; c.PhysFrames != want {
		t.Errorf("PhysFrames=%v, want: %v", c.PhysFrames, want)
	}
	if want := SchedFIFO; c.Sched != want {
		t.Errorf("Sched=%v, want: %v", c.Sched, want)
	}
	if got := c.KernelConfig().StepTime; got != 0 {
		t.Errorf("KernelConfig().StepTime=%v without virtual clock, want: 0", got)
	}
}

func TestInvalidFlags(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Set("sched", "lottery"); err == nil {
		t.Errorf("setting sched=lottery succeeded")
	}
	if err := testFlags.Set("time-slice", "0"); err != nil {
		t.Fatalf("Flag set: %v", err)
	}
	if _, err := NewFromFlags(testFlags); err == nil {
		t.Errorf("NewFromFlags with time-slice=0 succeeded")
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	testFlags.Set("debug", "true")
	testFlags.Set("time-slice", "1000") // Matches default value.
	testFlags.Set("max-steps", "5000")
	testFlags.Set("sched", "fifo")
	testFlags.Set("step-time", "1ms")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	t.Logf("Flags: %s", flags)
	fm := map[string]string{}
	for _, f := range flags {
		kv := strings.Split(f, "=")
		fm[kv[0]] = kv[1]
	}
	want := map[string]string{
		"--debug":     "true",
		"--max-steps": "5000",
		"--sched":     "fifo",
		"--step-time": "1ms",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestOverride(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	orig := c.Copy()

	if err := c.Override(testFlags, "sched", "fifo"); err != nil {
		t.Fatalf("Override(sched): %v", err)
	}
	if want := SchedFIFO; c.Sched != want {
		t.Errorf("Sched=%v, want: %v", c.Sched, want)
	}
	if want := SchedStride; orig.Sched != want {
		t.Errorf("copy Sched=%v, want: %v", orig.Sched, want)
	}
	if err := c.Override(testFlags, "debug-log", "/tmp/x"); err == nil {
		t.Errorf("Override(debug-log) without allow-flag-override succeeded")
	}
	if err := c.Override(testFlags, "no-such-flag", "1"); err == nil {
		t.Errorf("Override(no-such-flag) succeeded")
	}
	if err := c.Copy().Override(testFlags, "time-slice", "-1"); err == nil {
		t.Errorf("Override(time-slice=-1) succeeded")
	}

	c.AllowFlagOverride = true
	if err := c.Override(testFlags, "debug-log", "/tmp/x"); err != nil {
		t.Errorf("Override(debug-log) with allow-flag-override: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uksim.toml")
	data := `
[flags]
sched = "fifo"
phys-frames = "2048"
time-slice = "50"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	// Flags on the command line win.
	if err := testFlags.Parse([]string{"--time-slice=10"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Apply(testFlags); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sched != SchedFIFO || c.PhysFrames != 2048 || c.TimeSlice != 10 {
		t.Errorf("got sched=%v phys-frames=%d time-slice=%d, want fifo 2048 10", c.Sched, c.PhysFrames, c.TimeSlice)
	}
}

func TestConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"unknown-key.toml":  "runtime = \"x\"\n",
		"unknown-flag.toml": "[flags]\nno-such-flag = \"1\"\n",
		"bad-value.toml":    "[flags]\nphys-frames = \"many\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}
			f, err := LoadFile(path)
			if err != nil {
				return
			}
			testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
			RegisterFlags(testFlags)
			if err := f.Apply(testFlags); err == nil {
				t.Errorf("Apply succeeded")
			}
		})
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("LoadFile(missing) succeeded")
	}
}
