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

// Package config provides basic infrastructure to set configuration settings
// for uksim. Each setting that can be changed from the command line must have
// a flag tag. RegisterFlags, NewFromFlags and ToFlags keep them in sync.
package config

import (
	"fmt"
	"time"

	"github.com/mohae/deepcopy"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

// Config holds configuration that is not part of a workload.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// PhysFrames is the number of frames of emulated physical memory.
	PhysFrames int `flag:"phys-frames"`

	// KernelFrames is the number of frames reserved for the kernel image.
	KernelFrames int `flag:"kernel-frames"`

	// Sched is the scheduling policy.
	Sched SchedPolicy `flag:"sched"`

	// BigStride is the stride scheduler's numerator.
	BigStride uint64 `flag:"big-stride"`

	// DefaultPriority is the priority of new tasks.
	DefaultPriority int64 `flag:"default-priority"`

	// TimeSlice is the number of instructions a task runs before the timer
	// preempts it.
	TimeSlice int `flag:"time-slice"`

	// VirtualClock makes time advance with retired instructions instead of
	// following the host clock.
	VirtualClock bool `flag:"virtual-clock"`

	// StepTime is the time each retired instruction takes with
	// VirtualClock.
	StepTime time.Duration `flag:"step-time"`

	// MaxSteps bounds the instructions a workload may retire. Zero is
	// unbounded.
	MaxSteps uint64 `flag:"max-steps"`

	// AppsDir is a directory whose files exec and spawn can load in addition
	// to the built-in programs.
	AppsDir string `flag:"apps-dir"`

	// AllowFlagOverride allows workloads to override any flag.
	AllowFlagOverride bool `flag:"allow-flag-override"`
}

func (c *Config) validate() error {
	if c.TimeSlice <= 0 {
		return fmt.Errorf("time-slice must be positive, got %d", c.TimeSlice)
	}
	if c.StepTime < 0 {
		return fmt.Errorf("step-time must not be negative, got %v", c.StepTime)
	}
	if c.BigStride == 0 {
		return fmt.Errorf("big-stride must be positive")
	}
	switch c.LogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log-format %q", c.LogFormat)
	}
	switch c.DebugLogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid debug-log-format %q", c.DebugLogFormat)
	}
	return nil
}

// KernelConfig returns the kernel configuration described by c.
func (c *Config) KernelConfig() kernel.Config {
	kc := kernel.Config{
		PhysFrames:      c.PhysFrames,
		KernelFrames:    c.KernelFrames,
		Scheduler:       string(c.Sched),
		BigStride:       c.BigStride,
		DefaultPriority: c.DefaultPriority,
		MaxSteps:        c.MaxSteps,
	}
	if c.VirtualClock {
		kc.StepTime = c.StepTime
	}
	return kc
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs the flags that differ from their defaults.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t\t%s", f)
	}
}

// SchedPolicy is the scheduling policy of the kernel.
type SchedPolicy string

const (
	// SchedStride picks the ready task with the lowest stride.
	SchedStride SchedPolicy = kernel.SchedStride

	// SchedFIFO runs ready tasks in arrival order.
	SchedFIFO SchedPolicy = kernel.SchedFIFO
)

func schedPolicyPtr(v SchedPolicy) *SchedPolicy {
	return &v
}

// Set implements flag.Value.
func (s *SchedPolicy) Set(v string) error {
	switch SchedPolicy(v) {
	case SchedStride, SchedFIFO:
		*s = SchedPolicy(v)
	default:
		return fmt.Errorf("invalid scheduling policy %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (s *SchedPolicy) Get() any {
	return *s
}

// String implements flag.Value.
func (s SchedPolicy) String() string {
	return string(s)
}
