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

package ktime

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// A Clock is an abstract time source.
type Clock interface {
	// Now returns the current time in nanoseconds according to the Clock.
	Now() Time
}

// Advancer is implemented by clocks whose time is moved forward explicitly.
type Advancer interface {
	// Advance moves the clock forward by d.
	Advance(d time.Duration)
}

// HostClock reads the host's monotonic clock.
type HostClock struct{}

// Now implements Clock.Now.
func (HostClock) Now() Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("clock_gettime(CLOCK_MONOTONIC) failed: " + err.Error())
	}
	return FromNanoseconds(ts.Nano())
}

// ManualClock is a clock that only moves when told to. The zero value reads
// ZeroTime.
type ManualClock struct {
	ns atomic.Int64
}

// NewManualClock returns a clock reading t.
func NewManualClock(t Time) *ManualClock {
	c := &ManualClock{}
	c.ns.Store(t.Nanoseconds())
	return c
}

// Now implements Clock.Now.
func (c *ManualClock) Now() Time {
	return FromNanoseconds(c.ns.Load())
}

// Advance implements Advancer.Advance.
func (c *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("ManualClock cannot move backwards")
	}
	c.ns.Add(d.Nanoseconds())
}
