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
	"math"
	"testing"
	"time"
)

func TestTimeConversions(t *testing.T) {
	tm := FromMicroseconds(3_500_250)
	if got := tm.Microseconds(); got != 3_500_250 {
		t.Errorf("Microseconds got %d want 3500250", got)
	}
	if got := tm.Nanoseconds(); got != 3_500_250_000 {
		t.Errorf("Nanoseconds got %d want 3500250000", got)
	}
	if got := FromMicroseconds(math.MaxInt64); got != MaxTime {
		t.Errorf("FromMicroseconds(MaxInt64) got %v want MaxTime", got)
	}
}

func TestSub(t *testing.T) {
	a := FromNanoseconds(100)
	b := a.Add(50 * time.Nanosecond)
	if got := b.Sub(a); got != 50*time.Nanosecond {
		t.Errorf("Sub got %v want 50ns", got)
	}
	if got := MinTime.Sub(MaxTime); got != MinDuration {
		t.Errorf("MinTime.Sub(MaxTime) got %v want MinDuration", got)
	}
	if got := MaxTime.Add(time.Second); got != MaxTime {
		t.Errorf("MaxTime.Add got %v want MaxTime", got)
	}
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(FromMicroseconds(10))
	c.Advance(5 * time.Microsecond)
	if got := c.Now().Microseconds(); got != 15 {
		t.Errorf("Now got %dus want 15us", got)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Advance by a negative duration did not panic")
		}
	}()
	c.Advance(-time.Microsecond)
}

func TestManualClockZero(t *testing.T) {
	var c ManualClock
	if got := c.Now(); got != ZeroTime {
		t.Errorf("zero ManualClock got %v want %v", got, ZeroTime)
	}
}

func TestHostClockMonotonic(t *testing.T) {
	var c HostClock
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Errorf("HostClock went backwards: %v then %v", a, b)
	}
}
