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

package hostarch

import "testing"

func TestFloorCeil(t *testing.T) {
	for _, tc := range []struct {
		addr  Addr
		floor VPN
		ceil  VPN
	}{
		{0, 0, 0},
		{1, 0, 1},
		{PageSize, 1, 1},
		{PageSize + 1, 1, 2},
		{0x10000, 0x10, 0x10},
	} {
		if got := tc.addr.Floor(); got != tc.floor {
			t.Errorf("%v.Floor() got %#x want %#x", tc.addr, got, tc.floor)
		}
		if got := tc.addr.Ceil(); got != tc.ceil {
			t.Errorf("%v.Ceil() got %#x want %#x", tc.addr, got, tc.ceil)
		}
	}
}

func TestHighPages(t *testing.T) {
	vpn := Trampoline.Floor()
	if want := VPN(1<<VPNWidth - 1); vpn != want {
		t.Fatalf("Trampoline.Floor() got %#x want %#x", vpn, want)
	}
	if got := vpn.Addr(); got != Trampoline {
		t.Errorf("VPN(%#x).Addr() got %v want %v", vpn, got, Trampoline)
	}
	if got := TrapContextBase.Floor().Addr(); got != TrapContextBase {
		t.Errorf("trap context page round trip got %v want %v", got, TrapContextBase)
	}
	if got, want := vpn.Indexes(), [PageTableLevels]int{511, 511, 511}; got != want {
		t.Errorf("Indexes got %v want %v", got, want)
	}
}

func TestIndexes(t *testing.T) {
	vpn := VPN(3<<18 | 5<<9 | 7)
	if got, want := vpn.Indexes(), [PageTableLevels]int{3, 5, 7}; got != want {
		t.Errorf("Indexes got %v want %v", got, want)
	}
}

func TestVPNRange(t *testing.T) {
	r := RangeOf(0x1800, 0x3001)
	if r.Start != 1 || r.End != 4 || r.Len() != 3 {
		t.Fatalf("RangeOf got %v len %d want [0x1, 0x4) len 3", r, r.Len())
	}
	if !r.Contains(3) || r.Contains(4) {
		t.Errorf("Contains got the wrong membership for %v", r)
	}
	for _, tc := range []struct {
		o    VPNRange
		want bool
	}{
		{VPNRange{0, 1}, false},
		{VPNRange{0, 2}, true},
		{VPNRange{3, 9}, true},
		{VPNRange{4, 9}, false},
		{VPNRange{2, 2}, false},
	} {
		if got := r.Overlaps(tc.o); got != tc.want {
			t.Errorf("%v.Overlaps(%v) got %t want %t", r, tc.o, got, tc.want)
		}
	}
}

func TestKernelStackPosition(t *testing.T) {
	b0, t0 := KernelStackPosition(0)
	b1, t1 := KernelStackPosition(1)
	if t0 != Trampoline || t0-b0 != KernelStackSize {
		t.Errorf("stack 0 got [%v, %v)", b0, t0)
	}
	if b0-t1 != PageSize || t1-b1 != KernelStackSize {
		t.Errorf("stack 1 got [%v, %v), want a one page guard below %v", b1, t1, b0)
	}
}
