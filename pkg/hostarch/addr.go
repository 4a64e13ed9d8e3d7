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

import "fmt"

// Addr is a virtual address.
type Addr uint64

// PhysAddr is a physical address.
type PhysAddr uint64

// VPN is a virtual page number.
type VPN uint64

// PPN is a physical page number.
type PPN uint64

const (
	vaMask = (1 << VAWidth) - 1
	paMask = (1 << PAWidth) - 1

	vpnMask = (1 << VPNWidth) - 1
	ppnMask = (1 << PPNWidth) - 1
)

// PageOffset returns the offset of v into its page.
func (v Addr) PageOffset() uint64 {
	return uint64(v) & (PageSize - 1)
}

// IsPageAligned returns true if v is aligned to a page boundary.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// Floor returns the page containing v. Only the low VAWidth bits take part,
// so the trampoline and trap context pages resolve to the top of the SV39
// page number space.
func (v Addr) Floor() VPN {
	return VPN((uint64(v) & vaMask) >> PageShift)
}

// Ceil returns the first page starting at or above v.
func (v Addr) Ceil() VPN {
	if v == 0 {
		return 0
	}
	return VPN(((uint64(v)&vaMask)-1+PageSize)>>PageShift) & vpnMask
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// Addr returns the first address of page n.
func (n VPN) Addr() Addr {
	a := Addr(uint64(n&vpnMask) << PageShift)
	// Sign-extend bit 38 to produce a canonical SV39 address.
	if a&(1<<(VAWidth-1)) != 0 {
		a |= ^Addr(vaMask)
	}
	return a
}

// Indexes returns the page table index at each level, root first.
func (n VPN) Indexes() [PageTableLevels]int {
	var idx [PageTableLevels]int
	v := uint64(n)
	for i := PageTableLevels - 1; i >= 0; i-- {
		idx[i] = int(v & (PTEsPerNode - 1))
		v >>= 9
	}
	return idx
}

// Floor returns the frame containing p.
func (p PhysAddr) Floor() PPN {
	return PPN((uint64(p) & paMask) >> PageShift)
}

// PageOffset returns the offset of p into its frame.
func (p PhysAddr) PageOffset() uint64 {
	return uint64(p) & (PageSize - 1)
}

// String implements fmt.Stringer.String.
func (p PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// Addr returns the first physical address of frame n.
func (n PPN) Addr() PhysAddr {
	return PhysAddr(uint64(n&ppnMask) << PageShift)
}

// VPNRange is a half-open range of virtual page numbers [Start, End).
type VPNRange struct {
	Start VPN
	End   VPN
}

// RangeOf returns the pages covered by the addresses [start, end). start
// rounds down and end rounds up.
func RangeOf(start, end Addr) VPNRange {
	return VPNRange{Start: start.Floor(), End: end.Ceil()}
}

// Len returns the number of pages in r.
func (r VPNRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Contains returns true if n lies within r.
func (r VPNRange) Contains(n VPN) bool {
	return r.Start <= n && n < r.End
}

// Overlaps returns true if r and o share at least one page.
func (r VPNRange) Overlaps(o VPNRange) bool {
	return r.Start < o.End && o.Start < r.End && r.Len() != 0 && o.Len() != 0
}

// String implements fmt.Stringer.String.
func (r VPNRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint64(r.Start), uint64(r.End))
}
