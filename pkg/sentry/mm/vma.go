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

package mm

import (
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/ring0/pagetables"
)

// MapType is how the pages of an area find their frames.
type MapType int

const (
	// Identical maps every page to the frame with the same number.
	Identical MapType = iota

	// Framed gives every page a frame of its own, allocated when the page is
	// mapped and freed when it is unmapped.
	Framed

	// Linear maps consecutive pages to consecutive frames starting at a
	// fixed frame. The frames are not owned by the area.
	Linear
)

// String implements fmt.Stringer.String.
func (t MapType) String() string {
	switch t {
	case Identical:
		return "identical"
	case Framed:
		return "framed"
	case Linear:
		return "linear"
	default:
		return fmt.Sprintf("MapType(%d)", int(t))
	}
}

// vma is one area of an address space: a contiguous range of pages sharing a
// mapping strategy and permissions.
type vma struct {
	vpns    hostarch.VPNRange
	mapType MapType
	opts    pagetables.MapOpts

	// frames holds the frame of every mapped page of a Framed area.
	frames map[hostarch.VPN]hostarch.PPN

	// linear is the frame backing vpns.Start in a Linear area.
	linear hostarch.PPN

	// hint names the area in String output.
	hint string
}

func newVMA(vpns hostarch.VPNRange, mapType MapType, opts pagetables.MapOpts, hint string) *vma {
	v := &vma{
		vpns:    vpns,
		mapType: mapType,
		opts:    opts,
		hint:    hint,
	}
	if mapType == Framed {
		v.frames = make(map[hostarch.VPN]hostarch.PPN)
	}
	return v
}

// cloneEmpty returns an area with the same shape and no frames.
func (v *vma) cloneEmpty() *vma {
	n := newVMA(v.vpns, v.mapType, v.opts, v.hint)
	n.linear = v.linear
	return n
}

// vmaLess orders areas by their first page.
func vmaLess(a, b *vma) bool {
	return a.vpns.Start < b.vpns.Start
}

// mapPage maps vpn of v into mm's page table, allocating a frame if v is
// Framed.
func (mm *MemoryManager) mapPage(v *vma, vpn hostarch.VPN) error {
	var ppn hostarch.PPN
	switch v.mapType {
	case Identical:
		ppn = hostarch.PPN(vpn)
	case Linear:
		ppn = v.linear + hostarch.PPN(vpn-v.vpns.Start)
	case Framed:
		var err error
		if ppn, err = mm.frames.Allocate(); err != nil {
			return err
		}
	}
	if err := mm.pt.Map(vpn, ppn, v.opts); err != nil {
		if v.mapType == Framed {
			mm.frames.Free(ppn)
		}
		return err
	}
	if v.mapType == Framed {
		v.frames[vpn] = ppn
	}
	return nil
}

// unmapPage reverses mapPage.
func (mm *MemoryManager) unmapPage(v *vma, vpn hostarch.VPN) {
	mm.pt.Unmap(vpn)
	if v.mapType == Framed {
		mm.frames.Free(v.frames[vpn])
		delete(v.frames, vpn)
	}
}

// mapRange maps the pages of r, which lie in v. If a page cannot be mapped,
// the pages of r mapped so far are unmapped again.
func (mm *MemoryManager) mapRange(v *vma, r hostarch.VPNRange) error {
	for vpn := r.Start; vpn < r.End; vpn++ {
		if err := mm.mapPage(v, vpn); err != nil {
			mm.unmapRange(v, hostarch.VPNRange{Start: r.Start, End: vpn})
			return err
		}
	}
	return nil
}

// unmapRange unmaps the pages of r, which lie in v.
func (mm *MemoryManager) unmapRange(v *vma, r hostarch.VPNRange) {
	for vpn := r.Start; vpn < r.End; vpn++ {
		mm.unmapPage(v, vpn)
	}
}
