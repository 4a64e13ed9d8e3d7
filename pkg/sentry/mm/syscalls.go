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
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/ring0/pagetables"
	"gvisor.dev/ukernel/pkg/syserror"
)

// MMap maps length bytes at start, rounded up to whole pages, to fresh
// user-accessible frames with the given permissions. It fails with EINVAL if
// start is not page aligned, the range leaves user memory or any page in it is
// already mapped, and with ENOMEM if there are not enough free frames. On
// failure the address space is unchanged.
//
// A zero length maps nothing and succeeds.
func (mm *MemoryManager) MMap(start hostarch.Addr, length uint64, at hostarch.AccessType) error {
	if !start.IsPageAligned() || !at.Any() {
		return unix.EINVAL
	}
	if length == 0 {
		return nil
	}
	end, ok := start.AddLength(length)
	if !ok || end > hostarch.MaxUserAddress {
		return unix.EINVAL
	}
	r := hostarch.RangeOf(start, end)
	for vpn := r.Start; vpn < r.End; vpn++ {
		if pte, ok := mm.pt.Translate(vpn); ok && pte.Valid() {
			return unix.EINVAL
		}
	}
	if mm.overlaps(r) {
		return unix.EINVAL
	}
	if uint64(mm.frames.UnusedCount()) < r.Len() {
		return syserror.ErrOutOfFrames
	}

	return mm.insert(newVMA(r, Framed, pagetables.MapOpts{AccessType: at, User: true}, hintMMap))
}

// MUnmap removes the user area that covers exactly the pages of
// [start, start+length) and frees its frames. Partial and multi-area unmaps
// fail with EINVAL, as do ranges containing an unmapped page. The heap is not
// an area here; it only shrinks through SBrk. On failure the address space is
// unchanged.
func (mm *MemoryManager) MUnmap(start hostarch.Addr, length uint64) error {
	if !start.IsPageAligned() || length == 0 {
		return unix.EINVAL
	}
	end, ok := start.AddLength(length)
	if !ok || end > hostarch.MaxUserAddress {
		return unix.EINVAL
	}
	r := hostarch.RangeOf(start, end)
	for vpn := r.Start; vpn < r.End; vpn++ {
		if pte, ok := mm.pt.Translate(vpn); !ok || !pte.Valid() {
			return unix.EINVAL
		}
	}
	v, ok := mm.vmas.Get(&vma{vpns: hostarch.VPNRange{Start: r.Start}})
	if !ok || v.vpns != r {
		log.Debugf("munmap of %v does not match a mapped area", r)
		return unix.EINVAL
	}
	mm.unmapRange(v, v.vpns)
	mm.vmas.Delete(v)
	return nil
}

// SBrk moves the program break by delta bytes and returns the old break. It
// fails with EINVAL if the break would drop below the heap bottom, and with
// ENOMEM if the heap cannot grow. On failure the address space is unchanged.
func (mm *MemoryManager) SBrk(delta int64) (hostarch.Addr, error) {
	if mm.heap == nil {
		return 0, unix.EINVAL
	}
	old := mm.brk
	newBrk := hostarch.Addr(int64(old) + delta)
	if (delta < 0 && newBrk > old) || (delta > 0 && newBrk < old) {
		return 0, unix.EINVAL
	}
	if newBrk < mm.heapBottom {
		return 0, unix.EINVAL
	}
	if newBrk > hostarch.MaxUserAddress {
		return 0, unix.ENOMEM
	}

	newEnd := newBrk.Ceil()
	switch cur := mm.heap.vpns; {
	case newEnd > cur.End:
		grow := hostarch.VPNRange{Start: cur.End, End: newEnd}
		if mm.overlaps(grow) {
			return 0, unix.ENOMEM
		}
		if uint64(mm.frames.UnusedCount()) < grow.Len() {
			return 0, syserror.ErrOutOfFrames
		}
		if err := mm.mapRange(mm.heap, grow); err != nil {
			return 0, err
		}
	case newEnd < cur.End:
		mm.unmapRange(mm.heap, hostarch.VPNRange{Start: newEnd, End: cur.End})
	}
	mm.heap.vpns.End = newEnd
	mm.brk = newBrk
	return old, nil
}
