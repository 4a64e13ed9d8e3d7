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

// Package mm provides address spaces: a page table plus the areas mapped into
// it, the program break, and access to user memory through the page table.
//
// A MemoryManager is not safe for concurrent use. The task that owns it
// serializes access.
package mm

import (
	"github.com/google/btree"
	"gvisor.dev/ukernel/pkg/cleanup"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/ring0/pagetables"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
)

// btreeDegree is the degree of the area index.
const btreeDegree = 8

// Area names used in String output.
const (
	hintTrampoline  = "[trampoline]"
	hintTrapContext = "[trap context]"
	hintStack       = "[stack]"
	hintHeap        = "[heap]"
	hintMMap        = "[mmap]"
	hintKernelImage = "[kernel image]"
	hintPhysMem     = "[physical memory]"
	hintKernelStack = "[kernel stack]"
)

var (
	userRW      = pagetables.MapOpts{AccessType: hostarch.ReadWrite, User: true}
	kernelRW    = pagetables.MapOpts{AccessType: hostarch.ReadWrite}
	kernelRX    = pagetables.MapOpts{AccessType: hostarch.ReadExecute}
	trampolineX = pagetables.MapOpts{AccessType: hostarch.ReadExecute}
)

// MemoryManager is an address space.
type MemoryManager struct {
	frames     *pgalloc.FrameAllocator
	trampoline hostarch.PPN

	pt *pagetables.PageTables

	// vmas indexes the areas by first page. Areas never overlap.
	vmas *btree.BTreeG[*vma]

	// heap is the area grown and shrunk by Brk. It is kept out of vmas
	// because it starts empty at the stack top. It is nil in the kernel
	// space.
	heap *vma

	// heapBottom is the lowest value of brk.
	heapBottom hostarch.Addr

	// brk is the program break.
	brk hostarch.Addr

	released bool
}

func newMemoryManager(frames *pgalloc.FrameAllocator, trampoline hostarch.PPN) (*MemoryManager, error) {
	pt, err := pagetables.New(frames)
	if err != nil {
		return nil, err
	}
	return &MemoryManager{
		frames:     frames,
		trampoline: trampoline,
		pt:         pt,
		vmas:       btree.NewG[*vma](btreeDegree, vmaLess),
	}, nil
}

// insert maps every page of v and adds it to the index.
//
// Precondition: v overlaps no existing area.
func (mm *MemoryManager) insert(v *vma) error {
	if err := mm.mapRange(v, v.vpns); err != nil {
		return err
	}
	mm.vmas.ReplaceOrInsert(v)
	return nil
}

// mapTrampoline maps the shared trampoline frame at the top page.
func (mm *MemoryManager) mapTrampoline() error {
	v := newVMA(hostarch.VPNRange{Start: hostarch.Trampoline.Floor(), End: hostarch.Trampoline.Floor() + 1}, Linear, trampolineX, hintTrampoline)
	v.linear = mm.trampoline
	return mm.insert(v)
}

// FromImage builds a user address space from a parsed image: one Framed area
// per segment, then a guard page, the user stack, an empty heap at the stack
// top, the trap context page and the trampoline. It returns the address space,
// the initial stack pointer and the entry point.
func FromImage(frames *pgalloc.FrameAllocator, trampoline hostarch.PPN, img *loader.Image) (mm *MemoryManager, userSP, entry hostarch.Addr, err error) {
	mm, err = newMemoryManager(frames, trampoline)
	if err != nil {
		return nil, 0, 0, err
	}
	cu := cleanup.Make(mm.Release)
	defer cu.Clean()

	if err := mm.mapTrampoline(); err != nil {
		return nil, 0, 0, err
	}
	var maxEnd hostarch.VPN
	for _, seg := range img.Segments {
		v := newVMA(hostarch.RangeOf(seg.Start, seg.End), Framed, pagetables.MapOpts{AccessType: seg.Access, User: true}, segmentHint(seg.Access))
		if err := mm.insert(v); err != nil {
			return nil, 0, 0, err
		}
		mm.writeKernel(v, seg.Start, seg.Data)
		maxEnd = v.vpns.End
	}

	stackBottom := maxEnd.Addr() + hostarch.PageSize
	stackTop := stackBottom + hostarch.UserStackSize
	if err := mm.insert(newVMA(hostarch.RangeOf(stackBottom, stackTop), Framed, userRW, hintStack)); err != nil {
		return nil, 0, 0, err
	}
	mm.heapBottom = stackTop
	mm.brk = stackTop
	mm.heap = newVMA(hostarch.RangeOf(stackTop, stackTop), Framed, userRW, hintHeap)

	if err := mm.insert(newVMA(hostarch.RangeOf(hostarch.TrapContextBase, hostarch.Trampoline), Framed, kernelRW, hintTrapContext)); err != nil {
		return nil, 0, 0, err
	}

	cu.Release()
	return mm, stackTop, img.Entry, nil
}

func segmentHint(at hostarch.AccessType) string {
	switch {
	case at.Execute:
		return "[text]"
	case at.Write:
		return "[data]"
	default:
		return "[rodata]"
	}
}

// writeKernel copies data to addr, which lies in the Framed area v, without
// checking permissions.
func (mm *MemoryManager) writeKernel(v *vma, addr hostarch.Addr, data []byte) {
	file := mm.frames.File()
	for len(data) > 0 {
		page := file.FrameBytes(v.frames[addr.Floor()])
		n := copy(page[addr.PageOffset():], data)
		data = data[n:]
		addr += hostarch.Addr(n)
	}
}

// NewKernelSpace builds the kernel address space. The reserved frames below
// the allocator's range are identity mapped read-execute as the kernel image,
// the allocator's frames are identity mapped read-write, and the trampoline is
// mapped at the top page.
func NewKernelSpace(frames *pgalloc.FrameAllocator, trampoline hostarch.PPN) (*MemoryManager, error) {
	mm, err := newMemoryManager(frames, trampoline)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(mm.Release)
	defer cu.Clean()

	fileFirst, _ := frames.File().Frames()
	first, end := frames.Managed()
	if err := mm.insert(newVMA(hostarch.VPNRange{Start: hostarch.VPN(fileFirst), End: hostarch.VPN(first)}, Identical, kernelRX, hintKernelImage)); err != nil {
		return nil, err
	}
	if err := mm.insert(newVMA(hostarch.VPNRange{Start: hostarch.VPN(first), End: hostarch.VPN(end)}, Identical, kernelRW, hintPhysMem)); err != nil {
		return nil, err
	}
	if err := mm.mapTrampoline(); err != nil {
		return nil, err
	}
	cu.Release()
	return mm, nil
}

// InsertFramedArea maps [start, end), rounded out to pages, to fresh frames
// with the given options. If frames run out, nothing is mapped.
//
// Precondition: the range overlaps no existing area.
func (mm *MemoryManager) InsertFramedArea(start, end hostarch.Addr, opts pagetables.MapOpts) error {
	return mm.insert(newVMA(hostarch.RangeOf(start, end), Framed, opts, hintFor(opts)))
}

func hintFor(opts pagetables.MapOpts) string {
	if opts.User {
		return hintMMap
	}
	return hintKernelStack
}

// RemoveAreaWithStartVPN unmaps the area beginning at start and frees its
// frames. It returns false if no area begins at start.
func (mm *MemoryManager) RemoveAreaWithStartVPN(start hostarch.VPN) bool {
	v, ok := mm.vmas.Get(&vma{vpns: hostarch.VPNRange{Start: start}})
	if !ok {
		return false
	}
	mm.unmapRange(v, v.vpns)
	mm.vmas.Delete(v)
	return true
}

// findVMA returns the area containing vpn, including the heap.
func (mm *MemoryManager) findVMA(vpn hostarch.VPN) *vma {
	if mm.heap != nil && mm.heap.vpns.Contains(vpn) {
		return mm.heap
	}
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{vpns: hostarch.VPNRange{Start: vpn}}, func(v *vma) bool {
		if v.vpns.Contains(vpn) {
			found = v
		}
		return false
	})
	return found
}

// overlaps returns true if any area, including the heap, shares a page with r.
func (mm *MemoryManager) overlaps(r hostarch.VPNRange) bool {
	if r.Len() == 0 {
		return false
	}
	if mm.heap != nil && mm.heap.vpns.Overlaps(r) {
		return true
	}
	// Areas are disjoint, so the one starting last below r.End is the only
	// candidate.
	overlap := false
	mm.vmas.DescendLessOrEqual(&vma{vpns: hostarch.VPNRange{Start: r.End - 1}}, func(v *vma) bool {
		overlap = v.vpns.Overlaps(r)
		return false
	})
	return overlap
}

// Translate returns the page table entry for vpn.
func (mm *MemoryManager) Translate(vpn hostarch.VPN) (pagetables.PTE, bool) {
	return mm.pt.Translate(vpn)
}

// Token returns the token of the address space's page table.
func (mm *MemoryManager) Token() uint64 {
	return mm.pt.Token()
}

// Brk returns the current program break.
func (mm *MemoryManager) Brk() hostarch.Addr {
	return mm.brk
}

// HeapBottom returns the lowest possible program break.
func (mm *MemoryManager) HeapBottom() hostarch.Addr {
	return mm.heapBottom
}

// TrapContextPage returns the bytes of the trap context page. It returns nil
// for the kernel space.
func (mm *MemoryManager) TrapContextPage() []byte {
	v := mm.findVMA(hostarch.TrapContextBase.Floor())
	if v == nil || v.mapType != Framed {
		return nil
	}
	return mm.frames.File().FrameBytes(v.frames[hostarch.TrapContextBase.Floor()])
}

// FramesHeld returns the number of frames owned by the areas of mm, not
// counting page table nodes.
func (mm *MemoryManager) FramesHeld() int {
	n := 0
	mm.vmas.Ascend(func(v *vma) bool {
		n += len(v.frames)
		return true
	})
	if mm.heap != nil {
		n += len(mm.heap.frames)
	}
	return n
}

// Release frees every frame owned by the address space, including its page
// table. The address space must not be used afterwards.
func (mm *MemoryManager) Release() {
	if mm.released {
		panic("MemoryManager released twice")
	}
	mm.released = true
	free := func(v *vma) bool {
		for _, ppn := range v.frames {
			mm.frames.Free(ppn)
		}
		v.frames = nil
		return true
	}
	mm.vmas.Ascend(free)
	if mm.heap != nil {
		free(mm.heap)
	}
	mm.vmas.Clear(false)
	mm.pt.Release()
}
