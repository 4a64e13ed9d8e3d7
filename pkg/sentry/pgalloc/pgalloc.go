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

// Package pgalloc contains the simulated physical memory and the allocator
// that hands out its frames.
package pgalloc

import (
	"fmt"

	"gvisor.dev/ukernel/pkg/bitmap"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/metric"
	"gvisor.dev/ukernel/pkg/sync"
	"gvisor.dev/ukernel/pkg/syserror"
)

var (
	frameAllocations = metric.MustCreateNewUint64Metric("/memory/frame_allocations", "Number of physical frames allocated.")
	frameFrees       = metric.MustCreateNewUint64Metric("/memory/frame_frees", "Number of physical frames returned to the allocator.")
	frameExhaustions = metric.MustCreateNewUint64Metric("/memory/frame_exhaustions", "Number of frame allocations that failed because memory was full.")
)

// FrameAllocator hands out frames of a MemoryFile. Frames that have never
// been allocated are taken in increasing order; freed frames are recycled
// last in, first out before untouched frames are used.
type FrameAllocator struct {
	file *MemoryFile

	mu sync.Mutex

	// first is the lowest frame managed by the allocator. Frames in
	// [first, current) have been handed out at least once; frames in
	// [current, end) never have.
	first   hostarch.PPN
	current hostarch.PPN
	end     hostarch.PPN

	// recycled is a stack of freed frames.
	recycled []hostarch.PPN

	// allocated has bit (ppn - first) set for every frame in use.
	allocated bitmap.Bitmap
}

// NewFrameAllocator returns an allocator for every frame of file except the
// first reserved ones, which are left to the caller.
func NewFrameAllocator(file *MemoryFile, reserved int) (*FrameAllocator, error) {
	first, end := file.Frames()
	if reserved < 0 || hostarch.PPN(reserved) >= end-first {
		return nil, fmt.Errorf("cannot reserve %d of %d frames", reserved, end-first)
	}
	first += hostarch.PPN(reserved)
	return &FrameAllocator{
		file:      file,
		first:     first,
		current:   first,
		end:       end,
		allocated: bitmap.New(uint32(end - first)),
	}, nil
}

// File returns the memory the allocator hands out.
func (a *FrameAllocator) File() *MemoryFile {
	return a.file
}

// Allocate returns a zeroed frame, or syserror.ErrOutOfFrames if none is
// free.
func (a *FrameAllocator) Allocate() (hostarch.PPN, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ppn hostarch.PPN
	switch {
	case len(a.recycled) > 0:
		ppn = a.recycled[len(a.recycled)-1]
		a.recycled = a.recycled[:len(a.recycled)-1]
	case a.current < a.end:
		ppn = a.current
		a.current++
	default:
		frameExhaustions.Increment()
		log.Debugf("Frame allocation failed: all %d frames in use", a.end-a.first)
		return 0, syserror.ErrOutOfFrames
	}
	a.allocated.Add(uint32(ppn - a.first))
	a.file.ZeroFrame(ppn)
	frameAllocations.Increment()
	return ppn, nil
}

// Free returns ppn to the allocator. Freeing a frame that is not allocated is
// a kernel bug and panics.
func (a *FrameAllocator) Free(ppn hostarch.PPN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ppn < a.first || ppn >= a.current || !a.allocated.Contains(uint32(ppn-a.first)) {
		panic(fmt.Sprintf("Frame ppn=%#x has not been allocated!", uint64(ppn)))
	}
	a.allocated.Remove(uint32(ppn - a.first))
	a.recycled = append(a.recycled, ppn)
	frameFrees.Increment()
}

// Managed returns the frames handed out by the allocator as [first, end).
// Frames of the file below first are reserved.
func (a *FrameAllocator) Managed() (first, end hostarch.PPN) {
	return a.first, a.end
}

// UnusedCount returns the number of frames that can still be allocated.
func (a *FrameAllocator) UnusedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.end-a.current) + len(a.recycled)
}

// InUse returns the number of allocated frames.
func (a *FrameAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.allocated.GetNumOnes())
}

// Allocated returns every allocated frame in increasing order.
func (a *FrameAllocator) Allocated() []hostarch.PPN {
	a.mu.Lock()
	defer a.mu.Unlock()
	bits := a.allocated.ToSlice()
	ppns := make([]hostarch.PPN, len(bits))
	for i, b := range bits {
		ppns[i] = a.first + hostarch.PPN(b)
	}
	return ppns
}
