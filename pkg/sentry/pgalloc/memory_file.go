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

package pgalloc

import (
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// MemoryFile is the simulated physical memory of the machine: a contiguous run
// of frames beginning at a fixed physical base address. Everything that the
// kernel maps (page table nodes, user pages, kernel stacks, trap contexts)
// lives in a MemoryFile.
type MemoryFile struct {
	base hostarch.PhysAddr

	// data backs every frame. Frame n lives at
	// data[(n-first)*PageSize:(n-first+1)*PageSize].
	data []byte
}

// NewMemoryFile returns physical memory of the given number of frames starting
// at base, which must be page aligned.
func NewMemoryFile(base hostarch.PhysAddr, frames int) (*MemoryFile, error) {
	if base.PageOffset() != 0 {
		return nil, fmt.Errorf("physical base %v is not page aligned", base)
	}
	if frames <= 0 {
		return nil, fmt.Errorf("invalid frame count %d", frames)
	}
	return &MemoryFile{
		base: base,
		data: make([]byte, frames*hostarch.PageSize),
	}, nil
}

// Frames returns the frames backed by f as [first, end).
func (f *MemoryFile) Frames() (first, end hostarch.PPN) {
	first = f.base.Floor()
	return first, first + hostarch.PPN(len(f.data)/hostarch.PageSize)
}

// Contains returns true if ppn is backed by f.
func (f *MemoryFile) Contains(ppn hostarch.PPN) bool {
	first, end := f.Frames()
	return first <= ppn && ppn < end
}

// FrameBytes returns the contents of frame ppn. The slice aliases physical
// memory.
//
// Precondition: f.Contains(ppn).
func (f *MemoryFile) FrameBytes(ppn hostarch.PPN) []byte {
	if !f.Contains(ppn) {
		panic(fmt.Sprintf("frame %#x is outside physical memory", uint64(ppn)))
	}
	off := int(ppn-f.base.Floor()) * hostarch.PageSize
	return f.data[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Bytes returns n bytes of physical memory starting at pa, or false if the
// range is not entirely backed by f.
func (f *MemoryFile) Bytes(pa hostarch.PhysAddr, n int) ([]byte, bool) {
	if pa < f.base || n < 0 {
		return nil, false
	}
	off := uint64(pa - f.base)
	if off > uint64(len(f.data)) || uint64(n) > uint64(len(f.data))-off {
		return nil, false
	}
	return f.data[off : off+uint64(n)], true
}

// ZeroFrame clears frame ppn.
func (f *MemoryFile) ZeroFrame(ppn hostarch.PPN) {
	clear(f.FrameBytes(ppn))
}

// CopyFrame copies the contents of frame src into frame dst.
func (f *MemoryFile) CopyFrame(dst, src hostarch.PPN) {
	copy(f.FrameBytes(dst), f.FrameBytes(src))
}
