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

// Package hostarch describes the simulated machine: page geometry, SV39 address
// widths, and the address and page-number types shared by the memory
// subsystems.
package hostarch

import "encoding/binary"

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page and of a physical frame.
	PageSize = 1 << PageShift

	// VAWidth is the number of significant bits in an SV39 virtual address.
	VAWidth = 39

	// PAWidth is the number of significant bits in an SV39 physical address.
	PAWidth = 56

	// VPNWidth is the number of bits in a virtual page number.
	VPNWidth = VAWidth - PageShift

	// PPNWidth is the number of bits in a physical page number.
	PPNWidth = PAWidth - PageShift

	// PTEsPerNode is the number of entries held by one page table node.
	PTEsPerNode = PageSize / 8

	// PageTableLevels is the depth of an SV39 page table walk.
	PageTableLevels = 3
)

const (
	// UserStackSize is the size of the stack mapped for every user image.
	UserStackSize = 2 * PageSize

	// KernelStackSize is the size of each task's kernel stack.
	KernelStackSize = 2 * PageSize

	// Trampoline is the top page of every address space. It maps the trap
	// entry code and is never user accessible.
	Trampoline Addr = ^Addr(0) - PageSize + 1

	// TrapContextBase is the page below the trampoline that holds a task's
	// saved trap context.
	TrapContextBase Addr = Trampoline - PageSize

	// MaxUserAddress is the end of the lower SV39 half. User mappings created
	// by mmap must lie below it.
	MaxUserAddress Addr = 1 << (VAWidth - 1)
)

// KernelStackPosition returns the [bottom, top) range of the kernel stack
// belonging to the task with the given id. Stacks are separated by one
// unmapped guard page.
func KernelStackPosition(id int) (bottom, top Addr) {
	top = Trampoline - Addr(id)*(KernelStackSize+PageSize)
	bottom = top - KernelStackSize
	return bottom, top
}

// ByteOrder is the native byte order of the simulated machine.
var ByteOrder = binary.LittleEndian
