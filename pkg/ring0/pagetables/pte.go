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

package pagetables

import (
	"fmt"
	"strings"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// PTEFlags are the low flag bits of an SV39 page table entry.
type PTEFlags uint8

// Flag bits.
const (
	Valid PTEFlags = 1 << iota
	Readable
	Writable
	Executable
	User
	Global
	Accessed
	Dirty
)

// String implements fmt.Stringer.String.
func (f PTEFlags) String() string {
	var b strings.Builder
	for i, c := range "VRWXUGAD" {
		if f&(1<<i) != 0 {
			b.WriteRune(c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// MapOpts are the options for a single page mapping.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// User indicates the page is user-accessible.
	User bool

	// Global indicates the page is present in every address space.
	Global bool
}

// Flags encodes o as leaf PTE flags, including Valid.
func (o MapOpts) Flags() PTEFlags {
	f := Valid
	if o.AccessType.Read {
		f |= Readable
	}
	if o.AccessType.Write {
		f |= Writable
	}
	if o.AccessType.Execute {
		f |= Executable
	}
	if o.User {
		f |= User
	}
	if o.Global {
		f |= Global
	}
	return f
}

// ppnShift is the position of the physical page number within a PTE.
const ppnShift = 10

// PTE is an SV39 page table entry: the physical page number in bits 10..53
// and PTEFlags in bits 0..7.
type PTE uint64

// NewPTE returns an entry pointing at ppn.
func NewPTE(ppn hostarch.PPN, flags PTEFlags) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags))
}

// PPN returns the frame the entry points at.
func (p PTE) PPN() hostarch.PPN {
	return hostarch.PPN(uint64(p)>>ppnShift) & (1<<hostarch.PPNWidth - 1)
}

// Flags returns the flag bits of the entry.
func (p PTE) Flags() PTEFlags {
	return PTEFlags(p)
}

// Valid returns true if the entry is valid.
func (p PTE) Valid() bool {
	return p.Flags()&Valid != 0
}

// Readable returns true if the entry permits reads.
func (p PTE) Readable() bool {
	return p.Flags()&Readable != 0
}

// Writable returns true if the entry permits writes.
func (p PTE) Writable() bool {
	return p.Flags()&Writable != 0
}

// Executable returns true if the entry permits execution.
func (p PTE) Executable() bool {
	return p.Flags()&Executable != 0
}

// Opts decodes the entry's permissions.
func (p PTE) Opts() MapOpts {
	f := p.Flags()
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    f&Readable != 0,
			Write:   f&Writable != 0,
			Execute: f&Executable != 0,
		},
		User:   f&User != 0,
		Global: f&Global != 0,
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	return fmt.Sprintf("ppn=%#x flags=%s", uint64(p.PPN()), p.Flags())
}
