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

// Package loader turns executable images into the segment layout an address
// space is built from, and resolves program names to image bytes.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// Segment is one contiguous region of an image.
type Segment struct {
	// Start and End bound the segment's virtual addresses.
	Start hostarch.Addr
	End   hostarch.Addr

	// Access is the permission the segment is mapped with. User access is
	// always added by the address space.
	Access hostarch.AccessType

	// Data is copied to Start. Bytes between Start+len(Data) and End are
	// zero.
	Data []byte
}

// Image describes a parsed executable.
type Image struct {
	// Segments are sorted by Start and do not share pages.
	Segments []Segment

	// Entry is the address of the first instruction.
	Entry hostarch.Addr
}

// End returns the end of the highest segment.
func (img *Image) End() hostarch.Addr {
	var end hostarch.Addr
	for _, s := range img.Segments {
		if s.End > end {
			end = s.End
		}
	}
	return end
}

// Parse parses an ELF image if data begins with the ELF magic and a flat
// image otherwise.
func Parse(data []byte) (*Image, error) {
	if bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		return ParseELF(data)
	}
	return ParseFlat(data)
}

// validate checks that segments are ordered, nonempty, in the lower half of
// the address space and that no two share a page.
func (img *Image) validate() error {
	var prevEnd hostarch.Addr
	for i, s := range img.Segments {
		if s.End <= s.Start {
			return fmt.Errorf("segment %d is empty: [%v, %v)", i, s.Start, s.End)
		}
		if s.End > hostarch.MaxUserAddress {
			return fmt.Errorf("segment %d ends at %v, beyond user memory", i, s.End)
		}
		if uint64(len(s.Data)) > uint64(s.End-s.Start) {
			return fmt.Errorf("segment %d has %d bytes of data for %d bytes of memory", i, len(s.Data), s.End-s.Start)
		}
		if i > 0 && s.Start.RoundDown() < prevEnd {
			return fmt.Errorf("segment %d at %v shares a page with the previous segment", i, s.Start)
		}
		prevEnd, _ = s.End.RoundUp()
	}
	if len(img.Segments) == 0 {
		return fmt.Errorf("image has no loadable segments")
	}
	return nil
}
