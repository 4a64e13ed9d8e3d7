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
	"bytes"
	"fmt"
	"strings"
)

func permString(v *vma) string {
	at := v.opts.AccessType
	b := []byte("----")
	if at.Read {
		b[0] = 'r'
	}
	if at.Write {
		b[1] = 'w'
	}
	if at.Execute {
		b[2] = 'x'
	}
	if v.opts.User {
		b[3] = 'u'
	}
	return string(b)
}

// mapsEntry returns a maps line for v, including the trailing newline.
func mapsEntry(v *vma) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%016x %07x-%07x %s %-10s",
		uint64(v.vpns.Start.Addr()), uint64(v.vpns.Start), uint64(v.vpns.End), permString(v), v.mapType)
	if v.hint != "" {
		// Pad so that names line up.
		if pad := 56 - b.Len(); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(v.hint)
	}
	b.WriteString("\n")
	return b.String()
}

// String renders one line per area in increasing address order, in the style
// of /proc/[pid]/maps: start address, page number range, permissions, mapping
// type and name. Page numbers are used for the range because the trampoline
// ends at the top of the address space.
// The heap is listed even while it is empty.
func (mm *MemoryManager) String() string {
	var b strings.Builder
	heapDone := mm.heap == nil
	mm.vmas.Ascend(func(v *vma) bool {
		if !heapDone && mm.heap.vpns.Start <= v.vpns.Start {
			b.WriteString(mapsEntry(mm.heap))
			heapDone = true
		}
		b.WriteString(mapsEntry(v))
		return true
	})
	if !heapDone {
		b.WriteString(mapsEntry(mm.heap))
	}
	return b.String()
}
