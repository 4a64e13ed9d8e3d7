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
	"gvisor.dev/ukernel/pkg/cleanup"
)

// Fork returns a copy of mm. Every Framed page gets a new frame holding a copy
// of the original's contents, so the two address spaces share no writable
// memory. Linear and Identical areas map the same frames in both. The page
// table is rebuilt rather than shared.
func (mm *MemoryManager) Fork() (*MemoryManager, error) {
	child, err := newMemoryManager(mm.frames, mm.trampoline)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(child.Release)
	defer cu.Clean()

	file := mm.frames.File()
	copyArea := func(v *vma) (*vma, error) {
		nv := v.cloneEmpty()
		if err := child.mapRange(nv, nv.vpns); err != nil {
			return nil, err
		}
		for vpn, ppn := range v.frames {
			file.CopyFrame(nv.frames[vpn], ppn)
		}
		return nv, nil
	}

	var err2 error
	mm.vmas.Ascend(func(v *vma) bool {
		nv, err := copyArea(v)
		if err != nil {
			err2 = err
			return false
		}
		child.vmas.ReplaceOrInsert(nv)
		return true
	})
	if err2 != nil {
		return nil, err2
	}
	if mm.heap != nil {
		if child.heap, err = copyArea(mm.heap); err != nil {
			return nil, err
		}
	}
	child.heapBottom = mm.heapBottom
	child.brk = mm.brk

	cu.Release()
	return child, nil
}
