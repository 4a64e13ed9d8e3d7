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
)

// userSlices returns the kernel views of [addr, addr+n) split at page
// boundaries. Every page must be mapped user-accessible with the access at,
// otherwise it returns EFAULT.
func (mm *MemoryManager) userSlices(addr hostarch.Addr, n int, at hostarch.AccessType) ([][]byte, error) {
	if n == 0 {
		return nil, nil
	}
	end, ok := addr.AddLength(uint64(n))
	if !ok || end > hostarch.MaxUserAddress {
		return nil, unix.EFAULT
	}
	file := mm.frames.File()
	var slices [][]byte
	for cur := addr; cur < end; {
		pte, ok := mm.pt.Translate(cur.Floor())
		if !ok || !pte.Valid() {
			return nil, unix.EFAULT
		}
		opts := pte.Opts()
		if !opts.User || !opts.AccessType.SupersetOf(at) {
			return nil, unix.EFAULT
		}
		page := file.FrameBytes(pte.PPN())
		off := cur.PageOffset()
		chunk := hostarch.PageSize - off
		if rem := uint64(end - cur); rem < chunk {
			chunk = rem
		}
		slices = append(slices, page[off:off+chunk])
		cur += hostarch.Addr(chunk)
	}
	return slices, nil
}

// CopyOut copies src to user memory at addr. Every destination page must be
// user-writable; if one is not, nothing is written and EFAULT is returned.
func (mm *MemoryManager) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	slices, err := mm.userSlices(addr, len(src), hostarch.Write)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range slices {
		n += copy(s, src[n:])
	}
	return n, nil
}

// CopyIn copies user memory at addr into dst. Every source page must be
// user-readable, otherwise EFAULT is returned.
func (mm *MemoryManager) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	slices, err := mm.userSlices(addr, len(dst), hostarch.Read)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range slices {
		n += copy(dst[n:], s)
	}
	return n, nil
}

// CopyInString reads a NUL-terminated string of at most maxlen bytes,
// excluding the terminator, from user memory at addr. The string may span
// pages. It returns EFAULT if a byte is not user-readable and ENAMETOOLONG if
// no terminator is found within maxlen bytes.
func (mm *MemoryManager) CopyInString(addr hostarch.Addr, maxlen int) (string, error) {
	var buf []byte
	var b [1]byte
	for i := 0; i <= maxlen; i++ {
		if _, err := mm.CopyIn(addr+hostarch.Addr(i), b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", unix.ENAMETOOLONG
}
