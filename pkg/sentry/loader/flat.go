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

package loader

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/hostarch"
)

// FlatBase is where flat images are loaded and start executing.
const FlatBase hostarch.Addr = 0x10000

// ParseFlat treats data as raw instructions loaded at FlatBase. The image is
// readable and executable but not writable; programs that need writable
// memory use their stack, sbrk or mmap.
func ParseFlat(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, unix.ENOEXEC
	}
	img := &Image{
		Segments: []Segment{{
			Start:  FlatBase,
			End:    FlatBase + hostarch.Addr(len(data)),
			Access: hostarch.ReadExecute,
			Data:   data,
		}},
		Entry: FlatBase,
	}
	if err := img.validate(); err != nil {
		return nil, unix.ENOEXEC
	}
	return img, nil
}
