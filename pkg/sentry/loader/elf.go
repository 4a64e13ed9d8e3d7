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
	"bytes"
	"debug/elf"
	"sort"

	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/log"
)

// ParseELF returns the PT_LOAD segments and entry point of a 64-bit little
// endian ELF executable.
func ParseELF(data []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		log.Infof("Error parsing ELF header: %v", err)
		return nil, unix.ENOEXEC
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		log.Infof("Unsupported ELF class %v or encoding %v", f.Class, f.Data)
		return nil, unix.ENOEXEC
	}
	if f.Type != elf.ET_EXEC {
		log.Infof("ELF type %v is not an executable", f.Type)
		return nil, unix.ENOEXEC
	}

	img := &Image{Entry: hostarch.Addr(f.Entry)}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		if prog.Filesz > prog.Memsz {
			log.Warningf("PT_LOAD segment filesz %#x > memsz %#x", prog.Filesz, prog.Memsz)
			return nil, unix.ENOEXEC
		}
		start := hostarch.Addr(prog.Vaddr)
		end, ok := start.AddLength(prog.Memsz)
		if !ok {
			log.Warningf("PT_LOAD segment size overflows: %#x + %#x", start, prog.Memsz)
			return nil, unix.ENOEXEC
		}
		seg := Segment{
			Start: start,
			End:   end,
			Access: hostarch.AccessType{
				Read:    prog.Flags&elf.PF_R != 0,
				Write:   prog.Flags&elf.PF_W != 0,
				Execute: prog.Flags&elf.PF_X != 0,
			},
			Data: make([]byte, prog.Filesz),
		}
		if _, err := prog.ReadAt(seg.Data, 0); err != nil {
			log.Warningf("PT_LOAD segment at %v extends beyond the end of the file: %v", start, err)
			return nil, unix.ENOEXEC
		}
		img.Segments = append(img.Segments, seg)
	}
	sort.Slice(img.Segments, func(i, j int) bool {
		return img.Segments[i].Start < img.Segments[j].Start
	})

	if err := img.validate(); err != nil {
		log.Warningf("Invalid ELF image: %v", err)
		return nil, unix.ENOEXEC
	}
	return img, nil
}
