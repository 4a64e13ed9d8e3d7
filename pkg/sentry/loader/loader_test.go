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
	"encoding/binary"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/hostarch"
)

type testProg struct {
	vaddr uint64
	flags elf.ProgFlag
	data  []byte
	memsz uint64
}

// buildELF assembles a minimal executable with one PT_LOAD header per prog.
func buildELF(t *testing.T, typ elf.Type, entry uint64, progs []testProg) []byte {
	t.Helper()
	const (
		ehsize    = 64
		phentsize = 56
	)
	hdr := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(progs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	off := uint64(ehsize + phentsize*len(progs))
	for _, p := range progs {
		memsz := p.memsz
		if memsz == 0 {
			memsz = uint64(len(p.data))
		}
		ph := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(p.flags),
			Off:    off,
			Vaddr:  p.vaddr,
			Paddr:  p.vaddr,
			Filesz: uint64(len(p.data)),
			Memsz:  memsz,
			Align:  hostarch.PageSize,
		}
		if err := binary.Write(&buf, binary.LittleEndian, &ph); err != nil {
			t.Fatalf("writing program header: %v", err)
		}
		off += uint64(len(p.data))
	}
	for _, p := range progs {
		buf.Write(p.data)
	}
	return buf.Bytes()
}

func TestParseELF(t *testing.T) {
	text := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	data := []byte("hello")
	b := buildELF(t, elf.ET_EXEC, 0x10004, []testProg{
		{vaddr: 0x11000, flags: elf.PF_R | elf.PF_W, data: data, memsz: 0x100},
		{vaddr: 0x10000, flags: elf.PF_R | elf.PF_X, data: text},
	})

	img, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := &Image{
		Segments: []Segment{
			{Start: 0x10000, End: 0x10008, Access: hostarch.ReadExecute, Data: text},
			{Start: 0x11000, End: 0x11100, Access: hostarch.ReadWrite, Data: data},
		},
		Entry: 0x10004,
	}
	if diff := cmp.Diff(want, img); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	if got := img.End(); got != 0x11100 {
		t.Errorf("End got %v want 0x11100", got)
	}
}

func TestParseELFErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{
			name: "shared object",
			data: buildELF(t, elf.ET_DYN, 0x10000, []testProg{{vaddr: 0x10000, flags: elf.PF_R, data: []byte{1}}}),
		},
		{
			name: "no loadable segments",
			data: buildELF(t, elf.ET_EXEC, 0x10000, nil),
		},
		{
			name: "segments share a page",
			data: buildELF(t, elf.ET_EXEC, 0x10000, []testProg{
				{vaddr: 0x10000, flags: elf.PF_R, data: []byte{1}},
				{vaddr: 0x10800, flags: elf.PF_R, data: []byte{2}},
			}),
		},
		{
			name: "kernel half",
			data: buildELF(t, elf.ET_EXEC, 0x10000, []testProg{{vaddr: uint64(hostarch.MaxUserAddress), flags: elf.PF_R, data: []byte{1}}}),
		},
		{
			name: "truncated",
			data: []byte(elf.ELFMAG + "\x02\x01"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.data); !errors.Is(err, unix.ENOEXEC) {
				t.Errorf("Parse got %v want %v", err, unix.ENOEXEC)
			}
		})
	}
}

func TestParseFlat(t *testing.T) {
	code := make([]byte, 20)
	img, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if img.Entry != FlatBase || len(img.Segments) != 1 {
		t.Fatalf("Parse got %+v want one segment at %v", img, FlatBase)
	}
	s := img.Segments[0]
	if s.Start != FlatBase || s.End != FlatBase+20 || s.Access != hostarch.ReadExecute {
		t.Errorf("segment got [%v, %v) %v", s.Start, s.End, s.Access)
	}
	if _, err := ParseFlat(nil); err == nil {
		t.Errorf("ParseFlat of an empty image succeeded")
	}
}

func TestLookup(t *testing.T) {
	apps := AppTable{"init": {1}, "child": {2}}
	if b, ok := apps.Open("child"); !ok || b[0] != 2 {
		t.Errorf("AppTable.Open(child) got (%v, %t)", b, ok)
	}
	if _, ok := apps.Open("missing"); ok {
		t.Errorf("AppTable.Open(missing) succeeded")
	}
	if diff := cmp.Diff([]string{"child", "init"}, apps.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	dir := DirLookup{FS: fstest.MapFS{"bin/hello": {Data: []byte("hi")}}}
	if b, ok := dir.Open("/bin/hello"); !ok || string(b) != "hi" {
		t.Errorf("DirLookup.Open(/bin/hello) got (%q, %t)", b, ok)
	}
	for _, path := range []string{"bin/missing", "../etc/passwd", "bin"} {
		if _, ok := dir.Open(path); ok {
			t.Errorf("DirLookup.Open(%q) succeeded", path)
		}
	}
}
