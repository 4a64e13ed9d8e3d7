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

package interp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/mm"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
	"gvisor.dev/ukernel/pkg/sentry/platform"
)

func decodeAll(t *testing.T, b []byte) []Inst {
	t.Helper()
	if len(b)%InstSize != 0 {
		t.Fatalf("image length %d is not a multiple of %d", len(b), InstSize)
	}
	var insts []Inst
	for off := 0; off < len(b); off += InstSize {
		i, ok := Decode(b[off:])
		if !ok {
			t.Fatalf("illegal instruction at offset %d: %x", off, b[off:off+InstSize])
		}
		insts = append(insts, i)
	}
	return insts
}

func TestAssemble(t *testing.T) {
	b, err := Assemble(`
start:	nop          # first
	li a0, -1
	addi sp, sp, 16
	add t0, t1, t2
	ld a1, 8(sp)
	sd a1, -8(s0)
	beq a0, zero, start
	j start
	call start
	mv a2, a3
	la a4, start
	ret
	ecall
`, 0x1000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	want := []Inst{
		{Op: OpNop},
		{Op: OpLi, Rd: 10, Imm: -1},
		{Op: OpAddi, Rd: 2, Rs1: 2, Imm: 16},
		{Op: OpAdd, Rd: 5, Rs1: 6, Rs2: 7},
		{Op: OpLd, Rd: 11, Rs1: 2, Imm: 8},
		{Op: OpSd, Rs2: 11, Rs1: 8, Imm: -8},
		{Op: OpBeq, Rs1: 10, Rs2: 0, Imm: -48},
		{Op: OpJal, Rd: 0, Imm: -56},
		{Op: OpJal, Rd: 1, Imm: -64},
		{Op: OpAddi, Rd: 12, Rs1: 13},
		{Op: OpLi, Rd: 14, Imm: 0x1000},
		{Op: OpJalr, Rs1: 1},
		{Op: OpEcall},
	}
	if diff := cmp.Diff(want, decodeAll(t, b)); diff != "" {
		t.Errorf("Assemble mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleData(t *testing.T) {
	b, err := Assemble(`
	la a0, msg
	la a1, end
msg:	.asciz "a#b\n"
	nop
	.dword 0x1122334455667788
end:
`, 0)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	// Two instructions, five string bytes padded to eight, nop, dword.
	if got, want := len(b), 2*InstSize+8+InstSize+8; got != want {
		t.Fatalf("image length got %d want %d", got, want)
	}
	if got := string(b[16:21]); got != "a#b\n\x00" {
		t.Errorf("string got %q", got)
	}
	if i, _ := Decode(b); i.Imm != 16 {
		t.Errorf("la msg got %d want 16", i.Imm)
	}
	if i, _ := Decode(b[8:]); i.Imm != int32(len(b)) {
		t.Errorf("la end got %d want %d", i.Imm, len(b))
	}
	if got := hostarch.ByteOrder.Uint64(b[32:]); got != 0x1122334455667788 {
		t.Errorf(".dword got %#x", got)
	}
}

func TestAssembleErrors(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want string
	}{
		{"frob a0", "line 1: unknown instruction"},
		{"nop\nli q9, 1", "line 2: unknown register"},
		{"j nowhere", "undefined label"},
		{"a:\na:\nnop", "redefined"},
		{"li a0", "takes 2 operands"},
		{"li a0, 0x100000000", "out of range"},
		{"ld a0, sp", "bad memory operand"},
		{".asciz nope", "bad string"},
		{".weird 1", "unknown directive"},
		{"1x: nop", "bad label"},
	} {
		_, err := Assemble(tc.src, 0)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Assemble(%q) got error %v want one containing %q", tc.src, err, tc.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	var b [InstSize]byte
	if _, ok := Decode(b[:]); ok {
		t.Errorf("zero instruction decoded")
	}
	Inst{Op: OpAdd, Rd: 1}.Encode(b[:])
	b[2] = 40
	if _, ok := Decode(b[:]); ok {
		t.Errorf("register 40 decoded")
	}
	b[0] = byte(numOps)
	if _, ok := Decode(b[:]); ok {
		t.Errorf("opcode %d decoded", numOps)
	}
}

type machine struct {
	p  *Interp
	mm *mm.MemoryManager
	tc arch.TrapContext
}

func newMachine(t *testing.T, src string, timeSlice int) *machine {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile(0x80000000, 128)
	if err != nil {
		t.Fatalf("NewMemoryFile failed: %v", err)
	}
	frames, err := pgalloc.NewFrameAllocator(mf, 1)
	if err != nil {
		t.Fatalf("NewFrameAllocator failed: %v", err)
	}
	img, err := loader.ParseFlat(MustAssemble(src, loader.FlatBase))
	if err != nil {
		t.Fatalf("ParseFlat failed: %v", err)
	}
	first, _ := mf.Frames()
	m, sp, entry, err := mm.FromImage(frames, first, img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	t.Cleanup(m.Release)
	return &machine{
		p:  New(mf, timeSlice),
		mm: m,
		tc: arch.AppInitContext(entry, sp, 0, 0, 0),
	}
}

func (m *machine) run(t *testing.T) platform.Trap {
	t.Helper()
	trap, err := m.p.NewContext().Switch(context.Background(), m.mm.Token(), &m.tc)
	if err != nil {
		t.Fatalf("Switch failed: %v", err)
	}
	return trap
}

func TestSyscallTrap(t *testing.T) {
	m := newMachine(t, `
	li a0, 5
	addi a0, a0, 7
	li a7, 93
	ecall
`, 0)
	trap := m.run(t)
	if diff := cmp.Diff(platform.Trap{Kind: platform.TrapSyscall, Steps: 4}, trap); diff != "" {
		t.Errorf("trap mismatch (-want +got):\n%s", diff)
	}
	if got, want := m.tc.IP(), loader.FlatBase+3*InstSize; got != want {
		t.Errorf("pc got %v want the ecall at %v", got, want)
	}
	if got := m.tc.SyscallNo(); got != 93 {
		t.Errorf("syscall number got %d want 93", got)
	}
	if got := m.tc.Return(); got != 12 {
		t.Errorf("a0 got %d want 12", got)
	}
}

func TestLoopAndStack(t *testing.T) {
	m := newMachine(t, `
	li t0, 0
	li t1, 1
	li t2, 11
loop:
	add t0, t0, t1
	addi t1, t1, 1
	blt t1, t2, loop
	addi sp, sp, -8
	sd t0, 0(sp)
	ld a0, 0(sp)
	ecall
`, 0)
	sp := m.tc.Stack()
	if trap := m.run(t); trap.Kind != platform.TrapSyscall {
		t.Fatalf("trap got %v want syscall", trap)
	}
	if got := m.tc.Return(); got != 55 {
		t.Errorf("sum got %d want 55", got)
	}
	if got := m.tc.Stack(); got != sp-8 {
		t.Errorf("sp got %v want %v", got, sp-8)
	}
	buf := make([]byte, 8)
	if _, err := m.mm.CopyIn(sp-8, buf); err != nil || hostarch.ByteOrder.Uint64(buf) != 55 {
		t.Errorf("stack slot got (%x, %v) want 55", buf, err)
	}
}

func TestCallAndBytes(t *testing.T) {
	m := newMachine(t, `
	call f
	la t0, msg
	lb a1, 1(t0)
	ecall
f:
	li a0, 42
	ret
msg:
	.asciz "hi"
`, 0)
	m.run(t)
	if got := m.tc.Regs[arch.RegA0]; got != 42 {
		t.Errorf("a0 got %d want 42", got)
	}
	if got := m.tc.Regs[arch.RegA0+1]; got != 'i' {
		t.Errorf("a1 got %q want 'i'", rune(got))
	}
	if got := m.tc.Regs[0]; got != 0 {
		t.Errorf("zero register got %d", got)
	}
}

func TestFaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want platform.Trap
	}{
		{
			name: "store to text",
			src:  "la t0, 0x10000\nsd t0, 0(t0)",
			want: platform.Trap{Kind: platform.TrapPageFault, Addr: 0x10000, Access: hostarch.Write, Steps: 1},
		},
		{
			name: "load from trap context",
			src:  "li t0, -8192\nld t1, 0(t0)",
			want: platform.Trap{Kind: platform.TrapPageFault, Addr: hostarch.TrapContextBase, Access: hostarch.Read, Steps: 1},
		},
		{
			name: "fetch from unmapped page",
			src:  "jalr zero, 0(zero)",
			want: platform.Trap{Kind: platform.TrapPageFault, Addr: 0, Access: hostarch.Execute, Steps: 1},
		},
		{
			name: "fetch from stack",
			src:  "jalr zero, -8(sp)",
			want: platform.Trap{Kind: platform.TrapPageFault, Addr: 0x10000 + 4*hostarch.PageSize - 8, Access: hostarch.Execute, Steps: 1},
		},
		{
			name: "zeroed word",
			src:  "nop\n.dword 0",
			want: platform.Trap{Kind: platform.TrapIllegalInstruction, Addr: 0x10008, Steps: 1},
		},
		{
			name: "misaligned jump",
			src:  "jalr zero, 0x10003(zero)",
			want: platform.Trap{Kind: platform.TrapIllegalInstruction, Addr: 0x10003, Steps: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, tc.src, 0)
			if diff := cmp.Diff(tc.want, m.run(t)); diff != "" {
				t.Errorf("trap mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTimeSlice(t *testing.T) {
	m := newMachine(t, "loop: j loop", 10)
	want := platform.Trap{Kind: platform.TrapTimer, Steps: 10}
	for i := 0; i < 2; i++ {
		if diff := cmp.Diff(want, m.run(t)); diff != "" {
			t.Errorf("trap %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if got := m.tc.IP(); got != loader.FlatBase {
		t.Errorf("pc got %v want %v", got, loader.FlatBase)
	}
}

func TestSwitchInterrupted(t *testing.T) {
	m := newMachine(t, "loop: j loop", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.p.NewContext().Switch(ctx, m.mm.Token(), &m.tc); !errors.Is(err, platform.ErrContextInterrupt) {
		t.Errorf("Switch got %v want %v", err, platform.ErrContextInterrupt)
	}
}
