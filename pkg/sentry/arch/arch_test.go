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

package arch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTrapContextLayout(t *testing.T) {
	c := AppInitContext(0x10000, 0x13000, 8<<60|0x80000, 0x4000, 0x9000)
	c.Regs[RegA0] = 7
	c.Regs[RegA7] = 93

	if got := c.SizeBytes(); got != 296 {
		t.Fatalf("SizeBytes got %d want 296", got)
	}
	buf := make([]byte, c.SizeBytes())
	if rest := c.MarshalBytes(buf); len(rest) != 0 {
		t.Fatalf("MarshalBytes left %d bytes", len(rest))
	}
	// sp is x2 and sepc follows the registers and sstatus.
	if buf[2*8+1] != 0x30 || buf[2*8+2] != 0x01 {
		t.Errorf("sp bytes got %x", buf[16:24])
	}
	if buf[33*8+2] != 0x01 {
		t.Errorf("sepc bytes got %x", buf[33*8:34*8])
	}

	var got TrapContext
	got.UnmarshalBytes(buf)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSyscallArgs(t *testing.T) {
	var c TrapContext
	c.Regs[RegA7] = 222
	neg := int64(-1)
	for i := 0; i < 6; i++ {
		c.Regs[RegA0+i] = uint64(i + 1)
	}
	c.Regs[RegA0+2] = uint64(neg)

	if got := c.SyscallNo(); got != 222 {
		t.Errorf("SyscallNo got %d want 222", got)
	}
	args := c.SyscallArgs()
	if got := args[0].Pointer(); got != 1 {
		t.Errorf("args[0].Pointer got %v want 0x1", got)
	}
	if got := args[2].Int(); got != -1 {
		t.Errorf("args[2].Int got %d want -1", got)
	}
	if got := args[2].Int64(); got != -1 {
		t.Errorf("args[2].Int64 got %d want -1", got)
	}
	if got := args[5].SizeT(); got != 6 {
		t.Errorf("args[5].SizeT got %d want 6", got)
	}

	c.SetReturn(^uintptr(1))
	if got := int64(c.Return()); got != -2 {
		t.Errorf("Return got %d want -2", got)
	}
}

func TestAccessorsOnReturnedValue(t *testing.T) {
	saved := func() TrapContext {
		return AppInitContext(0x10008, 0x14000, 0, 0x4000, 0x9000)
	}
	if got := saved().IP(); got != 0x10008 {
		t.Errorf("IP got %v want 0x10008", got)
	}
	if got := saved().Stack(); got != 0x14000 {
		t.Errorf("Stack got %v want 0x14000", got)
	}
	if got := saved().Return(); got != 0 {
		t.Errorf("Return got %d want 0", got)
	}
	if got, want := saved().String(), "pc=0x10008 sp=0x14000 a0=0x0 a7=0"; got != want {
		t.Errorf("String got %q want %q", got, want)
	}
}
