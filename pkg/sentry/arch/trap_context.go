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
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// SstatusSPP is the sstatus bit that selects supervisor mode on return from a
// trap. It is clear in every user trap context.
const SstatusSPP = 1 << 8

// TrapContext is the register state saved when a task traps into the kernel.
// It lives at the start of the task's trap context page.
type TrapContext struct {
	// Regs are the general purpose registers x0..x31.
	Regs [NumRegs]uint64

	// Sstatus is the saved status register.
	Sstatus uint64

	// Sepc is the pc the task resumes at.
	Sepc uint64

	// KernelSatp is the token of the kernel address space.
	KernelSatp uint64

	// KernelSP is the top of the task's kernel stack.
	KernelSP uint64

	// TrapHandler is the kernel address trap entry jumps to.
	TrapHandler uint64
}

// SizeBytes returns the marshalled size of a TrapContext.
func (*TrapContext) SizeBytes() int {
	return (NumRegs + 5) * 8
}

// MarshalBytes serializes c into dst.
func (c *TrapContext) MarshalBytes(dst []byte) []byte {
	for _, r := range c.Regs {
		hostarch.ByteOrder.PutUint64(dst, r)
		dst = dst[8:]
	}
	for _, v := range []uint64{c.Sstatus, c.Sepc, c.KernelSatp, c.KernelSP, c.TrapHandler} {
		hostarch.ByteOrder.PutUint64(dst, v)
		dst = dst[8:]
	}
	return dst
}

// UnmarshalBytes deserializes src into c.
func (c *TrapContext) UnmarshalBytes(src []byte) []byte {
	for i := range c.Regs {
		c.Regs[i] = hostarch.ByteOrder.Uint64(src)
		src = src[8:]
	}
	for _, v := range []*uint64{&c.Sstatus, &c.Sepc, &c.KernelSatp, &c.KernelSP, &c.TrapHandler} {
		*v = hostarch.ByteOrder.Uint64(src)
		src = src[8:]
	}
	return src
}

// AppInitContext returns the trap context of a task that has not run yet:
// it resumes in user mode at entry with the stack pointer at sp.
func AppInitContext(entry, sp hostarch.Addr, kernelSatp uint64, kernelSP, trapHandler hostarch.Addr) TrapContext {
	c := TrapContext{
		Sepc:        uint64(entry),
		KernelSatp:  kernelSatp,
		KernelSP:    uint64(kernelSP),
		TrapHandler: uint64(trapHandler),
	}
	c.Regs[RegSP] = uint64(sp)
	return c
}

// SyscallNo returns the number of the syscall being made.
func (c TrapContext) SyscallNo() uintptr {
	return uintptr(c.Regs[RegA7])
}

// SyscallArgs returns the arguments of the syscall being made.
func (c TrapContext) SyscallArgs() SyscallArguments {
	var args SyscallArguments
	for i := range args {
		args[i].Value = uintptr(c.Regs[RegA0+i])
	}
	return args
}

// Return returns the value in the return register.
func (c TrapContext) Return() uintptr {
	return uintptr(c.Regs[RegA0])
}

// SetReturn sets the return value for a system call.
func (c *TrapContext) SetReturn(value uintptr) {
	c.Regs[RegA0] = uint64(value)
}

// IP returns the pc the task resumes at.
func (c TrapContext) IP() hostarch.Addr {
	return hostarch.Addr(c.Sepc)
}

// Stack returns the stack pointer.
func (c TrapContext) Stack() hostarch.Addr {
	return hostarch.Addr(c.Regs[RegSP])
}

// String implements fmt.Stringer.String.
func (c TrapContext) String() string {
	return fmt.Sprintf("pc=%#x sp=%#x a0=%#x a7=%d", c.Sepc, c.Regs[RegSP], c.Regs[RegA0], c.Regs[RegA7])
}
