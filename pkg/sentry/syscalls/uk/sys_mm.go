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

package uk

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

// Bits of mmap's port argument.
const (
	portRead  = 1 << 0
	portWrite = 1 << 1
	portExec  = 1 << 2
	portMask  = portRead | portWrite | portExec
)

// Mmap implements mmap(start, len, port).
func Mmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	start := args[0].Pointer()
	length := args[1].Uint64()
	port := args[2].Uint64()

	if port&^portMask != 0 || port&portMask == 0 {
		return 0, nil, unix.EINVAL
	}
	at := hostarch.AccessType{
		Read:    port&portRead != 0,
		Write:   port&portWrite != 0,
		Execute: port&portExec != 0,
	}
	if err := t.MemoryManager().MMap(start, length, at); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

// Munmap implements munmap(start, len).
func Munmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	if err := t.MemoryManager().MUnmap(args[0].Pointer(), args[1].Uint64()); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

// Sbrk implements sbrk(delta). It returns the previous program break.
func Sbrk(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	old, err := t.MemoryManager().SBrk(args[0].Int64())
	if err != nil {
		return 0, nil, err
	}
	return uintptr(old), nil, nil
}
