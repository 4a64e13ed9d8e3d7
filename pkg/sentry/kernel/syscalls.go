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

package kernel

import (
	"gvisor.dev/ukernel/pkg/sentry/arch"
)

// SyscallFn is a syscall implementation. A non-nil error is turned into the
// syscall's failure sentinel by syserror.Sentinel.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error)

// Syscall is an entry of a SyscallTable.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation.
	Fn SyscallFn
}

// SyscallTable maps syscall numbers to implementations.
type SyscallTable struct {
	// Table is the syscall table. Numbers without an entry fail.
	Table map[uintptr]Syscall
}

// Lookup returns the syscall with number sysno.
func (s *SyscallTable) Lookup(sysno uintptr) (Syscall, bool) {
	sc, ok := s.Table[sysno]
	return sc, ok
}

// SyscallControl is returned by syscalls to control the behavior of
// Task.doSyscall.
type SyscallControl struct {
	// yield is true if the task gives up the processor after the syscall.
	yield bool

	// exit is true if the task exits after the syscall.
	exit bool

	// ignoreReturn is true if the return value must not be stored in the
	// task's registers.
	ignoreReturn bool
}

var (
	// CtrlDoExit is returned by the implementation of exit. The exit code
	// must have been recorded by Task.PrepareExit.
	CtrlDoExit = &SyscallControl{exit: true, ignoreReturn: true}

	// CtrlYield is returned by syscalls that give up the processor after
	// returning.
	CtrlYield = &SyscallControl{yield: true}
)
