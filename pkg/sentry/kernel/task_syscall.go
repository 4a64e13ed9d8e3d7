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
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/syserror"
)

// doSyscall invokes the syscall described by t's saved registers and stores
// its result in a0.
func (t *Task) doSyscall() *SyscallControl {
	tc := t.TrapContext()
	rval, ctrl := t.InvokeSyscall(tc.SyscallNo(), tc.SyscallArgs())
	if ctrl != nil && ctrl.ignoreReturn {
		return ctrl
	}
	// Exec replaces the trap context.
	tc = t.TrapContext()
	tc.SetReturn(rval)
	t.SetTrapContext(tc)
	return ctrl
}

// InvokeSyscall counts and executes syscall sysno and returns the value user
// code observes in a0: the syscall's result, or its failure sentinel.
func (t *Task) InvokeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, *SyscallControl) {
	t.countSyscall(sysno)
	rval, ctrl, err := t.executeSyscall(sysno, args)
	if err != nil {
		t.Debugf("%s failed: %v", uk.SyscallName(sysno), err)
		rval = uintptr(syserror.Sentinel(err))
	}
	return rval, ctrl
}

func (t *Task) executeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
	s, ok := t.k.syscalls.Lookup(sysno)
	syscallCounter.Increment(uk.SyscallName(sysno))
	if !ok {
		t.Warningf("Unsupported syscall %d", sysno)
		return 0, nil, unix.ENOSYS
	}
	t.Debugf("%s(%#x, %#x, %#x)", s.Name, args[0].Value, args[1].Value, args[2].Value)
	return s.Fn(t, args)
}
