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

// Package uk provides syscall tables for the kernel's user ABI.
package uk

import (
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
	"gvisor.dev/ukernel/pkg/sentry/syscalls"
)

// Table is the syscall table of the kernel.
var Table = &kernel.SyscallTable{
	Table: map[uintptr]kernel.Syscall{
		uk.SysWrite:       syscalls.Supported("write", Write),
		uk.SysExit:        syscalls.Supported("exit", Exit),
		uk.SysYield:       syscalls.Supported("yield", Yield),
		uk.SysSetPriority: syscalls.Supported("set_priority", SetPriority),
		uk.SysGetTime:     syscalls.Supported("get_time", GetTime),
		uk.SysGetPID:      syscalls.Supported("getpid", Getpid),
		uk.SysSbrk:        syscalls.Supported("sbrk", Sbrk),
		uk.SysMunmap:      syscalls.Supported("munmap", Munmap),
		uk.SysFork:        syscalls.Supported("fork", Fork),
		uk.SysExec:        syscalls.Supported("exec", Exec),
		uk.SysMmap:        syscalls.Supported("mmap", Mmap),
		uk.SysWaitPID:     syscalls.Supported("waitpid", Waitpid),
		uk.SysSpawn:       syscalls.Supported("spawn", Spawn),
		uk.SysTaskInfo:    syscalls.Supported("task_info", TaskInfo),
	},
}
