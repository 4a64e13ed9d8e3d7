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

// Package uk contains the user-visible ABI of the kernel: syscall numbers and
// the layouts of the records copied out to user memory.
package uk

import "sort"

// Syscall numbers.
const (
	SysWrite       = 64
	SysExit        = 93
	SysYield       = 124
	SysSetPriority = 140
	SysGetTime     = 169
	SysGetPID      = 172
	SysSbrk        = 214
	SysMunmap      = 215
	SysFork        = 220
	SysExec        = 221
	SysMmap        = 222
	SysWaitPID     = 260
	SysSpawn       = 400
	SysTaskInfo    = 410
)

// MaxSyscallNum bounds syscall numbers tracked by task accounting.
const MaxSyscallNum = 500

// SyscallName returns a printable name for syscall number no.
func SyscallName(no uintptr) string {
	if name, ok := syscallNames[no]; ok {
		return name
	}
	return "unknown"
}

// SyscallNames returns the names of every known syscall, sorted.
func SyscallNames() []string {
	names := make([]string, 0, len(syscallNames))
	for _, name := range syscallNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var syscallNames = map[uintptr]string{
	SysWrite:       "write",
	SysExit:        "exit",
	SysYield:       "yield",
	SysSetPriority: "set_priority",
	SysGetTime:     "get_time",
	SysGetPID:      "getpid",
	SysSbrk:        "sbrk",
	SysMunmap:      "munmap",
	SysFork:        "fork",
	SysExec:        "exec",
	SysMmap:        "mmap",
	SysWaitPID:     "waitpid",
	SysSpawn:       "spawn",
	SysTaskInfo:    "task_info",
}

// Protection bits accepted by mmap.
const (
	ProtRead  = 1 << 0
	ProtWrite = 1 << 1
	ProtExec  = 1 << 2

	// ProtMask covers every valid protection bit.
	ProtMask = ProtRead | ProtWrite | ProtExec
)

// Standard file descriptors understood by write.
const (
	Stdin  = 0
	Stdout = 1
)
