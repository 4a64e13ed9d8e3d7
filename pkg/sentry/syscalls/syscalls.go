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

// Package syscalls is the interface from user code to the kernel: helpers
// for building syscall tables. The table itself lives in package uk.
package syscalls

import (
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

// Supported returns a syscall table entry for an implemented syscall.
func Supported(name string, fn kernel.SyscallFn) kernel.Syscall {
	return kernel.Syscall{Name: name, Fn: fn}
}
