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
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

// GetTime implements get_time(out).
func GetTime(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	tv := uk.TimeValFromMicros(uint64(t.Kernel().Now().Microseconds()))
	buf := make([]byte, tv.SizeBytes())
	tv.MarshalBytes(buf)
	if _, err := t.CopyOut(args[0].Pointer(), buf); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

// TaskInfo implements task_info(out).
func TaskInfo(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	info := t.Info()
	buf := make([]byte, info.SizeBytes())
	info.MarshalBytes(buf)
	if _, err := t.CopyOut(args[0].Pointer(), buf); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}
