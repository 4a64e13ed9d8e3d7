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
)

// SetPriority sets t's scheduling priority. Priorities must be at least 2;
// smaller values fail with EINVAL and leave the priority unchanged.
func (t *Task) SetPriority(prio int64) error {
	if prio <= 1 {
		return unix.EINVAL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.priority = prio
	return nil
}

// Priority returns t's scheduling priority.
func (t *Task) Priority() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// countSyscall records an invocation of syscall sysno.
func (t *Task) countSyscall(sysno uintptr) {
	if sysno >= uk.MaxSyscallNum {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syscallTimes[sysno]++
}

// Info returns t's status, syscall counts, and the milliseconds since it was
// first dispatched.
func (t *Task) Info() uk.TaskInfo {
	now := t.k.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	info := uk.TaskInfo{
		Status:       t.status,
		SyscallTimes: t.syscallTimes,
	}
	if t.dispatched {
		info.Time = uint64(now.Sub(t.firstDispatch).Milliseconds())
	}
	return info
}
