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
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// TimeVal is the record written by get_time.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// SizeBytes returns the encoded size of a TimeVal.
func (*TimeVal) SizeBytes() int {
	return 16
}

// MarshalBytes encodes tv into dst and returns the remainder of dst.
func (tv *TimeVal) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:], tv.Sec)
	hostarch.ByteOrder.PutUint64(dst[8:], tv.Usec)
	return dst[16:]
}

// UnmarshalBytes decodes src into tv and returns the remainder of src.
func (tv *TimeVal) UnmarshalBytes(src []byte) []byte {
	tv.Sec = hostarch.ByteOrder.Uint64(src[0:])
	tv.Usec = hostarch.ByteOrder.Uint64(src[8:])
	return src[16:]
}

// TimeValFromMicros splits a microsecond count into a TimeVal.
func TimeValFromMicros(us uint64) TimeVal {
	return TimeVal{Sec: us / 1_000_000, Usec: us % 1_000_000}
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus uint32

// Task states.
const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskZombie
)

// String implements fmt.Stringer.String.
func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskZombie:
		return "Zombie"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint32(s))
	}
}

// TaskInfo is the record written by task_info.
type TaskInfo struct {
	Status       TaskStatus
	SyscallTimes [MaxSyscallNum]uint32
	// Time is the number of milliseconds since the task was first
	// dispatched.
	Time uint64
}

// taskInfoTimeOffset is the offset of Time: Status and SyscallTimes occupy
// 2004 bytes, padded to 8-byte alignment.
const taskInfoTimeOffset = 2008

// SizeBytes returns the encoded size of a TaskInfo.
func (*TaskInfo) SizeBytes() int {
	return taskInfoTimeOffset + 8
}

// MarshalBytes encodes ti into dst and returns the remainder of dst.
func (ti *TaskInfo) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[0:], uint32(ti.Status))
	for i, n := range ti.SyscallTimes {
		hostarch.ByteOrder.PutUint32(dst[4+4*i:], n)
	}
	clear(dst[4+4*MaxSyscallNum : taskInfoTimeOffset])
	hostarch.ByteOrder.PutUint64(dst[taskInfoTimeOffset:], ti.Time)
	return dst[ti.SizeBytes():]
}

// UnmarshalBytes decodes src into ti and returns the remainder of src.
func (ti *TaskInfo) UnmarshalBytes(src []byte) []byte {
	ti.Status = TaskStatus(hostarch.ByteOrder.Uint32(src[0:]))
	for i := range ti.SyscallTimes {
		ti.SyscallTimes[i] = hostarch.ByteOrder.Uint32(src[4+4*i:])
	}
	ti.Time = hostarch.ByteOrder.Uint64(src[taskInfoTimeOffset:])
	return src[ti.SizeBytes():]
}
