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
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/syserror"
)

// PrepareExit records the code t exits with. The task exits when the
// syscall that called PrepareExit returns CtrlDoExit.
func (t *Task) PrepareExit(code int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exitCode = code
}

// AnyChild selects every child in Wait.
const AnyChild ThreadID = -1

// Wait reaps a zombie child of t and returns its pid. pid selects the child,
// or AnyChild any of them. If out is not zero, the child's exit code is
// stored there as an int32 before the child is reaped.
//
// Wait returns ECHILD if no child matches and syserror.ErrWouldBlock if every
// matching child is still running. It never blocks. On failure no child is
// reaped.
func (t *Task) Wait(pid ThreadID, out hostarch.Addr) (ThreadID, error) {
	t.mu.Lock()
	matched := false
	idx := -1
	for i, c := range t.children {
		if pid != AnyChild && c.pid != pid {
			continue
		}
		matched = true
		if c.Status() == uk.TaskZombie {
			idx = i
			break
		}
	}
	if !matched {
		t.mu.Unlock()
		return 0, unix.ECHILD
	}
	if idx < 0 {
		t.mu.Unlock()
		return 0, syserror.ErrWouldBlock
	}

	child := t.children[idx]
	if out != 0 {
		var buf [4]byte
		hostarch.ByteOrder.PutUint32(buf[:], uint32(child.ExitCode()))
		if _, err := t.mm.CopyOut(out, buf[:]); err != nil {
			t.mu.Unlock()
			return 0, err
		}
	}
	t.children = append(t.children[:idx], t.children[idx+1:]...)
	t.mu.Unlock()

	// The child list held the last reference.
	if n := child.ReadRefs(); n != 1 {
		panic(fmt.Sprintf("reaping pid %d with %d references", child.pid, n))
	}
	cpid := child.pid
	child.DecRef()
	t.Debugf("Reaped %d", cpid)
	return cpid, nil
}
