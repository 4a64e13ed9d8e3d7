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
	"math"

	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

// maxPathLen bounds the path arguments of exec and spawn.
const maxPathLen = 256

// Exit implements exit(code).
func Exit(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	t.PrepareExit(args[0].Int())
	return 0, kernel.CtrlDoExit, nil
}

// Yield implements yield().
func Yield(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, kernel.CtrlYield, nil
}

// Getpid implements getpid().
func Getpid(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return uintptr(t.ThreadID()), nil, nil
}

// Fork implements fork(). The child returns 0 from the call once it is
// first dispatched.
func Fork(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	child, err := t.Fork()
	if err != nil {
		return 0, nil, err
	}
	tc := child.TrapContext()
	tc.SetReturn(0)
	child.SetTrapContext(tc)
	t.Kernel().Start(child)
	return uintptr(child.ThreadID()), nil, nil
}

// Exec implements exec(path).
func Exec(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, err := t.CopyInString(args[0].Pointer(), maxPathLen)
	if err != nil {
		return 0, nil, err
	}
	img, err := t.Kernel().LoadImage(path)
	if err != nil {
		return 0, nil, err
	}
	if err := t.Exec(img); err != nil {
		return 0, nil, err
	}
	t.Debugf("Exec %q", path)
	return 0, nil, nil
}

// Spawn implements spawn(path): a new child running the image at path. The
// child never runs the caller's code.
func Spawn(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	path, err := t.CopyInString(args[0].Pointer(), maxPathLen)
	if err != nil {
		return 0, nil, err
	}
	img, err := t.Kernel().LoadImage(path)
	if err != nil {
		return 0, nil, err
	}
	child, err := t.Spawn(img)
	if err != nil {
		return 0, nil, err
	}
	t.Kernel().Start(child)
	return uintptr(child.ThreadID()), nil, nil
}

// Waitpid implements waitpid(pid, out). A pid of -1 matches any child. If a
// matching child exists but none has exited, it fails with EAGAIN so that
// user code sees -2 and retries.
func Waitpid(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	pid := args[0].Int64()
	out := args[1].Pointer()
	if pid < math.MinInt32 || pid > math.MaxInt32 {
		// No task has this pid.
		return 0, nil, unix.ECHILD
	}
	reaped, err := t.Wait(kernel.ThreadID(pid), out)
	if err != nil {
		return 0, nil, err
	}
	return uintptr(reaped), nil, nil
}

// SetPriority implements set_priority(prio).
func SetPriority(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	prio := args[0].Int64()
	if err := t.SetPriority(prio); err != nil {
		return 0, nil, err
	}
	return uintptr(prio), nil, nil
}
