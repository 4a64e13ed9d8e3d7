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

// Package ulib is the user library for tasks driven from Go rather than by
// their own instructions: typed syscall wrappers and the retry conventions
// user code follows, like waiting for a child by retrying waitpid.
//
// exit and exec are not wrapped: they never return to the caller.
package ulib

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff"
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

var (
	// ErrFailed is returned when a syscall returns -1.
	ErrFailed = errors.New("syscall failed")

	// ErrAgain is returned when a syscall returns -2: the condition the
	// caller waits for has not happened yet.
	ErrAgain = errors.New("try again")
)

// Caller makes syscalls on behalf of a task. *kernel.Task implements
// Caller.
type Caller interface {
	InvokeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl)
	CopyIn(addr hostarch.Addr, dst []byte) (int, error)
	CopyOut(addr hostarch.Addr, src []byte) (int, error)
}

// Proc is a task seen through its syscalls.
type Proc struct {
	c Caller

	// scratch is a page of user-writable memory used to pass syscall
	// arguments and results.
	scratch hostarch.Addr
}

// New returns a Proc making syscalls through c. Wrappers that pass memory
// use the page at scratch, which must be mapped user-writable before they
// are called.
func New(c Caller, scratch hostarch.Addr) *Proc {
	return &Proc{c: c, scratch: scratch}
}

// Scratch returns the address of the scratch page.
func (p *Proc) Scratch() hostarch.Addr {
	return p.scratch
}

// syscall invokes sysno and translates the failure sentinels to errors.
func (p *Proc) syscall(sysno uintptr, vals ...uintptr) (int64, error) {
	var args arch.SyscallArguments
	for i, v := range vals {
		args[i].Value = v
	}
	rval, _ := p.c.InvokeSyscall(sysno, args)
	switch ret := int64(rval); ret {
	case -1:
		return ret, fmt.Errorf("%s: %w", uk.SyscallName(sysno), ErrFailed)
	case -2:
		return ret, fmt.Errorf("%s: %w", uk.SyscallName(sysno), ErrAgain)
	default:
		return ret, nil
	}
}

// Getpid returns the task's pid.
func (p *Proc) Getpid() (int, error) {
	pid, err := p.syscall(uk.SysGetPID)
	return int(pid), err
}

// Yield gives up the processor after the call returns.
func (p *Proc) Yield() error {
	_, err := p.syscall(uk.SysYield)
	return err
}

// SetPriority sets the task's scheduling priority.
func (p *Proc) SetPriority(prio int64) error {
	_, err := p.syscall(uk.SysSetPriority, uintptr(prio))
	return err
}

// GetTime returns the kernel's wall clock.
func (p *Proc) GetTime() (uk.TimeVal, error) {
	var tv uk.TimeVal
	if _, err := p.syscall(uk.SysGetTime, uintptr(p.scratch)); err != nil {
		return tv, err
	}
	buf := make([]byte, tv.SizeBytes())
	if _, err := p.c.CopyIn(p.scratch, buf); err != nil {
		return tv, err
	}
	tv.UnmarshalBytes(buf)
	return tv, nil
}

// TaskInfo returns the task's accounting record.
func (p *Proc) TaskInfo() (uk.TaskInfo, error) {
	var info uk.TaskInfo
	if _, err := p.syscall(uk.SysTaskInfo, uintptr(p.scratch)); err != nil {
		return info, err
	}
	buf := make([]byte, info.SizeBytes())
	if _, err := p.c.CopyIn(p.scratch, buf); err != nil {
		return info, err
	}
	info.UnmarshalBytes(buf)
	return info, nil
}

// Sbrk moves the program break by delta and returns the previous break.
func (p *Proc) Sbrk(delta int64) (hostarch.Addr, error) {
	old, err := p.syscall(uk.SysSbrk, uintptr(delta))
	return hostarch.Addr(old), err
}

// Mmap maps length bytes at start with the permissions of at.
func (p *Proc) Mmap(start hostarch.Addr, length uint64, at hostarch.AccessType) error {
	var port uintptr
	if at.Read {
		port |= 1
	}
	if at.Write {
		port |= 2
	}
	if at.Execute {
		port |= 4
	}
	_, err := p.syscall(uk.SysMmap, uintptr(start), uintptr(length), port)
	return err
}

// Munmap unmaps the area mapped at exactly [start, start+length).
func (p *Proc) Munmap(start hostarch.Addr, length uint64) error {
	_, err := p.syscall(uk.SysMunmap, uintptr(start), uintptr(length))
	return err
}

// Write writes data to fd. data must fit in the scratch page.
func (p *Proc) Write(fd int, data []byte) (int, error) {
	if len(data) > hostarch.PageSize {
		return 0, fmt.Errorf("write of %d bytes does not fit in the scratch page", len(data))
	}
	if _, err := p.c.CopyOut(p.scratch, data); err != nil {
		return 0, err
	}
	n, err := p.syscall(uk.SysWrite, uintptr(fd), uintptr(p.scratch), uintptr(len(data)))
	return int(n), err
}

// Fork creates a child running a copy of the task. The child resumes at the
// task's saved pc with a return value of 0.
func (p *Proc) Fork() (int, error) {
	pid, err := p.syscall(uk.SysFork)
	return int(pid), err
}

// Spawn creates a child running the program at path.
func (p *Proc) Spawn(path string) (int, error) {
	if len(path)+1 > hostarch.PageSize {
		return 0, fmt.Errorf("path of %d bytes does not fit in the scratch page", len(path))
	}
	if _, err := p.c.CopyOut(p.scratch, append([]byte(path), 0)); err != nil {
		return 0, err
	}
	pid, err := p.syscall(uk.SysSpawn, uintptr(p.scratch))
	return int(pid), err
}

// Waitpid reaps a zombie child matching pid, or any child if pid is -1. It
// returns ErrAgain if a matching child exists but has not exited.
func (p *Proc) Waitpid(pid int) (int, int32, error) {
	reaped, err := p.syscall(uk.SysWaitPID, uintptr(pid), uintptr(p.scratch))
	if err != nil {
		return 0, 0, err
	}
	buf := make([]byte, 4)
	if _, err := p.c.CopyIn(p.scratch, buf); err != nil {
		return 0, 0, err
	}
	return int(reaped), int32(hostarch.ByteOrder.Uint32(buf)), nil
}

// WaitPID waits for a child matching pid to exit and reaps it, calling
// progress between attempts so that the child gets to run. It stops early if
// ctx is done, there is no matching child, or progress fails.
func (p *Proc) WaitPID(ctx context.Context, pid int, progress func() error) (int, int32, error) {
	var (
		reaped int
		code   int32
	)
	op := func() error {
		var err error
		reaped, code, err = p.Waitpid(pid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrAgain) {
			return backoff.Permanent(err)
		}
		if perr := progress(); perr != nil {
			return backoff.Permanent(perr)
		}
		return err
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(0), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, ctxErr
		}
		return 0, 0, err
	}
	return reaped, code, nil
}
