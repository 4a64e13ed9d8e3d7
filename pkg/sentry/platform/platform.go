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

// Package platform provides a Platform abstraction.
//
// A Platform executes user code on behalf of the kernel. The kernel hands it
// a task's saved trap context and the token of the task's page table; the
// platform runs the task until it traps back into the kernel.
package platform

import (
	"context"
	"errors"
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/arch"
)

// Platform provides execution contexts for user code.
type Platform interface {
	// NewContext returns a new execution context.
	NewContext() Context

	// TimeSlice returns the number of instructions a Context executes before
	// it reports a timer trap. Zero means that user code is never preempted.
	TimeSlice() int
}

// Context is an execution context, the equivalent of one hardware thread.
type Context interface {
	// Switch resumes the task whose registers are in tc, translating its
	// addresses through the page table identified by token. It returns when
	// the task traps. tc holds the task's registers at the trap; on a syscall
	// trap tc.Sepc still points at the ecall instruction.
	//
	// Switch returns ErrContextInterrupt if ctx is done before the task
	// traps.
	Switch(ctx context.Context, token uint64, tc *arch.TrapContext) (Trap, error)
}

// ErrContextInterrupt is returned by Context.Switch to indicate that the
// context passed to it was cancelled.
var ErrContextInterrupt = errors.New("interrupted by context cancellation")

// TrapKind is the reason user code stopped.
type TrapKind int

const (
	// TrapSyscall is an ecall instruction.
	TrapSyscall TrapKind = iota

	// TrapTimer is the end of the task's time slice.
	TrapTimer

	// TrapPageFault is an access to a page that is not mapped with the
	// required permissions.
	TrapPageFault

	// TrapIllegalInstruction is an instruction that cannot be decoded.
	TrapIllegalInstruction
)

// String implements fmt.Stringer.String.
func (k TrapKind) String() string {
	switch k {
	case TrapSyscall:
		return "syscall"
	case TrapTimer:
		return "timer"
	case TrapPageFault:
		return "page fault"
	case TrapIllegalInstruction:
		return "illegal instruction"
	default:
		return fmt.Sprintf("TrapKind(%d)", int(k))
	}
}

// Trap describes why Switch returned.
type Trap struct {
	Kind TrapKind

	// Addr is the faulting address of a page fault, or the pc of an illegal
	// instruction.
	Addr hostarch.Addr

	// Access is the access that faulted.
	Access hostarch.AccessType

	// Steps is the number of instructions retired during the Switch.
	Steps int
}

// String implements fmt.Stringer.String.
func (t Trap) String() string {
	switch t.Kind {
	case TrapPageFault:
		return fmt.Sprintf("%v at %v (%v)", t.Kind, t.Addr, t.Access)
	case TrapIllegalInstruction:
		return fmt.Sprintf("%v at %v", t.Kind, t.Addr)
	default:
		return t.Kind.String()
	}
}
