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
	"context"
	"fmt"
	"time"

	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/ktime"
	"gvisor.dev/ukernel/pkg/sentry/platform"
)

// Exit codes of tasks killed by faults.
const (
	ExitPageFault          = -2
	ExitIllegalInstruction = -3
)

// Start makes t runnable. The scheduler takes a new reference on t.
func (k *Kernel) Start(t *Task) {
	t.IncRef()
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sched.Enqueue(t)
}

// Run runs tasks on the kernel's processor. It returns nil once init has
// exited, ErrNoRunnableTasks if no task is ready while init lives,
// ErrStepLimit once Config.MaxSteps instructions have run, and
// platform.ErrContextInterrupt if ctx is done.
//
// Run must not be called concurrently with itself or RunSlice.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		k.mu.Lock()
		done := k.initExited
		k.mu.Unlock()
		if done {
			return nil
		}
		if err := k.RunSlice(ctx); err != nil {
			return err
		}
	}
}

// RunSlice dispatches the next ready task and runs it until it gives up the
// processor. It fails like Run, except that it runs even after init exited.
func (k *Kernel) RunSlice(ctx context.Context) error {
	if k.stepLimitReached() {
		return ErrStepLimit
	}
	if k.pctx == nil {
		k.pctx = k.platform.NewContext()
	}
	t := k.dispatch()
	if t == nil {
		return ErrNoRunnableTasks
	}
	return k.runCurrent(ctx, k.pctx, t)
}

// dispatch makes the next ready task current and returns it, or returns nil
// if no task is ready.
func (k *Kernel) dispatch() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current != nil {
		panic(fmt.Sprintf("dispatch while pid %d is running", k.current.pid))
	}
	t := k.sched.PickNext()
	if t == nil {
		return nil
	}
	k.current = t
	now := k.clock.Now()
	t.mu.Lock()
	t.status = uk.TaskRunning
	if !t.dispatched {
		t.dispatched = true
		t.firstDispatch = now
	}
	t.mu.Unlock()
	return t
}

// runCurrent runs t, the current task, until it yields, exits, is preempted
// or is killed.
func (k *Kernel) runCurrent(ctx context.Context, pctx platform.Context, t *Task) error {
	for {
		tc := t.TrapContext()
		trap, err := pctx.Switch(ctx, t.MemoryManager().Token(), &tc)
		k.steps += uint64(trap.Steps)
		if a, ok := k.clock.(ktime.Advancer); ok && k.conf.StepTime > 0 {
			a.Advance(time.Duration(trap.Steps) * k.conf.StepTime)
		}
		t.SetTrapContext(tc)
		if err != nil {
			k.suspendCurrent()
			return err
		}

		switch trap.Kind {
		case platform.TrapSyscall:
			tc.Sepc += arch.SyscallInstructionSize
			t.SetTrapContext(tc)
			if ctrl := t.doSyscall(); ctrl != nil {
				switch {
				case ctrl.exit:
					k.exitCurrent()
					return nil
				case ctrl.yield:
					k.suspendCurrent()
					return nil
				}
			}
		case platform.TrapTimer:
			k.suspendCurrent()
			return nil
		case platform.TrapPageFault:
			taskFaults.Increment("page_fault")
			log.Log().WarningfLimited(k.faultLimit, t.logFields, "Killed by %v, pc %#x", trap, tc.Sepc)
			t.PrepareExit(ExitPageFault)
			k.exitCurrent()
			return nil
		case platform.TrapIllegalInstruction:
			taskFaults.Increment("illegal_instruction")
			log.Log().WarningfLimited(k.faultLimit, t.logFields, "Killed by %v", trap)
			t.PrepareExit(ExitIllegalInstruction)
			k.exitCurrent()
			return nil
		default:
			panic(fmt.Sprintf("unknown trap %v", trap))
		}

		if k.stepLimitReached() {
			k.suspendCurrent()
			return ErrStepLimit
		}
	}
}

// suspendCurrent returns the current task to the ready set.
func (k *Kernel) suspendCurrent() {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.current
	k.current = nil
	t.mu.Lock()
	t.status = uk.TaskReady
	t.mu.Unlock()
	k.sched.Enqueue(t)
}

// exitCurrent turns the current task into a zombie and drops the processor's
// reference. A task without a parent is destroyed at once, except init,
// which the kernel keeps until Release.
func (k *Kernel) exitCurrent() {
	k.mu.Lock()
	t := k.current
	k.current = nil
	t.mu.Lock()
	t.status = uk.TaskZombie
	code := t.exitCode
	t.mu.Unlock()
	if t == k.init {
		k.initExited = true
	}
	k.mu.Unlock()

	t.Infof("Exited with code %d", code)
	t.DecRef()
}
