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

	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/refs"
	"gvisor.dev/ukernel/pkg/ring0/pagetables"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/ktime"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/mm"
	"gvisor.dev/ukernel/pkg/sync"
)

// Task represents a process: an address space with one thread of execution.
//
// Tasks are reference counted. References are held by the parent's child
// list, by the scheduler while the task is queued, by the processor while
// the task runs, and by the kernel for init. The last DecRef frees the
// task's address space, kernel stack and pid.
type Task struct {
	refs refs.Refs

	k *Kernel

	// pid is immutable.
	pid ThreadID

	// logFields are attached to log messages emitted on the task's behalf.
	// They are immutable.
	logFields []log.Field

	// kernelStackBottom and kernelStackTop bound the task's kernel stack in
	// the kernel address space. They are immutable.
	kernelStackBottom hostarch.Addr
	kernelStackTop    hostarch.Addr

	// stride and schedSeq are scheduling state, owned by the scheduler.
	//
	// +checklocks:k.mu
	stride uint64
	// +checklocks:k.mu
	schedSeq uint64

	mu sync.ExclusiveMutex

	// +checklocks:mu
	status uk.TaskStatus

	// mm is the task's address space. It is nil after the task is
	// destroyed.
	//
	// +checklocks:mu
	mm *mm.MemoryManager

	// parent is a non-owning pointer to the parent task. It is nil for init
	// and for tasks whose parent has been destroyed.
	//
	// +checklocks:mu
	parent *Task

	// children holds a reference on every child.
	//
	// +checklocks:mu
	children []*Task

	// +checklocks:mu
	exitCode int32

	// syscallTimes counts invocations of each syscall number below
	// uk.MaxSyscallNum.
	//
	// +checklocks:mu
	syscallTimes [uk.MaxSyscallNum]uint32

	// firstDispatch is when the task first ran; dispatched is false until
	// then.
	//
	// +checklocks:mu
	firstDispatch ktime.Time
	// +checklocks:mu
	dispatched bool

	// +checklocks:mu
	priority int64
}

// newTask creates a task running in m with a fresh pid and kernel stack. The
// caller owns the returned reference and must set the task's trap context.
// On failure m is released.
func (k *Kernel) newTask(m *mm.MemoryManager, parent *Task) (*Task, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid, err := k.pids.allocate()
	if err != nil {
		m.Release()
		return nil, err
	}
	bottom, top := hostarch.KernelStackPosition(int(pid))
	if err := k.kernelSpace.InsertFramedArea(bottom, top, pagetables.MapOpts{AccessType: hostarch.ReadWrite}); err != nil {
		m.Release()
		return nil, err
	}
	t := &Task{
		k:                 k,
		pid:               pid,
		logFields:         []log.Field{{Key: "pid", Value: int32(pid)}},
		kernelStackBottom: bottom,
		kernelStackTop:    top,
		status:            uk.TaskReady,
		mm:                m,
		parent:            parent,
		priority:          k.conf.DefaultPriority,
	}
	t.mu.Name = fmt.Sprintf("task %d", pid)
	t.refs.InitRefs(t)
	k.pids.tasks[pid] = t
	tasksCreated.Increment()
	return t, nil
}

// newTaskFromImage creates a task running a fresh address space built from
// img, with a trap context that starts at the image's entry point.
func (k *Kernel) newTaskFromImage(img *loader.Image, parent *Task) (*Task, error) {
	m, sp, entry, err := mm.FromImage(k.frames, k.trampoline, img)
	if err != nil {
		return nil, err
	}
	t, err := k.newTask(m, parent)
	if err != nil {
		return nil, err
	}
	t.SetTrapContext(t.appInitContext(entry, sp))
	return t, nil
}

// trapHandler is the kernel address that trap entry jumps to: the start of
// the identity-mapped kernel image.
const trapHandler = hostarch.Addr(PhysBase)

// appInitContext returns the trap context of a new program in t.
func (t *Task) appInitContext(entry, sp hostarch.Addr) arch.TrapContext {
	return arch.AppInitContext(entry, sp, t.k.kernelToken, t.kernelStackTop, trapHandler)
}

// destroy frees t's resources. It is called when the last reference is
// dropped.
func (t *Task) destroy() {
	t.mu.Lock()
	m := t.mm
	t.mm = nil
	children := t.children
	t.children = nil
	t.mu.Unlock()

	// Children outlive their parent only until they are done running; no
	// one can reap them.
	for _, c := range children {
		c.mu.Lock()
		c.parent = nil
		c.mu.Unlock()
		c.DecRef()
	}
	m.Release()

	k := t.k
	k.mu.Lock()
	k.kernelSpace.RemoveAreaWithStartVPN(t.kernelStackBottom.Floor())
	delete(k.pids.tasks, t.pid)
	k.mu.Unlock()
	tasksDestroyed.Increment()
	t.Debugf("Destroyed")
}

// IncRef increments t's reference count.
func (t *Task) IncRef() {
	t.refs.IncRef()
}

// DecRef decrements t's reference count and destroys t when it reaches zero.
func (t *Task) DecRef() {
	t.refs.DecRef(t.destroy)
}

// ReadRefs returns t's reference count.
func (t *Task) ReadRefs() int64 {
	return t.refs.ReadRefs()
}

// RefType implements refs.CheckedObject.RefType.
func (t *Task) RefType() string {
	return "kernel.Task"
}

// LeakMessage implements refs.CheckedObject.LeakMessage.
func (t *Task) LeakMessage() string {
	return fmt.Sprintf("[kernel.Task %p] pid %d reference count of %d instead of 0", t, t.pid, t.ReadRefs())
}

// Kernel returns the kernel running t.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// ThreadID returns t's pid.
func (t *Task) ThreadID() ThreadID {
	return t.pid
}

// Status returns t's lifecycle state.
func (t *Task) Status() uk.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ExitCode returns the code t exited with. It is only meaningful once t is
// a zombie.
func (t *Task) ExitCode() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Parent returns t's parent, or nil.
func (t *Task) Parent() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parent
}

// Children returns the pids of t's children in creation order.
func (t *Task) Children() []ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	pids := make([]ThreadID, 0, len(t.children))
	for _, c := range t.children {
		pids = append(pids, c.pid)
	}
	return pids
}

// MemoryManager returns t's address space.
//
// Precondition: t has not been destroyed. The caller must not retain the
// result across a call that may replace it, such as Exec.
func (t *Task) MemoryManager() *mm.MemoryManager {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mm
}

// TrapContext returns t's saved registers, read from its trap context page.
func (t *Task) TrapContext() arch.TrapContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	var tc arch.TrapContext
	tc.UnmarshalBytes(t.mm.TrapContextPage())
	return tc
}

// SetTrapContext replaces t's saved registers.
func (t *Task) SetTrapContext(tc arch.TrapContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tc.MarshalBytes(t.mm.TrapContextPage())
}

// CopyOut copies src to t's memory at addr. See mm.MemoryManager.CopyOut.
func (t *Task) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mm.CopyOut(addr, src)
}

// CopyIn copies t's memory at addr into dst. See mm.MemoryManager.CopyIn.
func (t *Task) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mm.CopyIn(addr, dst)
}

// CopyInString reads a NUL-terminated string from t's memory. See
// mm.MemoryManager.CopyInString.
func (t *Task) CopyInString(addr hostarch.Addr, maxlen int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mm.CopyInString(addr, maxlen)
}

// Debugf logs a debug message on t's behalf.
func (t *Task) Debugf(format string, v ...any) {
	log.Log().EmitWithFields(1, log.Debug, t.logFields, format, v...)
}

// Infof logs an informational message on t's behalf.
func (t *Task) Infof(format string, v ...any) {
	log.Log().EmitWithFields(1, log.Info, t.logFields, format, v...)
}

// Warningf logs a warning on t's behalf.
func (t *Task) Warningf(format string, v ...any) {
	log.Log().EmitWithFields(1, log.Warning, t.logFields, format, v...)
}
