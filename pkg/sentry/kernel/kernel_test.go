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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/ktime"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
	"gvisor.dev/ukernel/pkg/sentry/platform"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
	"gvisor.dev/ukernel/pkg/syserror"
)

// testSyscalls is the subset of the syscall layer the run loop tests need.
var testSyscalls = &SyscallTable{
	Table: map[uintptr]Syscall{
		uk.SysExit: {"exit", func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
			t.PrepareExit(args[0].Int())
			return 0, CtrlDoExit, nil
		}},
		uk.SysYield: {"yield", func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
			return 0, CtrlYield, nil
		}},
		uk.SysFork: {"fork", func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
			child, err := t.Fork()
			if err != nil {
				return 0, nil, err
			}
			tc := child.TrapContext()
			tc.SetReturn(0)
			child.SetTrapContext(tc)
			t.Kernel().Start(child)
			return uintptr(child.ThreadID()), nil, nil
		}},
		uk.SysWaitPID: {"waitpid", func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error) {
			pid, err := t.Wait(ThreadID(args[0].Int64()), args[1].Pointer())
			return uintptr(pid), nil, err
		}},
	},
}

type testKernelOpts struct {
	conf      Config
	timeSlice int
	apps      map[string]string
}

func newTestKernel(t *testing.T, opts testKernelOpts) (*Kernel, *ktime.ManualClock) {
	t.Helper()
	conf := opts.conf
	if conf.PhysFrames == 0 {
		conf = DefaultConfig()
		conf.PhysFrames = 512
		conf.Scheduler = SchedFIFO
	}
	apps := loader.AppTable{}
	for name, src := range opts.apps {
		apps[name] = interp.MustAssemble(src, loader.FlatBase)
	}
	clock := ktime.NewManualClock(ktime.FromMicroseconds(1_000_000))
	k, err := New(InitKernelArgs{
		Config: conf,
		NewPlatform: func(f *pgalloc.MemoryFile) platform.Platform {
			return interp.New(f, opts.timeSlice)
		},
		Clock:    clock,
		Apps:     apps,
		Syscalls: testSyscalls,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return k, clock
}

// checkReleased releases k and verifies that every frame and pid was freed.
func checkReleased(t *testing.T, k *Kernel) {
	t.Helper()
	k.Release()
	if got := k.NumTasks(); got != 0 {
		t.Errorf("NumTasks after Release got %d want 0", got)
	}
	if got := k.Frames().InUse(); got != 0 {
		t.Errorf("frames in use after Release got %d want 0: %v", got, k.Frames().Allocated())
	}
}

// runAs makes t the current task, as dispatch would.
func runAs(k *Kernel, t *Task) {
	t.IncRef()
	k.mu.Lock()
	k.current = t
	k.mu.Unlock()
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"no kernel frames", func(c *Config) { c.KernelFrames = 0 }},
		{"no user frames", func(c *Config) { c.PhysFrames = c.KernelFrames }},
		{"priority floor", func(c *Config) { c.DefaultPriority = 1 }},
		{"unknown scheduler", func(c *Config) { c.Scheduler = "lottery" }},
		{"zero big stride", func(c *Config) { c.BigStride = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conf := DefaultConfig()
			tc.modify(&conf)
			_, err := New(InitKernelArgs{
				Config:      conf,
				NewPlatform: func(f *pgalloc.MemoryFile) platform.Platform { return interp.New(f, 0) },
				Syscalls:    testSyscalls,
			})
			if err == nil {
				t.Errorf("New succeeded with %+v", conf)
			}
		})
	}
}

func TestPIDAllocate(t *testing.T) {
	p := newPIDTable()
	for want := InitTID; want <= 3; want++ {
		pid, err := p.allocate()
		if err != nil || pid != want {
			t.Fatalf("allocate got (%d, %v) want %d", pid, err, want)
		}
		p.tasks[pid] = nil
	}

	// Freed pids are not reused until the others run out.
	delete(p.tasks, 2)
	if pid, _ := p.allocate(); pid != 4 {
		t.Errorf("allocate after free got %d want 4", pid)
	}

	p.last = TasksLimit
	if pid, _ := p.allocate(); pid != 2 {
		t.Errorf("allocate after wrap got %d want 2", pid)
	}

	for pid := InitTID; pid <= TasksLimit; pid++ {
		p.tasks[pid] = nil
	}
	if _, err := p.allocate(); err != errNoPIDs {
		t.Errorf("allocate with every pid in use got %v want %v", err, errNoPIDs)
	}
}

func TestFIFOScheduler(t *testing.T) {
	s, err := NewScheduler(SchedFIFO, 0)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	tasks := []*Task{{pid: 1}, {pid: 2}, {pid: 3}}
	for _, task := range tasks {
		s.Enqueue(task)
	}
	var got []ThreadID
	for i := 0; i < 6; i++ {
		task := s.PickNext()
		got = append(got, task.pid)
		s.Enqueue(task)
	}
	if diff := cmp.Diff([]ThreadID{1, 2, 3, 1, 2, 3}, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
	if got := len(s.Drain()); got != 3 {
		t.Errorf("Drain got %d tasks want 3", got)
	}
	if task := s.PickNext(); task != nil {
		t.Errorf("PickNext on empty scheduler got pid %d", task.pid)
	}
}

func TestStrideSchedulerFairness(t *testing.T) {
	s, err := NewScheduler(SchedStride, DefaultBigStride)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	low := &Task{pid: 1, priority: 2}
	high := &Task{pid: 2, priority: 4}
	s.Enqueue(low)
	s.Enqueue(high)

	counts := make(map[ThreadID]int)
	for i := 0; i < 300; i++ {
		task := s.PickNext()
		counts[task.pid]++
		s.Enqueue(task)
	}
	if d := counts[2] - 2*counts[1]; d < -2 || d > 2 {
		t.Errorf("dispatch counts got %v want priority 4 to run twice as often as priority 2", counts)
	}
}

func TestStrideSchedulerTies(t *testing.T) {
	s := newStrideScheduler(DefaultBigStride)
	tasks := []*Task{{pid: 1, priority: 8}, {pid: 2, priority: 8}, {pid: 3, priority: 8}}
	for _, task := range tasks {
		s.Enqueue(task)
	}
	var got []ThreadID
	for i := 0; i < 6; i++ {
		task := s.PickNext()
		got = append(got, task.pid)
		s.Enqueue(task)
	}
	if diff := cmp.Diff([]ThreadID{1, 2, 3, 1, 2, 3}, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestStrideSchedulerNoStarvation(t *testing.T) {
	s := newStrideScheduler(DefaultBigStride)
	starved := &Task{pid: 1, priority: 2}
	s.Enqueue(starved)
	s.Enqueue(&Task{pid: 2, priority: 1000})

	runs := 0
	for i := 0; i < 2000; i++ {
		task := s.PickNext()
		if task == starved {
			runs++
		}
		s.Enqueue(task)
	}
	if runs < 2 {
		t.Errorf("priority 2 task ran %d times in 2000 dispatches", runs)
	}
}

func TestCreateInit(t *testing.T) {
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": "li a7, 93\necall"}})
	if _, err := k.CreateInit("missing"); !errors.Is(err, unix.ENOENT) {
		t.Errorf("CreateInit(missing) got %v want ENOENT", err)
	}
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	if got := init.ThreadID(); got != InitTID {
		t.Errorf("init pid got %d want %d", got, InitTID)
	}
	if _, err := k.CreateInit("init"); err == nil {
		t.Errorf("second CreateInit succeeded")
	}
	if got := k.TaskWithID(InitTID); got != init {
		t.Errorf("TaskWithID(1) got %p want init %p", got, init)
	}
	if got, want := init.ReadRefs(), int64(2); got != want {
		t.Errorf("init references got %d want %d", got, want)
	}
	if !strings.Contains(k.KernelSpace(), "[kernel stack]") {
		t.Errorf("kernel space has no kernel stack:\n%s", k.KernelSpace())
	}
	checkReleased(t, k)
}

func TestForkWait(t *testing.T) {
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": "loop: j loop"}})
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	child, err := init.Fork()
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	if got := child.Parent(); got != init {
		t.Errorf("child parent got %p want init", got)
	}
	if diff := cmp.Diff([]ThreadID{child.ThreadID()}, init.Children()); diff != "" {
		t.Errorf("init children mismatch (-want +got):\n%s", diff)
	}
	if got, want := child.TrapContext().KernelSP, uint64(child.kernelStackTop); got != want {
		t.Errorf("child kernel sp got %#x want %#x", got, want)
	}
	if got, want := child.TrapContext().IP(), init.TrapContext().IP(); got != want {
		t.Errorf("child pc got %v want %v", got, want)
	}

	out := init.TrapContext().Stack() - 8
	if _, err := init.Wait(AnyChild, out); err != syserror.ErrWouldBlock {
		t.Errorf("Wait on live child got %v want %v", err, syserror.ErrWouldBlock)
	}
	if _, err := init.Wait(child.ThreadID()+1, out); err != unix.ECHILD {
		t.Errorf("Wait on other pid got %v want ECHILD", err)
	}

	runAs(k, child)
	child.PrepareExit(-7)
	k.exitCurrent()
	if got := child.Status(); got != uk.TaskZombie {
		t.Errorf("child status got %v want %v", got, uk.TaskZombie)
	}

	// A bad out pointer reaps nothing.
	if _, err := init.Wait(AnyChild, 0x8000_0000); err != unix.EFAULT {
		t.Errorf("Wait with unmapped out got %v want EFAULT", err)
	}
	pid, err := init.Wait(AnyChild, out)
	if err != nil || pid != child.ThreadID() {
		t.Fatalf("Wait got (%d, %v) want %d", pid, err, child.ThreadID())
	}
	buf := make([]byte, 4)
	if _, err := init.CopyIn(out, buf); err != nil {
		t.Fatalf("CopyIn failed: %v", err)
	}
	if got := int32(hostarch.ByteOrder.Uint32(buf)); got != -7 {
		t.Errorf("exit code got %d want -7", got)
	}
	if _, err := init.Wait(pid, out); err != unix.ECHILD {
		t.Errorf("second Wait got %v want ECHILD", err)
	}
	if got := k.NumTasks(); got != 1 {
		t.Errorf("NumTasks got %d want 1", got)
	}
	checkReleased(t, k)
}

func TestWaitPanicsOnSharedChild(t *testing.T) {
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": "loop: j loop"}})
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	child, err := init.Fork()
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	runAs(k, child)
	child.PrepareExit(0)
	k.exitCurrent()

	// A second owner outlives the child list.
	child.IncRef()
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("Wait on a child with two owners did not panic")
			}
			if msg, ok := r.(string); !ok || !strings.Contains(msg, "references") {
				t.Errorf("Wait panicked with %v, want a reference count message", r)
			}
		}()
		init.Wait(child.ThreadID(), 0)
	}()
	if got := child.ReadRefs(); got != 2 {
		t.Errorf("child refs after the failed reap got %d want 2", got)
	}
	child.DecRef()
	child.DecRef()
	checkReleased(t, k)
}

func TestForkOutOfFrames(t *testing.T) {
	conf := DefaultConfig()
	conf.PhysFrames = conf.KernelFrames + 80
	k, _ := newTestKernel(t, testKernelOpts{conf: conf, apps: map[string]string{"init": "loop: j loop"}})
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	var forked []*Task
	for {
		child, err := init.Fork()
		if err != nil {
			if !errors.Is(err, syserror.ErrOutOfFrames) {
				t.Fatalf("Fork got %v want %v", err, syserror.ErrOutOfFrames)
			}
			break
		}
		forked = append(forked, child)
	}
	if len(forked) == 0 {
		t.Fatalf("no fork succeeded")
	}
	if got, want := k.NumTasks(), len(forked)+1; got != want {
		t.Errorf("NumTasks got %d want %d", got, want)
	}
	checkReleased(t, k)
}

func TestSpawnAndExec(t *testing.T) {
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{
		"init":  "loop: j loop",
		"other": "nop\nnop\nli a7, 93\necall",
	}})
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	img, err := k.LoadImage("other")
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	child, err := init.Spawn(img)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if got := child.TrapContext().IP(); got != img.Entry {
		t.Errorf("spawned pc got %v want %v", got, img.Entry)
	}
	if got := child.Parent(); got != init {
		t.Errorf("spawned parent got %p want init", got)
	}

	before := k.Frames().InUse()
	if err := init.Exec(img); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := init.ThreadID(); got != InitTID {
		t.Errorf("pid after exec got %d want %d", got, InitTID)
	}
	tc := init.TrapContext()
	if got := tc.IP(); got != img.Entry {
		t.Errorf("pc after exec got %v want %v", got, img.Entry)
	}
	if got, want := tc.KernelSP, uint64(init.kernelStackTop); got != want {
		t.Errorf("kernel sp after exec got %#x want %#x", got, want)
	}
	if got := k.Frames().InUse(); got != before {
		t.Errorf("frames after exec of a same-sized image got %d want %d", got, before)
	}
	if diff := cmp.Diff([]ThreadID{child.ThreadID()}, init.Children()); diff != "" {
		t.Errorf("children changed by exec (-want +got):\n%s", diff)
	}
	checkReleased(t, k)
}

func TestPriorityAndInfo(t *testing.T) {
	k, clock := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": "loop: j loop"}})
	init, err := k.CreateInit("init")
	if err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	if got := init.Priority(); got != DefaultPriority {
		t.Errorf("default priority got %d want %d", got, DefaultPriority)
	}
	for _, prio := range []int64{1, 0, -5} {
		if err := init.SetPriority(prio); err != unix.EINVAL {
			t.Errorf("SetPriority(%d) got %v want EINVAL", prio, err)
		}
	}
	if got := init.Priority(); got != DefaultPriority {
		t.Errorf("priority after rejected updates got %d want %d", got, DefaultPriority)
	}
	if err := init.SetPriority(10); err != nil || init.Priority() != 10 {
		t.Errorf("SetPriority(10) got (%v, %d) want 10", err, init.Priority())
	}

	if info := init.Info(); info.Time != 0 || info.Status != uk.TaskReady {
		t.Errorf("Info before dispatch got status %v time %d", info.Status, info.Time)
	}
	if got := k.dispatch(); got != init {
		t.Fatalf("dispatch got %p want init", got)
	}
	clock.Advance(1500 * time.Millisecond)

	var args arch.SyscallArguments
	init.InvokeSyscall(uk.SysYield, args)
	init.InvokeSyscall(uk.SysYield, args)
	if rval, _ := init.InvokeSyscall(7, args); rval != ^uintptr(0) {
		t.Errorf("unknown syscall got %#x want -1", rval)
	}
	init.InvokeSyscall(uk.MaxSyscallNum, args)

	info := init.Info()
	if info.Status != uk.TaskRunning {
		t.Errorf("status got %v want %v", info.Status, uk.TaskRunning)
	}
	if info.Time != 1500 {
		t.Errorf("time got %d want 1500", info.Time)
	}
	var want [uk.MaxSyscallNum]uint32
	want[uk.SysYield] = 2
	want[7] = 1
	if diff := cmp.Diff(want, info.SyscallTimes); diff != "" {
		t.Errorf("syscall counts mismatch (-want +got):\n%s", diff)
	}

	// A second dispatch keeps the first timestamp.
	k.suspendCurrent()
	clock.Advance(500 * time.Millisecond)
	k.dispatch()
	if got := init.Info().Time; got != 2000 {
		t.Errorf("time after redispatch got %d want 2000", got)
	}
	k.suspendCurrent()
	checkReleased(t, k)
}

const forkWaitProgram = `
	li a7, 220
	ecall
	bne a0, zero, parent
	li a0, 7
	li a7, 93
	ecall
parent:
	mv s0, a0
	addi sp, sp, -8
wait:
	li a0, -1
	mv a1, sp
	li a7, 260
	ecall
	li t0, -2
	bne a0, t0, done
	li a7, 124
	ecall
	j wait
done:
	bne a0, s0, bad
	ld a0, 0(sp)
	li a7, 93
	ecall
bad:
	li a0, 99
	li a7, 93
	ecall
`

func TestRunForkWait(t *testing.T) {
	for _, sched := range []string{SchedFIFO, SchedStride} {
		t.Run(sched, func(t *testing.T) {
			conf := DefaultConfig()
			conf.PhysFrames = 512
			conf.Scheduler = sched
			k, _ := newTestKernel(t, testKernelOpts{conf: conf, apps: map[string]string{"init": forkWaitProgram}})
			if _, err := k.CreateInit("init"); err != nil {
				t.Fatalf("CreateInit failed: %v", err)
			}
			if err := k.Run(context.Background()); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			code, exited := k.InitExitCode()
			if !exited || code != 7 {
				t.Errorf("init exit got (%d, %t) want (7, true)", code, exited)
			}
			if got := k.NumTasks(); got != 1 {
				t.Errorf("NumTasks got %d want 1", got)
			}
			checkReleased(t, k)
		})
	}
}

func TestRunFaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want int32
	}{
		{"store to text", "la t0, 0x10000\nsd t0, 0(t0)", ExitPageFault},
		{"load from null", "ld t0, 0(zero)", ExitPageFault},
		{"illegal instruction", "nop\n.dword 0", ExitIllegalInstruction},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": tc.src}})
			if _, err := k.CreateInit("init"); err != nil {
				t.Fatalf("CreateInit failed: %v", err)
			}
			if err := k.Run(context.Background()); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if code, _ := k.InitExitCode(); code != tc.want {
				t.Errorf("exit code got %d want %d", code, tc.want)
			}
			checkReleased(t, k)
		})
	}
}

func TestRunOrphans(t *testing.T) {
	// init exits right after forking, before the child ever runs.
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": `
	li a7, 220
	ecall
	li a0, 3
	li a7, 93
	ecall
`}})
	if _, err := k.CreateInit("init"); err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := k.NumTasks(); got != 2 {
		t.Errorf("NumTasks got %d want 2", got)
	}
	checkReleased(t, k)
}

func TestRunPreemption(t *testing.T) {
	conf := DefaultConfig()
	conf.PhysFrames = 512
	conf.Scheduler = SchedFIFO
	conf.MaxSteps = 1000
	conf.StepTime = time.Microsecond
	k, clock := newTestKernel(t, testKernelOpts{conf: conf, timeSlice: 100, apps: map[string]string{"init": "loop: j loop"}})
	start := clock.Now()
	if _, err := k.CreateInit("init"); err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	if err := k.Run(context.Background()); err != ErrStepLimit {
		t.Fatalf("Run got %v want %v", err, ErrStepLimit)
	}
	if got := k.Steps(); got != 1000 {
		t.Errorf("Steps got %d want 1000", got)
	}
	if got := clock.Now().Sub(start); got != 1000*time.Microsecond {
		t.Errorf("clock advanced by %v want 1ms", got)
	}
	if got := k.Init().Status(); got != uk.TaskReady {
		t.Errorf("init status got %v want %v", got, uk.TaskReady)
	}
	checkReleased(t, k)
}

func TestRunErrors(t *testing.T) {
	k, _ := newTestKernel(t, testKernelOpts{apps: map[string]string{"init": "loop: j loop"}})
	if err := k.Run(context.Background()); err != ErrNoRunnableTasks {
		t.Errorf("Run without tasks got %v want %v", err, ErrNoRunnableTasks)
	}
	if _, err := k.CreateInit("init"); err != nil {
		t.Fatalf("CreateInit failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.Run(ctx); !errors.Is(err, platform.ErrContextInterrupt) {
		t.Errorf("Run with cancelled context got %v want %v", err, platform.ErrContextInterrupt)
	}
	checkReleased(t, k)
}
