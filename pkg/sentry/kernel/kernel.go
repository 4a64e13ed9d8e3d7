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

// Package kernel provides an emulation of a small teaching kernel: the task
// tree, process lifecycle, scheduling, and the dispatch of syscalls made by
// user code.
//
// Lock order:
//
//	Kernel.mu
//		Task.mu
//
// Both are sync.ExclusiveMutex: acquiring one that is already held is a bug
// and panics.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/abi/uk"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/metric"
	"gvisor.dev/ukernel/pkg/sentry/ktime"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/mm"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
	"gvisor.dev/ukernel/pkg/sentry/platform"
	"gvisor.dev/ukernel/pkg/sync"
)

// PhysBase is the physical address of the first frame of memory. The kernel
// image, and with it the trampoline, starts here.
const PhysBase hostarch.PhysAddr = 0x80000000

var (
	syscallCounter = metric.MustCreateNewUint64Metric("/kernel/syscalls", "Number of syscalls made by user code.",
		metric.NewField("name", append(uk.SyscallNames(), "unknown")))
	tasksCreated   = metric.MustCreateNewUint64Metric("/kernel/tasks_created", "Number of tasks created.")
	tasksDestroyed = metric.MustCreateNewUint64Metric("/kernel/tasks_destroyed", "Number of tasks whose resources were freed.")
	taskFaults     = metric.MustCreateNewUint64Metric("/kernel/task_faults", "Number of tasks killed by a fault.",
		metric.NewField("kind", []string{"page_fault", "illegal_instruction"}))
)

// ErrNoRunnableTasks is returned by Run when the init task is alive but no
// task can run.
var ErrNoRunnableTasks = errors.New("no runnable tasks")

// ErrStepLimit is returned by Run when user code has retired
// Config.MaxSteps instructions.
var ErrStepLimit = errors.New("instruction limit reached")

// Config configures a Kernel.
type Config struct {
	// PhysFrames is the number of frames of physical memory.
	PhysFrames int

	// KernelFrames is the number of frames at the start of physical memory
	// reserved for the kernel image. The first one holds the trampoline.
	KernelFrames int

	// Scheduler selects the scheduling policy: "fifo" or "stride".
	Scheduler string

	// BigStride is the stride scheduler's numerator.
	BigStride uint64

	// DefaultPriority is the priority of new tasks.
	DefaultPriority int64

	// StepTime is the time that passes for each instruction user code
	// retires. It is only used with a clock that implements ktime.Advancer.
	StepTime time.Duration

	// MaxSteps bounds the number of instructions Run executes. Zero means
	// no bound.
	MaxSteps uint64
}

// DefaultConfig returns the default kernel configuration.
func DefaultConfig() Config {
	return Config{
		PhysFrames:      4096,
		KernelFrames:    16,
		Scheduler:       SchedStride,
		BigStride:       DefaultBigStride,
		DefaultPriority: DefaultPriority,
	}
}

func (c *Config) validate() error {
	if c.KernelFrames < 1 {
		return fmt.Errorf("kernel frames must be at least 1, got %d", c.KernelFrames)
	}
	if c.PhysFrames <= c.KernelFrames {
		return fmt.Errorf("physical frames (%d) must exceed kernel frames (%d)", c.PhysFrames, c.KernelFrames)
	}
	if c.DefaultPriority <= 1 {
		return fmt.Errorf("default priority must be greater than 1, got %d", c.DefaultPriority)
	}
	return nil
}

// InitKernelArgs holds arguments to New.
type InitKernelArgs struct {
	Config Config

	// NewPlatform returns the platform that runs user code held in the
	// kernel's physical memory.
	NewPlatform func(*pgalloc.MemoryFile) platform.Platform

	// Clock is the wall clock. If nil, the host monotonic clock is used.
	Clock ktime.Clock

	// Apps resolves the paths passed to exec and spawn.
	Apps loader.FileLookup

	// Console receives bytes written to standard output. If nil, output is
	// discarded.
	Console io.Writer

	// Syscalls is the syscall table.
	Syscalls *SyscallTable
}

// Kernel represents an emulated kernel: its physical memory, its kernel
// address space and the tasks that run on its single processor.
type Kernel struct {
	conf     Config
	file     *pgalloc.MemoryFile
	frames   *pgalloc.FrameAllocator
	platform platform.Platform
	clock    ktime.Clock
	apps     loader.FileLookup
	console  io.Writer
	syscalls *SyscallTable

	// trampoline is the frame mapped at the top of every address space.
	trampoline hostarch.PPN

	// kernelToken is the token of kernelSpace's page table.
	kernelToken uint64

	// faultLimit keeps reports of tasks killed by faults from flooding the
	// log.
	faultLimit *log.RateLimiter

	// steps is the number of instructions retired by user code. It is only
	// accessed by the goroutine calling Run.
	steps uint64

	// pctx is the processor's platform context, created on first use. It is
	// only accessed by the goroutine calling Run.
	pctx platform.Context

	mu sync.ExclusiveMutex

	// kernelSpace is the kernel's address space. It holds the kernel stacks
	// of all tasks.
	// +checklocks:mu
	kernelSpace *mm.MemoryManager

	// +checklocks:mu
	pids pidTable

	// sched holds a reference on every task in it.
	// +checklocks:mu
	sched Scheduler

	// current is the running task. The slot holds a reference.
	// +checklocks:mu
	current *Task

	// init is the root of the task tree. The slot holds a reference until
	// Release.
	// +checklocks:mu
	init *Task

	// initExited is set when init exits; Run returns.
	// +checklocks:mu
	initExited bool
}

// New returns a kernel with fresh physical memory and no tasks.
func New(args InitKernelArgs) (*Kernel, error) {
	conf := args.Config
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if args.NewPlatform == nil {
		return nil, errors.New("no platform")
	}
	if args.Syscalls == nil {
		return nil, errors.New("no syscall table")
	}
	sched, err := NewScheduler(conf.Scheduler, conf.BigStride)
	if err != nil {
		return nil, err
	}
	file, err := pgalloc.NewMemoryFile(PhysBase, conf.PhysFrames)
	if err != nil {
		return nil, err
	}
	frames, err := pgalloc.NewFrameAllocator(file, conf.KernelFrames)
	if err != nil {
		return nil, err
	}
	trampoline, _ := file.Frames()
	ks, err := mm.NewKernelSpace(frames, trampoline)
	if err != nil {
		return nil, fmt.Errorf("building kernel address space: %w", err)
	}

	k := &Kernel{
		conf:        conf,
		file:        file,
		frames:      frames,
		platform:    args.NewPlatform(file),
		clock:       args.Clock,
		apps:        args.Apps,
		console:     args.Console,
		syscalls:    args.Syscalls,
		trampoline:  trampoline,
		kernelToken: ks.Token(),
		faultLimit:  log.NewRateLimiter(time.Second),
		kernelSpace: ks,
		pids:        newPIDTable(),
		sched:       sched,
	}
	k.mu.Name = "kernel"
	if k.clock == nil {
		k.clock = ktime.HostClock{}
	}
	if k.apps == nil {
		k.apps = loader.AppTable{}
	}
	if k.console == nil {
		k.console = io.Discard
	}
	log.Infof("Kernel created: %d frames of physical memory at %v, %d reserved, %s scheduler",
		conf.PhysFrames, PhysBase, conf.KernelFrames, conf.Scheduler)
	return k, nil
}

// Frames returns the kernel's frame allocator.
func (k *Kernel) Frames() *pgalloc.FrameAllocator {
	return k.frames
}

// Now returns the current time of the kernel's clock.
func (k *Kernel) Now() ktime.Time {
	return k.clock.Now()
}

// Console returns the writer that receives standard output.
func (k *Kernel) Console() io.Writer {
	return k.console
}

// Steps returns the number of instructions retired by user code so far.
func (k *Kernel) Steps() uint64 {
	return k.steps
}

// KernelSpace returns a rendering of the kernel address space.
func (k *Kernel) KernelSpace() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.kernelSpace.String()
}

// LoadImage resolves path through the kernel's application lookup and parses
// the result. It returns ENOENT if there is no such file and ENOEXEC if the
// file is not an image.
func (k *Kernel) LoadImage(path string) (*loader.Image, error) {
	data, ok := k.apps.Open(path)
	if !ok {
		return nil, unix.ENOENT
	}
	return loader.Parse(data)
}

// CreateInit creates the init task from the image at path and makes it
// runnable.
func (k *Kernel) CreateInit(path string) (*Task, error) {
	img, err := k.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("loading init %q: %w", path, err)
	}
	k.mu.Lock()
	exists := k.init != nil
	k.mu.Unlock()
	if exists {
		return nil, errors.New("init already exists")
	}

	t, err := k.newTaskFromImage(img, nil)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.init = t
	k.mu.Unlock()
	k.Start(t)
	t.Infof("Created init from %q", path)
	return t, nil
}

// Init returns the init task, or nil.
func (k *Kernel) Init() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.init
}

// InitExitCode returns init's exit code and whether init has exited.
func (k *Kernel) InitExitCode() (int32, bool) {
	k.mu.Lock()
	t, exited := k.init, k.initExited
	k.mu.Unlock()
	if !exited {
		return 0, false
	}
	return t.ExitCode(), true
}

// TaskWithID returns the live task with the given pid, or nil.
func (k *Kernel) TaskWithID(pid ThreadID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pids.tasks[pid]
}

// NumTasks returns the number of tasks that have not been destroyed.
func (k *Kernel) NumTasks() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pids.tasks)
}

// Release drops the kernel's references on every task and frees the kernel
// address space. Tasks whose last reference is dropped free their memory,
// so once every task is gone all frames are back in the allocator.
func (k *Kernel) Release() {
	k.mu.Lock()
	drop := k.sched.Drain()
	if k.current != nil {
		drop = append(drop, k.current)
		k.current = nil
	}
	if k.init != nil {
		drop = append(drop, k.init)
		k.init = nil
	}
	k.mu.Unlock()

	for _, t := range drop {
		t.DecRef()
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if n := len(k.pids.tasks); n != 0 {
		log.Warningf("Releasing kernel with %d tasks still referenced", n)
		return
	}
	k.kernelSpace.Release()
	k.kernelSpace = nil
	if n := k.frames.InUse(); n != 0 {
		log.Warningf("Kernel released with %d frames in use: %v", n, k.frames.Allocated())
	}
}

// stepLimitReached returns true if Run has executed MaxSteps instructions.
func (k *Kernel) stepLimitReached() bool {
	return k.conf.MaxSteps > 0 && k.steps >= k.conf.MaxSteps
}
