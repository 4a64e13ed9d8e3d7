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

	"github.com/google/btree"
)

// Scheduling policies.
const (
	SchedFIFO   = "fifo"
	SchedStride = "stride"
)

const (
	// DefaultBigStride is the stride scheduler's default numerator.
	DefaultBigStride = 1 << 20

	// DefaultPriority is the priority of a task that never called
	// set_priority.
	DefaultPriority = 16
)

// Scheduler holds the tasks that are ready to run and picks the next one.
// Schedulers are protected by Kernel.mu.
type Scheduler interface {
	// Enqueue adds t to the ready set. The scheduler takes over the
	// caller's reference on t.
	Enqueue(t *Task)

	// PickNext removes and returns the task to run next, or nil if no task
	// is ready. The caller receives the scheduler's reference.
	PickNext() *Task

	// Len returns the number of ready tasks.
	Len() int

	// Drain removes every task and returns them with their references.
	Drain() []*Task
}

// NewScheduler returns the scheduler with the given policy name.
func NewScheduler(name string, bigStride uint64) (Scheduler, error) {
	switch name {
	case SchedFIFO:
		return &fifoScheduler{}, nil
	case SchedStride:
		if bigStride == 0 {
			return nil, fmt.Errorf("stride scheduler needs a non-zero big stride")
		}
		return newStrideScheduler(bigStride), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", name)
	}
}

// fifoScheduler runs tasks in the order they became ready.
type fifoScheduler struct {
	queue []*Task
}

// Enqueue implements Scheduler.Enqueue.
func (s *fifoScheduler) Enqueue(t *Task) {
	s.queue = append(s.queue, t)
}

// PickNext implements Scheduler.PickNext.
func (s *fifoScheduler) PickNext() *Task {
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return t
}

// Len implements Scheduler.Len.
func (s *fifoScheduler) Len() int {
	return len(s.queue)
}

// Drain implements Scheduler.Drain.
func (s *fifoScheduler) Drain() []*Task {
	q := s.queue
	s.queue = nil
	return q
}

// strideScheduler implements stride scheduling. Every dispatch adds
// bigStride/priority to the task's stride; the ready task with the smallest
// stride runs next, ties going to the task that became ready first. A task
// with priority p therefore runs in proportion to p, and no ready task
// starves: the others' strides grow past its own.
type strideScheduler struct {
	bigStride uint64
	ready     *btree.BTreeG[*Task]

	// seq orders tasks with equal strides.
	seq uint64
}

func strideLess(a, b *Task) bool {
	if a.stride != b.stride {
		return a.stride < b.stride
	}
	return a.schedSeq < b.schedSeq
}

func newStrideScheduler(bigStride uint64) *strideScheduler {
	return &strideScheduler{
		bigStride: bigStride,
		ready:     btree.NewG[*Task](8, strideLess),
	}
}

// Enqueue implements Scheduler.Enqueue.
func (s *strideScheduler) Enqueue(t *Task) {
	s.seq++
	t.schedSeq = s.seq
	s.ready.ReplaceOrInsert(t)
}

// PickNext implements Scheduler.PickNext.
func (s *strideScheduler) PickNext() *Task {
	t, ok := s.ready.DeleteMin()
	if !ok {
		return nil
	}
	t.stride += s.bigStride / uint64(t.Priority())
	return t
}

// Len implements Scheduler.Len.
func (s *strideScheduler) Len() int {
	return s.ready.Len()
}

// Drain implements Scheduler.Drain.
func (s *strideScheduler) Drain() []*Task {
	ts := make([]*Task, 0, s.ready.Len())
	s.ready.Ascend(func(t *Task) bool {
		ts = append(ts, t)
		return true
	})
	s.ready.Clear(false)
	return ts
}
