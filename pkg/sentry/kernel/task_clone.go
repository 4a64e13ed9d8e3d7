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
	"gvisor.dev/ukernel/pkg/sentry/loader"
)

// Fork creates a child of t whose address space is a copy of t's, including
// the trap context, so the child resumes where t trapped. The child is not
// runnable until passed to Kernel.Start.
func (t *Task) Fork() (*Task, error) {
	t.mu.Lock()
	m, err := t.mm.Fork()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	child, err := t.k.newTask(m, t)
	if err != nil {
		return nil, err
	}
	tc := child.TrapContext()
	tc.KernelSP = uint64(child.kernelStackTop)
	child.SetTrapContext(tc)
	t.adopt(child)
	child.Debugf("Forked from %d", t.pid)
	return child, nil
}

// Spawn creates a child of t running img. Unlike Fork followed by Exec, t's
// address space is never copied. The child is not runnable until passed to
// Kernel.Start.
func (t *Task) Spawn(img *loader.Image) (*Task, error) {
	child, err := t.k.newTaskFromImage(img, t)
	if err != nil {
		return nil, err
	}
	t.adopt(child)
	child.Debugf("Spawned by %d", t.pid)
	return child, nil
}

// adopt adds child to t's children, transferring the caller's reference.
func (t *Task) adopt(child *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, child)
}
