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
	"gvisor.dev/ukernel/pkg/sentry/mm"
)

// Exec replaces t's address space with one built from img and resets its
// registers to start img. The pid, parent and children are unchanged. On
// failure t is unchanged.
func (t *Task) Exec(img *loader.Image) error {
	m, sp, entry, err := mm.FromImage(t.k.frames, t.k.trampoline, img)
	if err != nil {
		return err
	}
	tc := t.appInitContext(entry, sp)
	tc.MarshalBytes(m.TrapContextPage())

	t.mu.Lock()
	old := t.mm
	t.mm = m
	t.mu.Unlock()

	old.Release()
	t.Debugf("Exec: entry %v, stack %v", entry, sp)
	return nil
}
