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

package sync

import (
	"fmt"
	"sync"
)

// ExclusiveMutex guards state that is owned by a single execution context at
// a time. Unlike Mutex it never blocks: there is no second CPU that could
// release it, so acquiring an ExclusiveMutex that is already held is a kernel
// bug and panics.
//
// The zero value is an unlocked ExclusiveMutex. Name is optional and only
// used in panic messages.
type ExclusiveMutex struct {
	Name string

	mu sync.Mutex
}

// Lock acquires m.
//
// Precondition: m is not held.
func (m *ExclusiveMutex) Lock() {
	if !m.mu.TryLock() {
		panic(fmt.Sprintf("re-entrant acquisition of exclusive mutex %q", m.name()))
	}
}

// Unlock releases m.
//
// Precondition: m is held.
func (m *ExclusiveMutex) Unlock() {
	if m.mu.TryLock() {
		m.mu.Unlock()
		panic(fmt.Sprintf("release of exclusive mutex %q that is not held", m.name()))
	}
	m.mu.Unlock()
}

// Held returns true if m is currently held. It is intended for assertions.
func (m *ExclusiveMutex) Held() bool {
	if m.mu.TryLock() {
		m.mu.Unlock()
		return false
	}
	return true
}

func (m *ExclusiveMutex) name() string {
	if m.Name == "" {
		return "anonymous"
	}
	return m.Name
}
