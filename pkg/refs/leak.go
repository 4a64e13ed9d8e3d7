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

package refs

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"gvisor.dev/ukernel/pkg/log"
	"gvisor.dev/ukernel/pkg/sync"
)

// LeakMode configures the leak checker.
type LeakMode uint32

const (
	// NoLeakChecking indicates that no effort should be made to check for
	// leaks.
	NoLeakChecking LeakMode = iota

	// LeaksLogWarning indicates that a warning should be logged when leaks
	// are found.
	LeaksLogWarning

	// LeaksPanic indicates that a panic should be issued when leaks are found.
	LeaksPanic
)

// String implements fmt.Stringer.String.
func (l LeakMode) String() string {
	switch l {
	case NoLeakChecking:
		return "disabled"
	case LeaksLogWarning:
		return "log-names"
	case LeaksPanic:
		return "panic"
	default:
		return fmt.Sprintf("LeakMode(%d)", uint32(l))
	}
}

var leakMode atomic.Uint32

// SetLeakMode configures the reference leak checker.
func SetLeakMode(mode LeakMode) {
	leakMode.Store(uint32(mode))
}

// GetLeakMode returns the current leak mode.
func GetLeakMode() LeakMode {
	return LeakMode(leakMode.Load())
}

// CheckedObject represents a reference-counted object with an informative
// leak detection message.
type CheckedObject interface {
	// RefType is the type of the reference-counted object.
	RefType() string

	// LeakMessage supplies a warning to be printed upon leak detection.
	LeakMessage() string
}

var (
	// liveObjects is the set of registered objects that have not been
	// destroyed yet. It is protected by liveObjectsMu.
	liveObjects   = make(map[CheckedObject]struct{})
	liveObjectsMu sync.Mutex
)

// Register adds obj to the live object map.
func Register(obj CheckedObject) {
	if GetLeakMode() == NoLeakChecking {
		return
	}
	liveObjectsMu.Lock()
	defer liveObjectsMu.Unlock()
	if _, ok := liveObjects[obj]; ok {
		panic(fmt.Sprintf("Unexpected entry in leak checking map: reference %p already added", obj))
	}
	liveObjects[obj] = struct{}{}
}

// Unregister removes obj from the live object map. Objects registered before
// leak checking was enabled are ignored.
func Unregister(obj CheckedObject) {
	if GetLeakMode() == NoLeakChecking {
		return
	}
	liveObjectsMu.Lock()
	defer liveObjectsMu.Unlock()
	delete(liveObjects, obj)
}

// DoLeakCheck reports every object still registered. It should be called when
// no reference-counted objects are reachable anymore, at which point anything
// left is a leak. The number of leaked objects is returned.
func DoLeakCheck() int {
	mode := GetLeakMode()
	if mode == NoLeakChecking {
		return 0
	}
	liveObjectsMu.Lock()
	msgs := make([]string, 0, len(liveObjects))
	for obj := range liveObjects {
		msgs = append(msgs, obj.LeakMessage())
	}
	liveObjectsMu.Unlock()
	if len(msgs) == 0 {
		return 0
	}
	sort.Strings(msgs)
	msg := fmt.Sprintf("Leak checking detected %d leaked objects:\n%s", len(msgs), strings.Join(msgs, "\n"))
	if mode == LeaksPanic {
		panic(msg)
	}
	log.Warningf("%s", msg)
	return len(msgs)
}
