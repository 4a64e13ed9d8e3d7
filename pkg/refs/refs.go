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

// Package refs defines a reference count used by objects that have several
// owners, with optional leak checking.
package refs

import (
	"fmt"
	"sync/atomic"
)

// Refs keeps a reference count and calls a destructor when the count reaches
// zero. The zero value has no references; call InitRefs before use.
type Refs struct {
	refCount atomic.Int64

	// obj is the owning object, used for leak reports. It may be nil.
	obj CheckedObject
}

// InitRefs initializes r with one reference and, if enabled, activates leak
// checking for obj.
func (r *Refs) InitRefs(obj CheckedObject) {
	r.refCount.Store(1)
	r.obj = obj
	if obj != nil {
		Register(obj)
	}
}

// ReadRefs returns the current number of references.
func (r *Refs) ReadRefs() int64 {
	return r.refCount.Load()
}

// IncRef adds a reference.
//
// Precondition: r holds at least one reference.
func (r *Refs) IncRef() {
	if v := r.refCount.Add(1); v <= 1 {
		panic(fmt.Sprintf("Incrementing non-positive count %p on %s", r, r.refType()))
	}
}

// DecRef drops a reference, calling destroy when the last one goes away.
func (r *Refs) DecRef(destroy func()) {
	v := r.refCount.Add(-1)
	switch {
	case v < 0:
		panic(fmt.Sprintf("Decrementing non-positive ref count %p, owned by %s", r, r.refType()))
	case v == 0:
		if r.obj != nil {
			Unregister(r.obj)
		}
		if destroy != nil {
			destroy()
		}
	}
}

func (r *Refs) refType() string {
	if r.obj == nil {
		return "unknown"
	}
	return r.obj.RefType()
}
