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
	"errors"
)

// ThreadID is a task's process identifier.
type ThreadID int32

const (
	// InitTID is the pid of the init task.
	InitTID ThreadID = 1

	// TasksLimit is the largest pid. Kernel stacks for every possible pid
	// fit below the trampoline.
	TasksLimit ThreadID = 1 << 12
)

// errNoPIDs is returned when every pid is in use.
var errNoPIDs = errors.New("no free pids")

// pidTable maps pids to live tasks.
type pidTable struct {
	tasks map[ThreadID]*Task

	// last is the last pid handed out.
	last ThreadID
}

func newPIDTable() pidTable {
	return pidTable{tasks: make(map[ThreadID]*Task)}
}

// allocate returns an unused pid. Pids are handed out in increasing order,
// wrapping to InitTID+1 after TasksLimit, so a freed pid is not reused until
// the others have been tried.
func (p *pidTable) allocate() (ThreadID, error) {
	pid := p.last
	for tries := ThreadID(0); tries < TasksLimit; tries++ {
		// Next.
		pid++
		if pid > TasksLimit {
			pid = InitTID + 1
		}

		// Is it available?
		if _, ok := p.tasks[pid]; !ok {
			p.last = pid
			return pid, nil
		}
	}
	return 0, errNoPIDs
}
