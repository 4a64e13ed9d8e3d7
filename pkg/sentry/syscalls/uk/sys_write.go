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

package uk

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/kernel"
)

const (
	// stdout is the only file descriptor user code can write to.
	stdout = 1

	// maxWriteCount bounds the bytes moved by a single write, as
	// MAX_RW_COUNT does in Linux.
	maxWriteCount = 1 << 20
)

// Write implements write(fd, buf, len). Only standard output is supported;
// its bytes go to the kernel console.
func Write(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	if fd != stdout {
		return 0, nil, unix.EBADF
	}
	if size > maxWriteCount {
		size = maxWriteCount
	}
	buf := make([]byte, size)
	if _, err := t.CopyIn(addr, buf); err != nil {
		return 0, nil, err
	}
	n, err := t.Kernel().Console().Write(buf)
	if err != nil && n == 0 {
		t.Warningf("Console write failed: %v", err)
		return 0, nil, unix.EIO
	}
	return uintptr(n), nil, nil
}
