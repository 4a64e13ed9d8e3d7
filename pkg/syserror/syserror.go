// Copyright 2018 The gVisor Authors.
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

// Package syserror contains syscall error codes exported as error interface
// instead of Errno, and the conversion from handler errors to the values user
// programs observe in a0.
package syserror

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is an internal error used to indicate that an operation
	// cannot be satisfied immediately, and should be retried at a later
	// time. waitpid returns it while the awaited child is still running.
	ErrWouldBlock = errors.New("request would block")

	// ErrOutOfFrames is returned when physical memory has no free frame
	// left.
	ErrOutOfFrames = errors.New("out of physical frames")
)

// errorMap is the map used to convert generic errors into errnos.
var errorMap = map[error]unix.Errno{}

// errorUnwrappers is an array of unwrap functions to extract typed errors.
var errorUnwrappers = []func(error) (unix.Errno, bool){}

// AddErrorTranslation allows modules to populate the error map by adding their
// own translations during initialization. Returns if the error translation is
// accepted or not. A pre-existing translation will not be overwritten by the
// new translation.
func AddErrorTranslation(from error, to unix.Errno) bool {
	if _, ok := errorMap[from]; ok {
		return false
	}

	errorMap[from] = to
	return true
}

// AddErrorUnwrapper registers an unwrap method that can extract a concrete error
// from a typed, but not initialized, error.
func AddErrorUnwrapper(unwrap func(e error) (unix.Errno, bool)) {
	errorUnwrappers = append(errorUnwrappers, unwrap)
}

// TranslateError translates errors to errnos, it will return false if
// the error was not registered.
func TranslateError(from error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(from, &errno) {
		return errno, true
	}
	if err, ok := errorMap[from]; ok {
		return err, true
	}
	// Try to unwrap the error if we couldn't match an error
	// exactly.  This might mean that a package has its own
	// error type.
	for _, unwrap := range errorUnwrappers {
		if err, ok := unwrap(from); ok {
			return err, true
		}
	}
	if wrapped := errors.Unwrap(from); wrapped != nil {
		return TranslateError(wrapped)
	}
	return 0, false
}

// Sentinel values stored in a0 when a syscall fails.
const (
	// Failure is returned for every failure except a child that has not
	// exited yet.
	Failure = -1

	// StillRunning is returned by waitpid when the matching child has not
	// exited yet.
	StillRunning = -2
)

// Sentinel returns the value user code observes for err. Only EAGAIN has its
// own sentinel; every other error, registered or not, maps to Failure.
func Sentinel(err error) int64 {
	if errno, ok := TranslateError(err); ok && errno == unix.EAGAIN {
		return StillRunning
	}
	return Failure
}

func init() {
	AddErrorTranslation(ErrWouldBlock, unix.EAGAIN)
	AddErrorTranslation(ErrOutOfFrames, unix.ENOMEM)
}
