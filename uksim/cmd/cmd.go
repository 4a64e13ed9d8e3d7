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

// Package cmd holds implementations of the uksim commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"gvisor.dev/ukernel/pkg/log"
)

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

// stringFlags can be used with string flags that appear multiple times.
type stringFlags []string

// String implements flag.Value.
func (s *stringFlags) String() string {
	return strings.Join(*s, ",")
}

// Get implements flag.Getter.
func (s *stringFlags) Get() any {
	return s
}

// Set implements flag.Value.
func (s *stringFlags) Set(v string) error {
	if v == "" {
		return fmt.Errorf("empty flag value")
	}
	*s = append(*s, v)
	return nil
}
