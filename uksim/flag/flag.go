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

// Package flag wraps the standard flag package for uksim.
package flag

import (
	"flag"
)

// FlagSet is an alias for flag.FlagSet.
type FlagSet = flag.FlagSet

// Flag is an alias for flag.Flag.
type Flag = flag.Flag

var (
	Bool            = flag.Bool
	CommandLine     = flag.CommandLine
	ContinueOnError = flag.ContinueOnError
	Duration        = flag.Duration
	ExitOnError     = flag.ExitOnError
	Int             = flag.Int
	Lookup          = flag.Lookup
	NewFlagSet      = flag.NewFlagSet
	Parse           = flag.Parse
	String          = flag.String
)

// Get returns the flag's underlying object.
func Get(v flag.Value) any {
	return v.(flag.Getter).Get()
}
