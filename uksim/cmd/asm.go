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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
	"gvisor.dev/ukernel/uksim/apps"
	"gvisor.dev/ukernel/uksim/flag"
)

// Asm implements subcommands.Command for the "asm" command.
type Asm struct {
	output  string
	builtin string
	list    bool
}

// Name implements subcommands.Command.Name.
func (*Asm) Name() string {
	return "asm"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Asm) Synopsis() string {
	return "assemble a program into a flat image"
}

// Usage implements subcommands.Command.Usage.
func (*Asm) Usage() string {
	return `asm [-o <image>] [-l] <source> | -builtin <name> - assembles a program for the flat image base.

Images can be loaded from --apps-dir. With -l, a listing is printed instead.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (a *Asm) SetFlags(f *flag.FlagSet) {
	f.StringVar(&a.output, "o", "", "file to write the image to.")
	f.StringVar(&a.builtin, "builtin", "", "assemble the named built-in program instead of a source file.")
	f.BoolVar(&a.list, "l", false, "print a listing of the image.")
}

// Execute implements subcommands.Command.Execute.
func (a *Asm) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var src string
	switch {
	case a.builtin != "" && f.NArg() == 0:
		s, ok := apps.Source(a.builtin)
		if !ok {
			Fatalf("no built-in program %q, have %v", a.builtin, apps.Names())
		}
		src = s
	case a.builtin == "" && f.NArg() == 1:
		b, err := os.ReadFile(f.Arg(0))
		if err != nil {
			Fatalf("%v", err)
		}
		src = string(b)
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	if a.output == "" && !a.list {
		f.Usage()
		return subcommands.ExitUsageError
	}

	image, err := interp.Assemble(src, loader.FlatBase)
	if err != nil {
		Fatalf("%v", err)
	}
	if a.output != "" {
		if err := os.WriteFile(a.output, image, 0644); err != nil {
			Fatalf("%v", err)
		}
	}
	if a.list {
		if err := writeListing(os.Stdout, image, loader.FlatBase); err != nil {
			Fatalf("%v", err)
		}
	}
	return subcommands.ExitSuccess
}

// writeListing prints image one instruction slot per line. Slots that do not
// decode are printed as data.
func writeListing(w io.Writer, image []byte, base hostarch.Addr) error {
	for off := 0; off < len(image); off += interp.InstSize {
		end := min(off+interp.InstSize, len(image))
		slot := image[off:end]
		text := fmt.Sprintf(".data %x", slot)
		if inst, ok := interp.Decode(slot); ok {
			text = inst.String()
		}
		if _, err := fmt.Fprintf(w, "%#08x:  %s\n", uint64(base)+uint64(off), text); err != nil {
			return err
		}
	}
	return nil
}
