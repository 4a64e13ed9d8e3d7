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
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/ulib"
	"gvisor.dev/ukernel/uksim/boot"
	"gvisor.dev/ukernel/uksim/config"
	"gvisor.dev/ukernel/uksim/flag"
	"gvisor.dev/ukernel/uksim/workload"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	init   string
	ops    stringFlags
	kernel bool
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the address space of a freshly loaded program"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [-init <program>] [-op <op>...] - loads a program as init without running it, applies memory operations on its behalf and prints its address space.

Operations are applied in order:
  mmap:<start>:<length>:<perm>   perm is a combination of r, w and x
  munmap:<start>:<length>
  sbrk:<delta>
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.init, "init", "hello", "program to load.")
	f.Var(&l.ops, "op", "memory operation to apply; can be repeated.")
	f.BoolVar(&l.kernel, "kernel", false, "also print the kernel address space.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	var ops []memOp
	for _, s := range l.ops {
		op, err := parseMemOp(s)
		if err != nil {
			Fatalf("%v", err)
		}
		ops = append(ops, op)
	}
	if err := l.write(os.Stdout, conf, ops); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (l *Layout) write(w io.Writer, conf *config.Config, ops []memOp) error {
	ld, err := boot.New(boot.Args{
		Conf:     conf,
		Workload: &workload.Workload{Name: "layout", Init: l.init},
	})
	if err != nil {
		return err
	}
	defer ld.Destroy()
	t, err := ld.CreateInit()
	if err != nil {
		return err
	}
	p := ulib.New(t, 0)
	for _, op := range ops {
		res, err := op.apply(p)
		if err != nil {
			return fmt.Errorf("%v: %w", op, err)
		}
		if _, err := fmt.Fprintf(w, "%v = %s\n", op, res); err != nil {
			return err
		}
	}
	k := ld.Kernel()
	if _, err := fmt.Fprintf(w, "%s address space, %d frames in use:\n%s", l.init, k.Frames().InUse(), t.MemoryManager()); err != nil {
		return err
	}
	if l.kernel {
		if _, err := fmt.Fprintf(w, "kernel address space:\n%s", k.KernelSpace()); err != nil {
			return err
		}
	}
	return nil
}

// memOp is a memory operation applied by the layout command.
type memOp struct {
	name   string
	start  hostarch.Addr
	length uint64
	at     hostarch.AccessType
	delta  int64
}

// parseMemOp parses an operation in the syntax of the layout command.
func parseMemOp(s string) (memOp, error) {
	fields := strings.Split(s, ":")
	op := memOp{name: fields[0]}
	var err error
	switch {
	case op.name == "mmap" && len(fields) == 4:
		if op.start, op.length, err = parseRange(fields[1], fields[2]); err != nil {
			break
		}
		op.at, err = parsePerm(fields[3])
	case op.name == "munmap" && len(fields) == 3:
		op.start, op.length, err = parseRange(fields[1], fields[2])
	case op.name == "sbrk" && len(fields) == 2:
		op.delta, err = strconv.ParseInt(fields[1], 0, 64)
	default:
		return memOp{}, fmt.Errorf("invalid memory operation %q", s)
	}
	if err != nil {
		return memOp{}, fmt.Errorf("invalid memory operation %q: %w", s, err)
	}
	return op, nil
}

func parseRange(start, length string) (hostarch.Addr, uint64, error) {
	s, err := strconv.ParseUint(start, 0, 64)
	if err != nil {
		return 0, 0, err
	}
	l, err := strconv.ParseUint(length, 0, 64)
	if err != nil {
		return 0, 0, err
	}
	return hostarch.Addr(s), l, nil
}

func parsePerm(s string) (hostarch.AccessType, error) {
	var at hostarch.AccessType
	for _, c := range s {
		switch c {
		case 'r':
			at.Read = true
		case 'w':
			at.Write = true
		case 'x':
			at.Execute = true
		case '-':
		default:
			return at, fmt.Errorf("invalid permission %q", c)
		}
	}
	return at, nil
}

// String implements fmt.Stringer.String.
func (op memOp) String() string {
	switch op.name {
	case "sbrk":
		return fmt.Sprintf("sbrk(%d)", op.delta)
	case "mmap":
		return fmt.Sprintf("mmap(%#x, %#x, %v)", uint64(op.start), op.length, op.at)
	default:
		return fmt.Sprintf("%s(%#x, %#x)", op.name, uint64(op.start), op.length)
	}
}

func (op memOp) apply(p *ulib.Proc) (string, error) {
	switch op.name {
	case "mmap":
		return "0", p.Mmap(op.start, op.length, op.at)
	case "munmap":
		return "0", p.Munmap(op.start, op.length)
	case "sbrk":
		old, err := p.Sbrk(op.delta)
		return fmt.Sprintf("%#x", uint64(old)), err
	default:
		panic(fmt.Sprintf("unknown memory operation %q", op.name))
	}
}
