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

// Package interp implements a platform that interprets user code.
//
// Every access made by user code, including instruction fetch, is translated
// through the task's SV39 page table found from the token passed to Switch,
// the way the MMU would translate it through satp. Pages must be mapped with
// the User bit and the required permission; anything else is a page fault.
package interp

import (
	"context"

	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/ring0/pagetables"
	"gvisor.dev/ukernel/pkg/sentry/arch"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
	"gvisor.dev/ukernel/pkg/sentry/platform"
)

// interruptCheckInterval is how many instructions run between checks for
// cancellation.
const interruptCheckInterval = 1024

// Interp implements platform.Platform.
type Interp struct {
	file      *pgalloc.MemoryFile
	timeSlice int
}

var _ platform.Platform = (*Interp)(nil)

// New returns a platform that executes code held in file. A Context reports
// a timer trap after timeSlice instructions; zero disables preemption.
func New(file *pgalloc.MemoryFile, timeSlice int) *Interp {
	return &Interp{file: file, timeSlice: timeSlice}
}

// NewContext implements platform.Platform.NewContext.
func (p *Interp) NewContext() platform.Context {
	return &interpContext{p: p}
}

// TimeSlice implements platform.Platform.TimeSlice.
func (p *Interp) TimeSlice() int {
	return p.timeSlice
}

// interpContext implements platform.Context.
type interpContext struct {
	p *Interp
}

// fault is a failed translation.
type fault struct {
	addr   hostarch.Addr
	access hostarch.AccessType
}

// slices returns physical memory backing [addr, addr+n) split at page
// boundaries. Nothing is returned unless every page allows at from user mode.
func (c *interpContext) slices(pt *pagetables.PageTables, addr hostarch.Addr, n int, at hostarch.AccessType) ([][]byte, *fault) {
	var out [][]byte
	for n > 0 {
		pa, opts, ok := pt.Lookup(addr)
		if !ok || !opts.User || !opts.AccessType.SupersetOf(at) {
			return nil, &fault{addr: addr, access: at}
		}
		chunk := int(hostarch.PageSize - addr.PageOffset())
		if chunk > n {
			chunk = n
		}
		b, ok := c.p.file.Bytes(pa, chunk)
		if !ok {
			return nil, &fault{addr: addr, access: at}
		}
		out = append(out, b)
		addr += hostarch.Addr(chunk)
		n -= chunk
	}
	return out, nil
}

func (c *interpContext) load(pt *pagetables.PageTables, addr hostarch.Addr, dst []byte, at hostarch.AccessType) *fault {
	ss, f := c.slices(pt, addr, len(dst), at)
	if f != nil {
		return f
	}
	n := 0
	for _, s := range ss {
		n += copy(dst[n:], s)
	}
	return nil
}

func (c *interpContext) store(pt *pagetables.PageTables, addr hostarch.Addr, src []byte) *fault {
	ss, f := c.slices(pt, addr, len(src), hostarch.Write)
	if f != nil {
		return f
	}
	n := 0
	for _, s := range ss {
		n += copy(s, src[n:])
	}
	return nil
}

// Switch implements platform.Context.Switch.
func (c *interpContext) Switch(ctx context.Context, token uint64, tc *arch.TrapContext) (platform.Trap, error) {
	pt := pagetables.FromToken(c.p.file, token)
	regs := &tc.Regs
	set := func(rd uint8, v uint64) {
		if rd != 0 {
			regs[rd] = v
		}
	}

	steps := 0
	for {
		if steps%interruptCheckInterval == 0 && ctx.Err() != nil {
			return platform.Trap{Steps: steps}, platform.ErrContextInterrupt
		}
		if c.p.timeSlice > 0 && steps >= c.p.timeSlice {
			return platform.Trap{Kind: platform.TrapTimer, Steps: steps}, nil
		}

		pc := hostarch.Addr(tc.Sepc)
		if pc%InstSize != 0 {
			return platform.Trap{Kind: platform.TrapIllegalInstruction, Addr: pc, Steps: steps}, nil
		}
		var raw [InstSize]byte
		if f := c.load(pt, pc, raw[:], hostarch.Execute); f != nil {
			return platform.Trap{Kind: platform.TrapPageFault, Addr: f.addr, Access: f.access, Steps: steps}, nil
		}
		inst, ok := Decode(raw[:])
		if !ok {
			return platform.Trap{Kind: platform.TrapIllegalInstruction, Addr: pc, Steps: steps}, nil
		}

		next := tc.Sepc + InstSize
		rs1, rs2 := regs[inst.Rs1], regs[inst.Rs2]
		imm := uint64(int64(inst.Imm))
		switch inst.Op {
		case OpNop:
		case OpLi:
			set(inst.Rd, imm)
		case OpAddi:
			set(inst.Rd, rs1+imm)
		case OpAdd:
			set(inst.Rd, rs1+rs2)
		case OpSub:
			set(inst.Rd, rs1-rs2)
		case OpLd, OpLb:
			size := 8
			if inst.Op == OpLb {
				size = 1
			}
			var b [8]byte
			if f := c.load(pt, hostarch.Addr(rs1+imm), b[:size], hostarch.Read); f != nil {
				return platform.Trap{Kind: platform.TrapPageFault, Addr: f.addr, Access: f.access, Steps: steps}, nil
			}
			if inst.Op == OpLb {
				set(inst.Rd, uint64(int64(int8(b[0]))))
			} else {
				set(inst.Rd, hostarch.ByteOrder.Uint64(b[:]))
			}
		case OpSd, OpSb:
			var b [8]byte
			hostarch.ByteOrder.PutUint64(b[:], rs2)
			size := 8
			if inst.Op == OpSb {
				size = 1
			}
			if f := c.store(pt, hostarch.Addr(rs1+imm), b[:size]); f != nil {
				return platform.Trap{Kind: platform.TrapPageFault, Addr: f.addr, Access: f.access, Steps: steps}, nil
			}
		case OpBeq, OpBne, OpBlt:
			var taken bool
			switch inst.Op {
			case OpBeq:
				taken = rs1 == rs2
			case OpBne:
				taken = rs1 != rs2
			case OpBlt:
				taken = int64(rs1) < int64(rs2)
			}
			if taken {
				next = tc.Sepc + imm
			}
		case OpJal:
			set(inst.Rd, next)
			next = tc.Sepc + imm
		case OpJalr:
			target := rs1 + imm
			set(inst.Rd, next)
			next = target
		case OpEcall:
			// The kernel advances sepc past the ecall.
			return platform.Trap{Kind: platform.TrapSyscall, Steps: steps + 1}, nil
		}
		tc.Sepc = next
		steps++
	}
}
