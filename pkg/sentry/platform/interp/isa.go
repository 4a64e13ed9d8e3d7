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

package interp

import (
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// InstSize is the size of an encoded instruction. Instructions are aligned to
// it.
const InstSize = 8

// Op is an instruction opcode. The zero opcode is illegal so that executing
// zeroed memory traps.
type Op uint8

// Opcodes.
const (
	OpIllegal Op = iota
	OpNop
	OpLi
	OpAddi
	OpAdd
	OpSub
	OpLd
	OpSd
	OpLb
	OpSb
	OpBeq
	OpBne
	OpBlt
	OpJal
	OpJalr
	OpEcall

	numOps
)

var opNames = [numOps]string{
	OpIllegal: "illegal",
	OpNop:     "nop",
	OpLi:      "li",
	OpAddi:    "addi",
	OpAdd:     "add",
	OpSub:     "sub",
	OpLd:      "ld",
	OpSd:      "sd",
	OpLb:      "lb",
	OpSb:      "sb",
	OpBeq:     "beq",
	OpBne:     "bne",
	OpBlt:     "blt",
	OpJal:     "jal",
	OpJalr:    "jalr",
	OpEcall:   "ecall",
}

// String implements fmt.Stringer.String.
func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Inst is a decoded instruction.
//
// Encoding, little-endian: byte 0 is the opcode, bytes 1..3 are rd, rs1 and
// rs2, bytes 4..7 are the signed immediate. Branch and jal immediates are
// byte offsets from the instruction's own address.
type Inst struct {
	Op  Op
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Imm int32
}

// Encode writes i to dst, which must hold InstSize bytes.
func (i Inst) Encode(dst []byte) {
	dst[0] = byte(i.Op)
	dst[1] = i.Rd
	dst[2] = i.Rs1
	dst[3] = i.Rs2
	hostarch.ByteOrder.PutUint32(dst[4:], uint32(i.Imm))
}

// Decode decodes the instruction at the start of src. It returns false if
// src does not hold a legal instruction.
func Decode(src []byte) (Inst, bool) {
	if len(src) < InstSize {
		return Inst{}, false
	}
	i := Inst{
		Op:  Op(src[0]),
		Rd:  src[1],
		Rs1: src[2],
		Rs2: src[3],
		Imm: int32(hostarch.ByteOrder.Uint32(src[4:])),
	}
	if i.Op == OpIllegal || i.Op >= numOps || i.Rd >= numRegs || i.Rs1 >= numRegs || i.Rs2 >= numRegs {
		return Inst{}, false
	}
	return i, true
}

// String implements fmt.Stringer.String.
func (i Inst) String() string {
	r := func(n uint8) string { return regNames[n] }
	switch i.Op {
	case OpNop, OpEcall:
		return i.Op.String()
	case OpLi:
		return fmt.Sprintf("li %s, %d", r(i.Rd), i.Imm)
	case OpAddi:
		return fmt.Sprintf("addi %s, %s, %d", r(i.Rd), r(i.Rs1), i.Imm)
	case OpAdd, OpSub:
		return fmt.Sprintf("%v %s, %s, %s", i.Op, r(i.Rd), r(i.Rs1), r(i.Rs2))
	case OpLd, OpLb, OpJalr:
		return fmt.Sprintf("%v %s, %d(%s)", i.Op, r(i.Rd), i.Imm, r(i.Rs1))
	case OpSd, OpSb:
		return fmt.Sprintf("%v %s, %d(%s)", i.Op, r(i.Rs2), i.Imm, r(i.Rs1))
	case OpBeq, OpBne, OpBlt:
		return fmt.Sprintf("%v %s, %s, %+d", i.Op, r(i.Rs1), r(i.Rs2), i.Imm)
	case OpJal:
		return fmt.Sprintf("jal %s, %+d", r(i.Rd), i.Imm)
	default:
		return i.Op.String()
	}
}

const numRegs = 32

// regNames are the ABI names of the registers.
var regNames = [numRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// regNumbers maps ABI names and xN names to register numbers.
var regNumbers = func() map[string]uint8 {
	m := make(map[string]uint8, 2*numRegs+1)
	for i, name := range regNames {
		m[name] = uint8(i)
		m[fmt.Sprintf("x%d", i)] = uint8(i)
	}
	m["fp"] = 8
	return m
}()
