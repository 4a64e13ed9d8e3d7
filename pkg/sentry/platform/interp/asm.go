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
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gvisor.dev/ukernel/pkg/hostarch"
)

// Assemble translates assembly source into a flat image to be loaded at
// base.
//
// Each line holds an optional "label:" followed by an optional statement.
// Comments start with '#'. Statements are the instructions of the ISA by
// mnemonic, the pseudo-instructions
//
//	la rd, label     li rd, label
//	mv rd, rs        addi rd, rs, 0
//	j label          jal zero, label
//	call label       jal ra, label
//	ret              jalr zero, 0(ra)
//
// and the directives .asciz "string", .space n and .dword value. Every
// instruction is aligned to InstSize; padding is zero.
func Assemble(src string, base hostarch.Addr) ([]byte, error) {
	stmts, err := parse(src)
	if err != nil {
		return nil, err
	}

	// Pass one: addresses.
	labels := make(map[string]hostarch.Addr)
	pc := base
	for _, s := range stmts {
		if s.isInst() {
			pc = alignInst(pc)
		}
		for _, l := range s.labels {
			if _, ok := labels[l]; ok {
				return nil, fmt.Errorf("line %d: label %q redefined", s.line, l)
			}
			labels[l] = pc
		}
		n, err := s.size()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		pc += hostarch.Addr(n)
	}

	// Pass two: encoding.
	var out bytes.Buffer
	pc = base
	for _, s := range stmts {
		if s.isInst() {
			aligned := alignInst(pc)
			out.Write(make([]byte, aligned-pc))
			pc = aligned
		}
		b, err := s.encode(pc, labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		out.Write(b)
		pc += hostarch.Addr(len(b))
	}
	return out.Bytes(), nil
}

// MustAssemble is like Assemble but panics on error. It is intended for
// programs built into binaries and tests.
func MustAssemble(src string, base hostarch.Addr) []byte {
	b, err := Assemble(src, base)
	if err != nil {
		panic(fmt.Sprintf("assembling program: %v", err))
	}
	return b
}

func alignInst(pc hostarch.Addr) hostarch.Addr {
	return (pc + InstSize - 1) &^ (InstSize - 1)
}

// stmt is one parsed source statement.
type stmt struct {
	line     int
	labels   []string
	mnemonic string
	args     []string
}

func (s *stmt) isInst() bool {
	return s.mnemonic != "" && !strings.HasPrefix(s.mnemonic, ".")
}

// parse splits src into statements. Labels on lines without a statement are
// attached to the next statement.
func parse(src string) ([]*stmt, error) {
	var stmts []*stmt
	var pending []string
	for i, line := range strings.Split(src, "\n") {
		lineno := i + 1
		line = strings.TrimSpace(stripComment(line))
		for {
			colon := strings.Index(line, ":")
			if colon < 0 || strings.ContainsAny(line[:colon], " \t\",") {
				break
			}
			label := line[:colon]
			if !isIdent(label) {
				return nil, fmt.Errorf("line %d: bad label %q", lineno, label)
			}
			pending = append(pending, label)
			line = strings.TrimSpace(line[colon+1:])
		}
		if line == "" {
			continue
		}
		s := &stmt{line: lineno, labels: pending}
		pending = nil
		if f := strings.IndexAny(line, " \t"); f >= 0 {
			s.mnemonic = line[:f]
			rest := strings.TrimSpace(line[f:])
			if s.mnemonic == ".asciz" {
				s.args = []string{rest}
			} else {
				for _, a := range strings.Split(rest, ",") {
					s.args = append(s.args, strings.TrimSpace(a))
				}
			}
		} else {
			s.mnemonic = line
		}
		s.mnemonic = strings.ToLower(s.mnemonic)
		stmts = append(stmts, s)
	}
	if len(pending) > 0 {
		// Trailing labels name the end of the image.
		stmts = append(stmts, &stmt{line: -1, labels: pending, mnemonic: ".space", args: []string{"0"}})
	}
	return stmts, nil
}

// stripComment removes a '#' comment that is not inside a string.
func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case '#':
			if !quoted {
				return line[:i]
			}
		}
	}
	return line
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (s *stmt) wantArgs(n int) error {
	if len(s.args) != n {
		return fmt.Errorf("%s takes %d operands, got %d", s.mnemonic, n, len(s.args))
	}
	return nil
}

// size returns the number of bytes s assembles to, excluding alignment.
func (s *stmt) size() (int, error) {
	switch s.mnemonic {
	case ".asciz":
		if err := s.wantArgs(1); err != nil {
			return 0, err
		}
		str, err := strconv.Unquote(s.args[0])
		if err != nil {
			return 0, fmt.Errorf("bad string %s: %w", s.args[0], err)
		}
		return len(str) + 1, nil
	case ".space":
		if err := s.wantArgs(1); err != nil {
			return 0, err
		}
		n, err := strconv.ParseUint(s.args[0], 0, 32)
		if err != nil {
			return 0, fmt.Errorf("bad size %q: %w", s.args[0], err)
		}
		return int(n), nil
	case ".dword":
		return 8, nil
	default:
		if strings.HasPrefix(s.mnemonic, ".") {
			return 0, fmt.Errorf("unknown directive %s", s.mnemonic)
		}
		return InstSize, nil
	}
}

func (s *stmt) encode(pc hostarch.Addr, labels map[string]hostarch.Addr) ([]byte, error) {
	switch s.mnemonic {
	case ".asciz":
		str, _ := strconv.Unquote(s.args[0])
		return append([]byte(str), 0), nil
	case ".space":
		n, _ := strconv.ParseUint(s.args[0], 0, 32)
		return make([]byte, n), nil
	case ".dword":
		if err := s.wantArgs(1); err != nil {
			return nil, err
		}
		v, err := value(s.args[0], labels)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		hostarch.ByteOrder.PutUint64(b, uint64(v))
		return b, nil
	}

	inst, err := s.inst(pc, labels)
	if err != nil {
		return nil, err
	}
	b := make([]byte, InstSize)
	inst.Encode(b)
	return b, nil
}

func (s *stmt) inst(pc hostarch.Addr, labels map[string]hostarch.Addr) (Inst, error) {
	args := s.args
	switch s.mnemonic {
	case "nop", "ecall":
		if err := s.wantArgs(0); err != nil {
			return Inst{}, err
		}
		op := OpNop
		if s.mnemonic == "ecall" {
			op = OpEcall
		}
		return Inst{Op: op}, nil

	case "ret":
		if err := s.wantArgs(0); err != nil {
			return Inst{}, err
		}
		return Inst{Op: OpJalr, Rs1: regNumbers["ra"]}, nil

	case "li", "la":
		if err := s.wantArgs(2); err != nil {
			return Inst{}, err
		}
		rd, err := reg(args[0])
		if err != nil {
			return Inst{}, err
		}
		imm, err := imm32(args[1], labels)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: OpLi, Rd: rd, Imm: imm}, nil

	case "mv":
		if err := s.wantArgs(2); err != nil {
			return Inst{}, err
		}
		rd, err := reg(args[0])
		if err != nil {
			return Inst{}, err
		}
		rs, err := reg(args[1])
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: OpAddi, Rd: rd, Rs1: rs}, nil

	case "addi":
		if err := s.wantArgs(3); err != nil {
			return Inst{}, err
		}
		rd, err := reg(args[0])
		if err != nil {
			return Inst{}, err
		}
		rs1, err := reg(args[1])
		if err != nil {
			return Inst{}, err
		}
		imm, err := imm32(args[2], labels)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: OpAddi, Rd: rd, Rs1: rs1, Imm: imm}, nil

	case "add", "sub":
		if err := s.wantArgs(3); err != nil {
			return Inst{}, err
		}
		var r [3]uint8
		for i := range r {
			var err error
			if r[i], err = reg(args[i]); err != nil {
				return Inst{}, err
			}
		}
		op := OpAdd
		if s.mnemonic == "sub" {
			op = OpSub
		}
		return Inst{Op: op, Rd: r[0], Rs1: r[1], Rs2: r[2]}, nil

	case "ld", "lb", "sd", "sb", "jalr":
		if err := s.wantArgs(2); err != nil {
			return Inst{}, err
		}
		r, err := reg(args[0])
		if err != nil {
			return Inst{}, err
		}
		off, base, err := memOperand(args[1], labels)
		if err != nil {
			return Inst{}, err
		}
		switch s.mnemonic {
		case "ld":
			return Inst{Op: OpLd, Rd: r, Rs1: base, Imm: off}, nil
		case "lb":
			return Inst{Op: OpLb, Rd: r, Rs1: base, Imm: off}, nil
		case "sd":
			return Inst{Op: OpSd, Rs2: r, Rs1: base, Imm: off}, nil
		case "sb":
			return Inst{Op: OpSb, Rs2: r, Rs1: base, Imm: off}, nil
		default:
			return Inst{Op: OpJalr, Rd: r, Rs1: base, Imm: off}, nil
		}

	case "beq", "bne", "blt":
		if err := s.wantArgs(3); err != nil {
			return Inst{}, err
		}
		rs1, err := reg(args[0])
		if err != nil {
			return Inst{}, err
		}
		rs2, err := reg(args[1])
		if err != nil {
			return Inst{}, err
		}
		off, err := relative(args[2], pc, labels)
		if err != nil {
			return Inst{}, err
		}
		op := map[string]Op{"beq": OpBeq, "bne": OpBne, "blt": OpBlt}[s.mnemonic]
		return Inst{Op: op, Rs1: rs1, Rs2: rs2, Imm: off}, nil

	case "jal", "j", "call":
		var (
			rd     uint8
			target string
		)
		switch s.mnemonic {
		case "jal":
			if err := s.wantArgs(2); err != nil {
				return Inst{}, err
			}
			var err error
			if rd, err = reg(args[0]); err != nil {
				return Inst{}, err
			}
			target = args[1]
		default:
			if err := s.wantArgs(1); err != nil {
				return Inst{}, err
			}
			if s.mnemonic == "call" {
				rd = regNumbers["ra"]
			}
			target = args[0]
		}
		off, err := relative(target, pc, labels)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: OpJal, Rd: rd, Imm: off}, nil
	}
	return Inst{}, fmt.Errorf("unknown instruction %q", s.mnemonic)
}

func reg(s string) (uint8, error) {
	r, ok := regNumbers[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return r, nil
}

// value evaluates a number or a label.
func value(s string, labels map[string]hostarch.Addr) (int64, error) {
	if a, ok := labels[s]; ok {
		return int64(a), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		if isIdent(s) {
			return 0, fmt.Errorf("undefined label %q", s)
		}
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	return v, nil
}

func imm32(s string, labels map[string]hostarch.Addr) (int32, error) {
	v, err := value(s, labels)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("immediate %s out of range", s)
	}
	return int32(v), nil
}

// relative returns the offset from pc to a label, or a literal offset.
func relative(s string, pc hostarch.Addr, labels map[string]hostarch.Addr) (int32, error) {
	if a, ok := labels[s]; ok {
		off := int64(a) - int64(pc)
		if off < math.MinInt32 || off > math.MaxInt32 {
			return 0, fmt.Errorf("branch to %s out of range", s)
		}
		return int32(off), nil
	}
	return imm32(s, labels)
}

// memOperand parses "imm(reg)".
func memOperand(s string, labels map[string]hostarch.Addr) (int32, uint8, error) {
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("bad memory operand %q", s)
	}
	base, err := reg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}
	off := int32(0)
	if open > 0 {
		if off, err = imm32(strings.TrimSpace(s[:open]), labels); err != nil {
			return 0, 0, err
		}
	}
	return off, base, nil
}
