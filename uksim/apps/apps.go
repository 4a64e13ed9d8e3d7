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

// Package apps holds the programs built into uksim. They are assembled for
// the flat image base and resolved by name from exec and spawn.
package apps

import (
	"sort"

	"gvisor.dev/ukernel/pkg/sentry/loader"
	"gvisor.dev/ukernel/pkg/sentry/platform/interp"
)

// Default is the program run as init when a workload does not name one.
const Default = "initproc"

var sources = map[string]string{
	"initproc": initproc,
	"hello":    hello,
	"forktest": forktest,
	"spin":     spin,
}

// Builtin returns a fresh table of the built-in programs.
func Builtin() loader.AppTable {
	t := make(loader.AppTable, len(sources))
	for name, src := range sources {
		t[name] = interp.MustAssemble(src, loader.FlatBase)
	}
	return t
}

// Source returns the assembly source of a built-in program.
func Source(name string) (string, bool) {
	src, ok := sources[name]
	return src, ok
}

// Names returns the names of the built-in programs, sorted.
func Names() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// initproc spawns the other programs, reaps them and exits with the number
// of children that failed.
const initproc = `
	li s0, 0
	la a0, hello
	call spawn
	la a0, forktest
	call spawn
	la a0, spin
	call spawn
	li s1, 3
	addi sp, sp, -8
wait:
	beq s1, zero, done
	sd zero, 0(sp)
	li a0, -1
	mv a1, sp
	li a7, 260
	ecall
	li t0, -2
	bne a0, t0, reaped
	li a7, 124
	ecall
	j wait
reaped:
	blt a0, zero, fail
	ld t1, 0(sp)
	beq t1, zero, ok
	addi s0, s0, 1
ok:
	addi s1, s1, -1
	j wait
done:
	mv a0, s0
	li a7, 93
	ecall
spawn:
	li a7, 400
	ecall
	blt a0, zero, fail
	ret
fail:
	li a0, 100
	li a7, 93
	ecall
hello:
	.asciz "hello"
forktest:
	.asciz "forktest"
spin:
	.asciz "spin"
`

const hello = `
	li a0, 1
	la a1, msg
	li a2, 13
	li a7, 64
	ecall
	li a0, 0
	li a7, 93
	ecall
msg:
	.asciz "hello, world\n"
`

// forktest forks four children that exit with 1 through 4 and checks that
// the exit codes it reaps add up.
const forktest = `
	li s0, 0
	li s1, 0
	addi sp, sp, -8
fork:
	li t0, 4
	beq s1, t0, wait
	addi s1, s1, 1
	li a7, 220
	ecall
	blt a0, zero, fail
	bne a0, zero, fork
	mv a0, s1
	li a7, 93
	ecall
wait:
	beq s1, zero, check
	sd zero, 0(sp)
	li a0, -1
	mv a1, sp
	li a7, 260
	ecall
	li t0, -2
	bne a0, t0, reaped
	li a7, 124
	ecall
	j wait
reaped:
	blt a0, zero, fail
	ld t1, 0(sp)
	add s0, s0, t1
	addi s1, s1, -1
	j wait
check:
	li t0, 10
	bne s0, t0, fail
	li a0, 0
	li a7, 93
	ecall
fail:
	li a0, 1
	li a7, 93
	ecall
`

// spin burns instructions so the timer preempts it.
const spin = `
	li t0, 20000
loop:
	addi t0, t0, -1
	bne t0, zero, loop
	li a0, 0
	li a7, 93
	ecall
`
