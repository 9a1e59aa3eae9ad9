// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interp

import (
	"testing"

	"github.com/rv8sim/rv8sim/internal/proc"
)

type aluTest struct {
	desc      string
	fn        func(*Hart[uint64], *Instruction[uint64]) flags
	a, b, imm uint64
	pc        uint64
	want      uint64
}

func u64(n int64) uint64 { return uint64(n) }

func (t *aluTest) run() uint64 {
	p := proc.New[uint64](t.pc)
	p.Regs[0xB] = t.a
	if t.b != 0 {
		p.Regs[0xC] = t.b
	}
	h := &Hart[uint64]{Proc: p}
	in := &Instruction[uint64]{fn: t.fn, rd: 0xA, rs1: 0xB, imm: t.imm}
	if t.b != 0 {
		in.rs2 = 0xC
	}
	t.fn(h, in)
	return p.Reg(0xA)
}

func TestM(t *testing.T) {
	tests := []aluTest{
		{desc: "mul", fn: mul[uint64], a: u64(2), b: u64(3), want: u64(6)},
		{desc: "mul neg", fn: mul[uint64], a: u64(2), b: u64(-1), want: u64(-2)},
		{desc: "mul overflow", fn: mul[uint64], a: u64(0x57acca70cafebabe), b: u64(0x57edfa57f005ba11), want: u64(0x42e72d98544e729e)},

		{desc: "mulh small", fn: mulh[uint64], a: u64(2), b: u64(3), want: u64(0)},
		{desc: "mulh", fn: mulh[uint64], a: u64(3), b: u64(0x7fffffffffffffff), want: u64(1)},
		{desc: "mulh neg", fn: mulh[uint64], a: u64(-3), b: u64(0x7fffffffffffffff), want: u64(-2)},

		{desc: "mulhu", fn: mulhu[uint64], a: u64(-1), b: u64(-1), want: u64(-2)},

		{desc: "div", fn: div[uint64], a: u64(10), b: u64(3), want: u64(3)},
		{desc: "div by zero", fn: div[uint64], a: u64(10), b: 0, want: ^uint64(0)},
		{desc: "divu", fn: divu[uint64], a: u64(10), b: u64(3), want: u64(3)},

		{desc: "rem", fn: rem[uint64], a: u64(10), b: u64(3), want: u64(1)},
		{desc: "rem by zero", fn: rem[uint64], a: u64(10), b: 0, want: u64(10)},
		{desc: "remu", fn: remu[uint64], a: u64(10), b: u64(3), want: u64(1)},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			if got := tc.run(); got != tc.want {
				t.Errorf("%s: got %#x, want %#x", tc.desc, got, tc.want)
			}
		})
	}
}

func TestALU(t *testing.T) {
	tests := []aluTest{
		{desc: "add", fn: add[uint64], a: 2, b: 3, want: 5},
		{desc: "sub", fn: sub[uint64], a: 5, b: 3, want: 2},
		{desc: "and", fn: and[uint64], a: 0xFF, b: 0x0F, want: 0x0F},
		{desc: "or", fn: or[uint64], a: 0xF0, b: 0x0F, want: 0xFF},
		{desc: "xor", fn: xor[uint64], a: 0xFF, b: 0x0F, want: 0xF0},
		{desc: "sll", fn: sll[uint64], a: 1, b: 4, want: 0x10},
		{desc: "srl", fn: srl[uint64], a: 0x10, b: 4, want: 1},
		{desc: "sra neg", fn: sra[uint64], a: u64(-16), b: 2, want: u64(-4)},
		{desc: "slt true", fn: slt[uint64], a: u64(-1), b: 1, want: 1},
		{desc: "slt false", fn: slt[uint64], a: 1, b: u64(-1), want: 0},
		{desc: "sltu", fn: sltu[uint64], a: 1, b: 2, want: 1},

		{desc: "addi", fn: addi[uint64], a: 2, imm: 3, want: 5},
		{desc: "addi neg", fn: addi[uint64], a: 2, imm: signExtend(0xFFF, 11), want: 1},
		{desc: "andi", fn: andi[uint64], a: 0xFF, imm: 0x0F, want: 0x0F},
		{desc: "ori", fn: ori[uint64], a: 0xF0, imm: 0x0F, want: 0xFF},
		{desc: "xori", fn: xori[uint64], a: 0xFF, imm: 0x0F, want: 0xF0},
		{desc: "slli", fn: slli[uint64], a: 1, imm: 4, want: 0x10},
		{desc: "srli", fn: srli[uint64], a: 0x10, imm: 4, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			if got := tc.run(); got != tc.want {
				t.Errorf("%s: got %#x, want %#x", tc.desc, got, tc.want)
			}
		})
	}
}

func TestBranchesAndJumps(t *testing.T) {
	p := proc.New[uint64](0x1000)
	p.Regs[0xB] = 5
	p.Regs[0xC] = 5
	h := &Hart[uint64]{Proc: p}
	in := &Instruction[uint64]{fn: beq[uint64], rs1: 0xB, rs2: 0xC, imm: 0x20}
	fl := beq(h, in)
	if !fl.updatedPC {
		t.Fatalf("beq with equal operands: updatedPC = false, want true")
	}
	if p.PC != 0x1020 {
		t.Fatalf("beq target: got %#x, want %#x", p.PC, 0x1020)
	}

	p2 := proc.New[uint64](0x2000)
	h2 := &Hart[uint64]{Proc: p2}
	in2 := &Instruction[uint64]{fn: jal[uint64], rd: 1, imm: 0x10, size: 4}
	jal(h2, in2)
	if p2.PC != 0x2010 {
		t.Fatalf("jal target: got %#x, want %#x", p2.PC, 0x2010)
	}
	if p2.Reg(1) != 0x2004 {
		t.Fatalf("jal link register: got %#x, want %#x", p2.Reg(1), 0x2004)
	}
}
