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
	"reflect"
	"runtime"
	"testing"

	"github.com/rv8sim/rv8sim/internal/proc"
)

func fnName(fn interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
}

// TestDecode32 checks the decoded fields and, by running the decoded
// handler, which opcode it dispatched to. Handler identity is checked by
// effect rather than by function name: a generic instantiation such as
// addi[uint64] used as a func value is a compiler-generated wrapper whose
// name differs at every place it is taken.
func TestDecode32(t *testing.T) {
	table := buildRVITable[uint64]()

	// addi x1, x0, 5
	in, err := decode32[uint64](table, 0x00500093)
	if err != nil {
		t.Fatalf("decode addi: %v", err)
	}
	if in.rd != 1 || in.rs1 != 0 || in.imm != 5 {
		t.Errorf("addi fields: rd=%d rs1=%d imm=%d, want rd=1 rs1=0 imm=5", in.rd, in.rs1, in.imm)
	}
	h := &Hart[uint64]{Proc: proc.New[uint64](0)}
	in.fn(h, in)
	if h.Proc.Reg(1) != 5 {
		t.Errorf("addi decoded to %s (x1=%d after executing), want addi (x1=5)", fnName(in.fn), h.Proc.Reg(1))
	}

	// beq x1, x2, 8
	in, err = decode32[uint64](table, 0x00208463)
	if err != nil {
		t.Fatalf("decode beq: %v", err)
	}
	if in.rs1 != 1 || in.rs2 != 2 || in.imm != 8 {
		t.Errorf("beq fields: rs1=%d rs2=%d imm=%d, want rs1=1 rs2=2 imm=8", in.rs1, in.rs2, in.imm)
	}
	h = &Hart[uint64]{Proc: proc.New[uint64](0x100)}
	h.Proc.Regs[1], h.Proc.Regs[2] = 7, 7
	in.fn(h, in)
	if h.Proc.PC != 0x108 {
		t.Errorf("beq decoded to %s (pc=%#x after executing with x1==x2), want beq (pc=0x108)", fnName(in.fn), h.Proc.PC)
	}

	// lui x5, 0x12345
	in, err = decode32[uint64](table, 0x123452b7)
	if err != nil {
		t.Fatalf("decode lui: %v", err)
	}
	if in.rd != 5 || in.imm != 0x12345000 {
		t.Errorf("lui fields: rd=%d imm=%#x, want rd=5 imm=%#x", in.rd, in.imm, 0x12345000)
	}
	h = &Hart[uint64]{Proc: proc.New[uint64](0)}
	in.fn(h, in)
	if h.Proc.Reg(5) != 0x12345000 {
		t.Errorf("lui decoded to %s (x5=%#x after executing), want lui (x5=0x12345000)", fnName(in.fn), h.Proc.Reg(5))
	}
}

func TestDecode32Unrecognized(t *testing.T) {
	table := buildRVITable[uint64]()
	if _, err := decode32[uint64](table, 0xFFFFFFFF); err == nil {
		t.Errorf("decode32(0xFFFFFFFF): got nil error, want error for unrecognized format")
	}
}
