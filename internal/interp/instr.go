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

// Package interp is the decoded-instruction interpreter core: fetch via
// the MMU, decode into an operation descriptor, dispatch to a per-opcode
// semantic handler, and drive the run loop's trap dispatch. Memory
// accesses route through the MMU instead of a flat byte slice.
package interp

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Instruction is a decoded operation descriptor: an opcode (as the handler
// function to dispatch to) plus its operand fields.
type Instruction[UX xlen.UX] struct {
	fn           func(*Hart[UX], *Instruction[UX]) flags
	rs1, rs2, rd uint64 // register indices
	imm          uint64 // decoded immediate; unextended from decode32, some compressed forms store it sign-extended
	in           uint64 // raw encoded instruction, kept for tracing
	size         int    // 2 (compressed) or 4 bytes
}

// flags are returned by a handler to tell the run loop what it already
// updated, so the loop doesn't double-apply the default PC/RDINSTRET
// advance.
type flags struct {
	updatedPC        bool
	updatedRDINSTRET bool
}

func (in *Instruction[UX]) String() string {
	name := "?"
	if in.fn != nil {
		name = strings.TrimPrefix(runtime.FuncForPC(reflect.ValueOf(in.fn).Pointer()).Name(), "github.com/rv8sim/rv8sim/internal/interp.")
	}
	return fmt.Sprintf("[ instruction %#x rs1=%#x rs2=%#x rd=%#x imm=%d(%#x) func=%s ]",
		in.in, in.rs1, in.rs2, in.rd, int64(in.imm), in.imm, name)
}

// RegNames maps register numbers to their ABI names (riscv-spec-v2.2;
// Table 20.1; Page 109).
var RegNames = [32]string{
	0: "zero", 1: "ra", 2: "sp", 3: "gp", 4: "tp",
	5: "t0", 6: "t1", 7: "t2",
	8: "s0", 9: "s1",
	10: "a0", 11: "a1", 12: "a2", 13: "a3", 14: "a4", 15: "a5", 16: "a6", 17: "a7",
	18: "s2", 19: "s3", 20: "s4", 21: "s5", 22: "s6", 23: "s7", 24: "s8", 25: "s9", 26: "s10", 27: "s11",
	28: "t3", 29: "t4", 30: "t5", 31: "t6",
}

var regNums = map[string]int{}

func init() {
	for reg, name := range RegNames {
		regNums[name] = reg
	}
}

const (
	regSP = 2
	regRA = 1
	regZero = 0
)

const (
	csrRDCYCLE   = 1
	csrRDTIME    = 2
	csrRDINSTRET = 3
)
