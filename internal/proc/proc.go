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

// Package proc holds the parts of processor state the MMU and run loop
// touch: privilege mode, the paging scheme selector,
// translation tags, the program counter, architectural registers, the
// most recent faulting address, and the logging/tracing controls.
//
// Two concrete widths are supported: RV32 and RV64 both use
// this same generic Proc, instantiated over uint32 and uint64
// respectively, rather than a combinatorial explosion of XLEN x extension
// types. The integer register file itself stays 64 bits wide regardless of
// XLEN; only the explicit word-width opcodes (addw/subw/sllw/...) narrow a
// result to 32 bits, matching real RV64 semantics.
package proc

import "github.com/rv8sim/rv8sim/internal/xlen"

// Mode is the current privilege level.
type Mode uint8

const (
	ModeU Mode = iota
	ModeS
	ModeM
)

func (m Mode) String() string {
	switch m {
	case ModeU:
		return "U"
	case ModeS:
		return "S"
	case ModeM:
		return "M"
	default:
		return "?"
	}
}

// Scheme is the address-translation scheme selected by mstatus.vm.
type Scheme uint8

const (
	Mbare Scheme = iota
	Sv32
	Sv39
	Sv48
)

// LogMask controls which optional tracing the run loop emits, mirroring
// the CLI's logging flags.
type LogMask uint32

const (
	LogInstructions LogMask = 1 << iota
	LogOperands
	LogMemoryMap
	LogRegisters
	LogExitStats
)

// RegCount is the number of integer (and, separately, floating point)
// architectural registers.
const RegCount = 32

// Proc is the RISC-V hart state visible to the MMU and interpreter,
// generic over the guest's native word width UX.
type Proc[UX xlen.UX] struct {
	Mode  Mode
	Mprv  bool   // mstatus.mprv: modify-privilege (loads/stores use Mode, not the effective mode)
	VM    Scheme // mstatus.vm: selects the paging scheme
	PDID  uint32 // protection-domain id, the TLB's asid-like tag
	SPTBR UX     // supervisor page-table base register (holds the root ppn)

	PC   UX
	Regs [RegCount]uint64
	CSR  [1 << 12]uint64

	BadAddr UX // most recent faulting virtual address

	Log   LogMask
	Steps uint64
}

// New returns a Proc with PC set to entry and all other state zeroed.
func New[UX xlen.UX](entry UX) *Proc[UX] {
	return &Proc[UX]{PC: entry, Mode: ModeU}
}

// EffectiveTranslationEnabled reports whether addresses issued in the
// current mode must go through the MMU's paging path: disabled only in M-mode with mprv clear.
func (p *Proc[UX]) EffectiveTranslationEnabled() bool {
	return !(p.Mode == ModeM && !p.Mprv)
}

// Reg returns architectural register i, or 0 for register 0 (hard-wired
// zero).
func (p *Proc[UX]) Reg(i int) uint64 {
	if i == 0 {
		return 0
	}
	return p.Regs[i]
}

// SetReg writes architectural register i; writes to register 0 are
// discarded.
func (p *Proc[UX]) SetReg(i int, v uint64) {
	if i == 0 {
		return
	}
	p.Regs[i] = v
}
