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
	"math"

	"github.com/rv8sim/rv8sim/internal/mmu"
	"github.com/rv8sim/rv8sim/internal/trap"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// effAddr computes rs1 + sign-extended imm as a guest virtual address,
// truncated to the guest's native width.
func effAddr[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) UX {
	return UX(h.Proc.Reg(int(in.rs1)) + signExtend(in.imm, 11))
}

// RV32I Base Instruction Set

func lui[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(in.imm, 31))
	return flags{}
}

func auipc[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(in.imm+uint64(h.Proc.PC), 31))
	return flags{}
}

func jal[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(h.Proc.PC)+uint64(in.size))
	h.Proc.PC = UX(signExtend(in.imm, 19) + uint64(h.Proc.PC))
	return flags{updatedPC: true}
}

func jalr[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(h.Proc.PC)+uint64(in.size))
	h.Proc.PC = UX((signExtend(in.imm, 12) + h.Proc.Reg(int(in.rs1))) &^ 0x1)
	return flags{updatedPC: true}
}

func branch[UX xlen.UX](h *Hart[UX], in *Instruction[UX], take bool) flags {
	if take {
		h.Proc.PC = UX(signExtend(in.imm, 12) + uint64(h.Proc.PC))
		return flags{updatedPC: true}
	}
	return flags{}
}

func beq[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, h.Proc.Reg(int(in.rs1)) == h.Proc.Reg(int(in.rs2)))
}
func bne[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, h.Proc.Reg(int(in.rs1)) != h.Proc.Reg(int(in.rs2)))
}
func blt[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, int64(h.Proc.Reg(int(in.rs1))) < int64(h.Proc.Reg(int(in.rs2))))
}
func bge[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, int64(h.Proc.Reg(int(in.rs1))) >= int64(h.Proc.Reg(int(in.rs2))))
}
func bltu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, h.Proc.Reg(int(in.rs1)) < h.Proc.Reg(int(in.rs2)))
}
func bgeu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	return branch(h, in, h.Proc.Reg(int(in.rs1)) >= h.Proc.Reg(int(in.rs2)))
}

func lb[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint8](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), signExtend(uint64(v), 7))
	return flags{}
}

func lh[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint16](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), signExtend(uint64(v), 15))
	return flags{}
}

func lw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint32](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), signExtend(uint64(v), 31))
	return flags{}
}

func lbu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint8](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), uint64(v))
	return flags{}
}

func lhu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint16](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), uint64(v))
	return flags{}
}

func lwu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint32](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), uint64(v))
	return flags{}
}

func ld[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := mmu.Load[UX, uint64](h.MMU, h.Proc, effAddr(h, in))
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func sb[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	mmu.Store[UX, uint8](h.MMU, h.Proc, effAddr(h, in), uint8(h.Proc.Reg(int(in.rs2))))
	return flags{}
}

func sh[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	mmu.Store[UX, uint16](h.MMU, h.Proc, effAddr(h, in), uint16(h.Proc.Reg(int(in.rs2))))
	return flags{}
}

func sw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	mmu.Store[UX, uint32](h.MMU, h.Proc, effAddr(h, in), uint32(h.Proc.Reg(int(in.rs2))))
	return flags{}
}

func sd[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	mmu.Store[UX, uint64](h.MMU, h.Proc, effAddr(h, in), h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func addi[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))+int64(signExtend(in.imm&0xfff, 11))))
	return flags{}
}

func slti[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), boolU64(int64(h.Proc.Reg(int(in.rs1))) < int64(signExtend(in.imm, 11))))
	return flags{}
}

func sltiu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), boolU64(h.Proc.Reg(int(in.rs1)) < in.imm))
	return flags{}
}

func xori[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))^signExtend(in.imm, 11))
	return flags{}
}

func ori[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))|signExtend(in.imm, 11))
	return flags{}
}

func andi[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))&signExtend(in.imm, 11))
	return flags{}
}

func add[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))+h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func sub[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))-h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func sll[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))<<(h.Proc.Reg(int(in.rs2))&0x3f))
	return flags{}
}

func slt[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), boolU64(int64(h.Proc.Reg(int(in.rs1))) < int64(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func sltu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), boolU64(h.Proc.Reg(int(in.rs1)) < h.Proc.Reg(int(in.rs2))))
	return flags{}
}

func xor[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))^h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func srl[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))>>(h.Proc.Reg(int(in.rs2))&0x3f))
	return flags{}
}

func sra[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))>>(h.Proc.Reg(int(in.rs2))&0x3f)))
	return flags{}
}

func or[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))|h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func and[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))&h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func fence[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	// Single hart, sequential dispatch: FENCE is a no-op.
	return flags{}
}

func fenceI[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	// No icache to invalidate: FENCE.I is a no-op.
	return flags{}
}

func ecallOrBreak[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	pc := uint64(h.Proc.PC)
	switch in.imm >> 12 {
	case 0:
		cause := trap.EcallFromU
		switch h.Proc.Mode {
		case 1: // S
			cause = trap.EcallFromS
		case 2: // M
			cause = trap.EcallFromM
		}
		trap.Raise(cause, pc, pc)
	case 1:
		trap.Raise(trap.Ebreak, pc, pc)
	}
	panic("unreachable")
}

// CSR semantics are deliberately left coarse: every CSR is a plain
// read/write register slot except RDINSTRET's self-counting behaviour.

func csrrw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if in.rd == 0 {
		h.Proc.CSR[in.imm] = h.Proc.Reg(int(in.rs1))
		if in.imm == csrRDINSTRET {
			return flags{updatedRDINSTRET: true}
		}
		return flags{}
	}
	v := h.Proc.CSR[in.imm]
	h.Proc.CSR[in.imm] = h.Proc.Reg(int(in.rs1))
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func csrrs[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := h.Proc.CSR[in.imm]
	if in.rs1 != 0 {
		h.Proc.CSR[in.imm] |= h.Proc.Reg(int(in.rs1))
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func csrrc[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	v := h.Proc.CSR[in.imm]
	if in.rs1 != 0 {
		h.Proc.CSR[in.imm] &^= h.Proc.Reg(int(in.rs1))
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func csrrwi[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	uimm := signExtend(in.rs1&0x1f, 4)
	if in.rd == 0 {
		h.Proc.CSR[in.imm] = uimm
		return flags{}
	}
	v := h.Proc.CSR[in.imm]
	h.Proc.CSR[in.imm] = uimm
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func csrrsi[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	uimm := signExtend(in.rs1&0x1f, 4)
	v := h.Proc.CSR[in.imm]
	if uimm != 0 {
		h.Proc.CSR[in.imm] |= uimm
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func csrrci[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	uimm := signExtend(in.rs1&0x1f, 4)
	v := h.Proc.CSR[in.imm]
	if uimm != 0 {
		h.Proc.CSR[in.imm] &^= uimm
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

// RV64I Base Instruction Set (in addition to RV32I)

func slli[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))<<(in.imm&0x3f))
	return flags{}
}

func shiftRight[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	switch in.imm & 0xFC00 {
	case 0x00:
		return srli(h, in)
	case 0x10:
		return srai(h, in)
	default:
		trap.Raise(trap.IllegalInstruction, uint64(h.Proc.PC), uint64(h.Proc.PC))
		panic("unreachable")
	}
}

func srli[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))>>(in.imm&0x3f))
	return flags{}
}

func srai[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))>>(in.imm&0x3f)))
	return flags{}
}

func addiw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))+int32(signExtend(in.imm&0xfff, 11))))
	return flags{}
}

func slliw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))<<(in.imm&0x1f)), 31))
	return flags{}
}

func srliw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))>>(in.imm&0x1f)), 31))
	return flags{}
}

func sraiw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))>>(in.imm&0x1f)))
	return flags{}
}

func addw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))+int32(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func subw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))-int32(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func sllw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))<<(uint32(h.Proc.Reg(int(in.rs2)))&0x1f)), 31))
	return flags{}
}

func srlw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))>>(uint32(h.Proc.Reg(int(in.rs2)))&0x1f)), 31))
	return flags{}
}

func sraw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))>>(uint32(h.Proc.Reg(int(in.rs2)))&0x1f)))
	return flags{}
}

// "M" Standard Extension for Integer Multiplication and Division

func mul[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))*int64(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func mulh[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	n1, n2 := int64(h.Proc.Reg(int(in.rs1))), int64(h.Proc.Reg(int(in.rs2)))
	var neg1, neg2 bool
	if n1 < 0 {
		neg1, n1 = true, -n1
	}
	if n2 < 0 {
		neg2, n2 = true, -n2
	}
	v := mulhu64(uint64(n1), uint64(n2))
	if neg1 != neg2 {
		// Negate the full 128-bit product: the high word is complemented,
		// plus a carry only when the low word is zero.
		v = ^v
		if uint64(n1)*uint64(n2) == 0 {
			v++
		}
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func mulhsu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	n1, n2 := int64(h.Proc.Reg(int(in.rs1))), h.Proc.Reg(int(in.rs2))
	var neg bool
	if n1 < 0 {
		neg, n1 = true, -n1
	}
	v := mulhu64(uint64(n1), n2)
	if neg {
		v = -v
	}
	h.Proc.SetReg(int(in.rd), v)
	return flags{}
}

func mulhu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), mulhu64(h.Proc.Reg(int(in.rs1)), h.Proc.Reg(int(in.rs2))))
	return flags{}
}

// mulhu64 computes the high 64 bits of an unsigned 64x64->128 multiply.
func mulhu64(a, b uint64) uint64 {
	ah, al := a>>32, a&0xffffffff
	bh, bl := b>>32, b&0xffffffff
	x := ah * bh
	y := ah * bl
	z := al * bh
	w := al * bl
	return x + y>>32 + z>>32 + (w>>32+y&0xffffffff+z&0xffffffff)>>32
}

func mulw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))*int32(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func div[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), math.MaxUint64)
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))/int64(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func divu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), math.MaxUint64)
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))/h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func divw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if int32(h.Proc.Reg(int(in.rs2))) == 0 {
		h.Proc.SetReg(int(in.rd), math.MaxUint64)
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), signExtend(uint64(int32(h.Proc.Reg(int(in.rs1)))/int32(h.Proc.Reg(int(in.rs2)))), 31))
	return flags{}
}

func divuw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if uint32(h.Proc.Reg(int(in.rs2))) == 0 {
		h.Proc.SetReg(int(in.rd), math.MaxUint64)
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))/uint32(h.Proc.Reg(int(in.rs2)))), 31))
	return flags{}
}

func rem[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1)))
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), uint64(int64(h.Proc.Reg(int(in.rs1)))%int64(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func remu[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1)))
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1))%h.Proc.Reg(int(in.rs2)))
	return flags{}
}

func remw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1)))
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), uint64(int32(h.Proc.Reg(int(in.rs1)))%int32(h.Proc.Reg(int(in.rs2)))))
	return flags{}
}

func remuw[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	if h.Proc.Reg(int(in.rs2)) == 0 {
		h.Proc.SetReg(int(in.rd), h.Proc.Reg(int(in.rs1)))
		return flags{}
	}
	h.Proc.SetReg(int(in.rd), signExtend(uint64(uint32(h.Proc.Reg(int(in.rs1)))%uint32(h.Proc.Reg(int(in.rs2)))), 31))
	return flags{}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
