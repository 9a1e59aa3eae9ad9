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
	"fmt"

	"github.com/rv8sim/rv8sim/internal/trap"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// buildRVCTable exists so NewHart can build both dispatch tables the same
// way; the compressed format's immediates are too irregular per-quadrant to
// fold into a flat key->handler map (unlike the 32-bit table), so
// decodeCompressed below does its own quadrant switch and ignores this map.
func buildRVCTable[UX xlen.UX]() map[uint64]opFunc[UX] {
	return nil
}

// decodeCompressed decodes a single compressed (RVC) instruction
// (riscv-spec-v2.2; Table 12.5; pages 82-83).
//
// TODO: add restrictions (e.g. rd != 0, etc).
func decodeCompressed[UX xlen.UX](_ map[uint64]opFunc[UX], in uint16) (*Instruction[UX], error) {
	if in == 0 {
		return nil, fmt.Errorf("illegal instruction %#x", in)
	}

	switch in>>11&0x1c | in&0x3 {
	case 0x00: // C.ADDI4SPN (RES, nzuimm=0)
		imm, r := decodeCIW(in)
		// bits: 54987623 -> 9876543200
		imm = imm&0xc0>>2 | imm&0x3c<<4 | imm&0x2<<1 | imm&0x1<<3
		return &Instruction[UX]{fn: addi[UX], rd: r, rs1: regSP, imm: imm}, nil
	case 0x04: // C.FLD (RV32/64); C.LQ (RV128)
		return nil, fmt.Errorf("C.FLD (the F standard extension) is not supported")
	case 0x08: // C.LW
		imm, r1, r2 := decodeCL(in)
		imm = (imm<<5 | imm) & 0x3e << 1 // 54326 -> 6543200
		return &Instruction[UX]{fn: lw[UX], rd: r2, rs1: r1, imm: imm}, nil
	case 0x0C: // C.FLW (RV32); C.LD (RV64/128)
		imm, r1, r2 := decodeCL(in)
		imm = (imm<<6 | imm<<1) & 0xf8
		return &Instruction[UX]{fn: ld[UX], rd: r2, rs1: r1, imm: imm}, nil
	case 0x10: // reserved
		return nil, fmt.Errorf("reserved compressed encoding %#x", in)
	case 0x14: // C.FSD (RV32/64); C.SQ (RV128)
		return nil, fmt.Errorf("C.FSD (the F standard extension) is not supported")
	case 0x18: // C.SW
		imm, r1, r2 := decodeCS(in)
		imm = (imm<<5 | imm) << 1 & 0x7c // 54326 -> 6543200
		return &Instruction[UX]{fn: sw[UX], rs2: r2, rs1: r1, imm: imm}, nil
	case 0x1C: // C.FSW (RV32); C.SD (RV64/128)
		imm, r1, r2 := decodeCS(in)
		imm = (imm<<5 | imm) << 1 & 0xf8 // 54376 -> 76543000
		return &Instruction[UX]{fn: sd[UX], rs2: r2, rs1: r1, imm: imm}, nil
	case 0x01: // C.NOP; C.ADDI (HINT, nzimm=0)
		imm, r := decodeCI(in)
		return &Instruction[UX]{fn: addi[UX], rd: r, rs1: r, imm: signExtend(imm, 5)}, nil
	case 0x05: // C.JAL (RV32); C.ADDIW (RV64/128; RES, rd=0)
		imm, r := decodeCI(in)
		imm = signExtend(imm, 5)
		return &Instruction[UX]{fn: addiw[UX], rd: r, rs1: r, imm: imm}, nil
	case 0x09: // C.LI (HINT, rd=0)
		imm, r := decodeCI(in)
		return &Instruction[UX]{fn: addi[UX], imm: signExtend(imm, 5), rd: r, rs1: regZero}, nil
	case 0x0D: // C.ADDI16SP (RES, nzimm=0); C.LUI (RES, nzimm=0; HINT, rd=0)
		imm, r := decodeCI(in)
		if r != regSP {
			return &Instruction[UX]{fn: lui[UX], rd: r, imm: signExtend(imm<<12, 17)}, nil
		}
		// bits: 946875 -> 9867540000
		imm = signExtend(imm&0x20<<4|imm&0x10|imm&0x8<<3|imm&0x6<<6|imm&0x1<<5, 9)
		return &Instruction[UX]{fn: addi[UX], rd: regSP, rs1: regSP, imm: imm}, nil
	case 0x11:
		switch in >> 10 & 0x3 {
		case 0x00: // C.SRLI
			imm, r := decodeShiftCB(in)
			return &Instruction[UX]{fn: srli[UX], rd: r, rs1: r, imm: imm}, nil
		case 0x01: // C.SRAI
			imm, r := decodeShiftCB(in)
			return &Instruction[UX]{fn: srai[UX], rd: r, rs1: r, imm: imm}, nil
		case 0x02: // C.ANDI
			imm, r := decodeShiftCB(in)
			return &Instruction[UX]{fn: andi[UX], rd: r, rs1: r, imm: imm}, nil
		}
		_, r1, r2 := decodeCS(in)
		switch (in >> 8 & 0x1c) | (in >> 5 & 0x3) {
		case 0xc: // C.SUB
			return &Instruction[UX]{fn: sub[UX], rd: r1, rs1: r1, rs2: r2}, nil
		case 0xd: // C.XOR
			return &Instruction[UX]{fn: xor[UX], rd: r1, rs1: r1, rs2: r2}, nil
		case 0xe: // C.OR
			return &Instruction[UX]{fn: or[UX], rd: r1, rs1: r1, rs2: r2}, nil
		case 0xf: // C.AND
			return &Instruction[UX]{fn: and[UX], rd: r1, rs1: r1, rs2: r2}, nil
		case 0x1c: // C.SUBW
			return &Instruction[UX]{fn: subw[UX], rd: r1, rs1: r1, rs2: r2}, nil
		case 0x1d: // C.ADDW
			return &Instruction[UX]{fn: addw[UX], rd: r1, rs1: r1, rs2: r2}, nil
		}
		return nil, fmt.Errorf("reserved compressed encoding %#x", in)
	case 0x15: // C.J
		imm := decodeCJ(in)
		// B498A673215 -> BA9876543210
		imm = signExtend(imm&0x200>>5|imm&0x40<<4|imm&0x5a0<<1|imm&0x10<<3|imm&0xe|imm&1<<5, 11)
		return &Instruction[UX]{fn: rvcJAL[UX], rd: regZero, imm: imm}, nil
	case 0x19: // C.BEQZ
		imm, r := decodeCB(in)
		imm = imm&0x80<<1 | imm&0x60>>2 | imm&0x18<<3 | imm&0x6 | imm&0x1<<5
		imm = signExtend(imm, 8)
		return &Instruction[UX]{fn: beq[UX], rs1: r, rs2: regZero, imm: imm}, nil
	case 0x1D: // C.BNEZ
		imm, r := decodeCB(in)
		imm = imm&0x80<<1 | imm&0x60>>2 | imm&0x18<<3 | imm&0x6 | imm&0x1<<5
		imm = signExtend(imm, 8)
		return &Instruction[UX]{fn: bne[UX], rs1: r, rs2: regZero, imm: imm}, nil
	case 0x02: // C.SLLI
		imm, r := decodeCI(in)
		return &Instruction[UX]{fn: slli[UX], rd: r, rs1: r, imm: imm}, nil
	case 0x06: // C.FLDSP (RV32/64); C.LQSP (RV128; RES, rd=0)
		return nil, fmt.Errorf("C.FLDSP (the F standard extension) is not supported")
	case 0x0A: // C.LWSP (RES, rd=0)
		imm, r := decodeCI(in)
		imm = (imm<<6 | imm) & 0xfc // 543276 -> 76543200
		return &Instruction[UX]{fn: lw[UX], rd: r, rs1: regSP, imm: imm}, nil
	case 0x0E: // C.FLWSP (RV32); C.LDSP (RV64/128; RES, rd=0)
		imm, r := decodeCI(in)
		imm = (imm<<6 | imm) & 0x1f8 // 543876 -> 876543000
		return &Instruction[UX]{fn: ld[UX], rd: r, rs1: regSP, imm: imm}, nil
	case 0x12:
		r1, r2 := decodeCR(in)
		b := in & 0x1000
		switch {
		case b == 0 && r2 == regZero: // C.JR
			return &Instruction[UX]{fn: rvcJALR[UX], rd: regZero, rs1: r1}, nil
		case b == 0: // C.MV
			return &Instruction[UX]{fn: add[UX], rd: r1, rs1: regZero, rs2: r2}, nil
		case b == 0x1000 && r1 == regZero && r2 == regZero: // C.EBREAK
			return &Instruction[UX]{fn: cebreak[UX]}, nil
		case b == 0x1000 && r2 == regZero: // C.JALR
			return &Instruction[UX]{fn: rvcJALR[UX], rd: regRA, rs1: r1}, nil
		default: // C.ADD
			return &Instruction[UX]{fn: add[UX], rd: r1, rs1: r1, rs2: r2}, nil
		}
	case 0x16: // C.FSDSP (RV32/64); C.SQSP (RV128)
		return nil, fmt.Errorf("C.FSDSP (the F standard extension) is not supported")
	case 0x1A: // C.SWSP
		imm, r := decodeCSS(in)
		imm = (imm<<6 | imm) & 0xfc // 543876 -> 765432
		return &Instruction[UX]{fn: sw[UX], rs1: regSP, rs2: r, imm: imm}, nil
	case 0x1E: // C.FSWSP (RV32); C.SDSP (RV64/128)
		imm, r := decodeCSS(in)
		imm = (imm<<6 | imm) & 0x1f8 // 543876 -> 876543000
		return &Instruction[UX]{fn: sd[UX], rs1: regSP, rs2: r, imm: imm}, nil
	}

	return nil, fmt.Errorf("unrecognized compressed instruction %#x", in)
}

func decodeCR(in uint16) (r1, r2 uint64) {
	return uint64(in >> 7 & 0x1f), uint64(in >> 2 & 0x1f)
}

func decodeCI(in uint16) (imm, r uint64) {
	return uint64(in>>7&0x20 | in>>2&0x1f), uint64(in >> 7 & 0x1f)
}

func decodeCSS(in uint16) (imm, r uint64) {
	return uint64(in >> 7 & 0x3f), uint64(in >> 2 & 0x1f)
}

// rvcRegOffset maps a compressed instruction's 3-bit register field to the
// 5-bit register number of the x8-x15 window it addresses.
const rvcRegOffset = 8

func decodeCIW(in uint16) (imm, r uint64) {
	return uint64(in >> 5 & 0xff), uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCL(in uint16) (imm, r1, r2 uint64) {
	return uint64(in>>8&0x1c | in>>5&0x3), uint64(in>>7&0x7) + rvcRegOffset, uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCS(in uint16) (imm, r1, r2 uint64) {
	return uint64(in>>8&0x1c | in>>5&0x3), uint64(in>>7&0x7) + rvcRegOffset, uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCB(in uint16) (imm, r uint64) {
	return uint64(in>>5&0xe0 | in>>2&0x1f), uint64(in>>7&0x7) + rvcRegOffset
}

func decodeShiftCB(in uint16) (offset, r uint64) {
	return uint64(in&0x1000>>7 | in>>2&0x1f), uint64(in>>7&0x7) + rvcRegOffset
}

func decodeCJ(in uint16) (offset uint64) {
	return uint64((in >> 2) & 0x7ff)
}

func rvcJAL[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(h.Proc.PC)+2)
	h.Proc.PC = UX(in.imm + uint64(h.Proc.PC))
	return flags{updatedPC: true}
}

func rvcJALR[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	h.Proc.SetReg(int(in.rd), uint64(h.Proc.PC)+2)
	h.Proc.PC = UX((in.imm + h.Proc.Reg(int(in.rs1))) &^ 0x1)
	return flags{updatedPC: true}
}

func cebreak[UX xlen.UX](h *Hart[UX], in *Instruction[UX]) flags {
	pc := uint64(h.Proc.PC)
	trap.Raise(trap.Ebreak, pc, pc)
	panic("unreachable")
}
