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

	"github.com/rv8sim/rv8sim/internal/xlen"
)

// decode turns a fetched instruction (bits, size) into an Instruction
// descriptor, dispatching into the 16-bit (RVC) or 32-bit decode table.
func (h *Hart[UX]) decode(bits uint32, size int) (*Instruction[UX], error) {
	if size == 2 {
		in, err := decodeCompressed[UX](h.rvcTable, uint16(bits))
		if err != nil {
			return nil, err
		}
		in.in = uint64(uint16(bits))
		in.size = 2
		return in, nil
	}
	return decode32[UX](h.rviTable, bits)
}

type baseOpcode uint

const (
	boLoad      = baseOpcode(0x00)
	boLoadFP    = baseOpcode(0x01)
	boMiscMem   = baseOpcode(0x03)
	boOpImm     = baseOpcode(0x04)
	boAUIPC     = baseOpcode(0x05)
	boOpImm32   = baseOpcode(0x06)
	boStore     = baseOpcode(0x08)
	boStoreFP   = baseOpcode(0x09)
	boAMO       = baseOpcode(0x0b)
	boOp        = baseOpcode(0x0c)
	boLUI       = baseOpcode(0x0d)
	boOp32      = baseOpcode(0x0e)
	boMadd      = baseOpcode(0x10)
	boMsub      = baseOpcode(0x11)
	boNmsub     = baseOpcode(0x12)
	boNmadd     = baseOpcode(0x13)
	boOpFP      = baseOpcode(0x14)
	boBranch    = baseOpcode(0x18)
	boJALR      = baseOpcode(0x19)
	boJAL       = baseOpcode(0x1b)
	boSystem    = baseOpcode(0x1c)
)

// decode32 decodes a 32-bit instruction (riscv-spec-v2.2; Table 19.1).
func decode32[UX xlen.UX](table map[uint64]opFunc[UX], in32 uint32) (*Instruction[UX], error) {
	in := uint64(in32)
	out := &Instruction[UX]{in: in, size: 4}
	out.rs1 = in >> 15 & 0x1f
	out.rs2 = in >> 20 & 0x1f
	out.rd = in >> 7 & 0x1f

	var funct7 uint64
	switch bop := baseOpcode(in >> 2 & 0x1f); bop {
	case boAMO, boOp, boOp32, boOpFP:
		funct7 = in >> 17 & 0x7f00
	case boLoad, boLoadFP, boMiscMem, boOpImm, boOpImm32, boJALR, boSystem:
		out.imm = in >> 20 & 0xfff
	case boStore, boStoreFP:
		out.imm = in>>20&0xFE0 | in>>0x7&0x1f
	case boBranch:
		out.imm = in>>19&0x1000 | in<<4&0x800 | in>>20&0x7e0 | in>>7&0x1e
	case boAUIPC, boLUI:
		out.imm = in & 0xFFFFF000
		switch in >> 2 & 0x1f {
		case 0x0D:
			out.fn = lui[UX]
		case 0x05:
			out.fn = auipc[UX]
		default:
			return nil, fmt.Errorf("instruction %#x uses u-type but it's neither AUIPC nor LUI", in)
		}
		return out, nil
	case boJAL:
		out.imm = in>>11&0x100000 | in&0xff000 | in>>9&0x800 | in>>20&0x7fe
		out.fn = jal[UX]
		return out, nil
	default:
		return nil, fmt.Errorf("instruction %#x has unrecognized format (base opcode: %#x)", in, bop)
	}

	key := funct7 | in>>7&0xE0 | in>>2&0x1f
	fn, ok := table[key]
	if !ok {
		return nil, fmt.Errorf("can't decode instruction %#x: no entry in rvi table for key %#x", in, key)
	}
	out.fn = fn
	return out, nil
}

// buildRVITable returns the funct7|funct3|opcode>>2 -> handler table
// (riscv-spec-v2.2; Table 19.3).
func buildRVITable[UX xlen.UX]() map[uint64]opFunc[UX] {
	return map[uint64]opFunc[UX]{
		0x18:   beq[UX],
		0x38:   bne[UX],
		0x98:   blt[UX],
		0xB8:   bge[UX],
		0xD8:   bltu[UX],
		0xF8:   bgeu[UX],
		0x19:   jalr[UX],
		0x00:   lb[UX],
		0x20:   lh[UX],
		0x40:   lw[UX],
		0x80:   lbu[UX],
		0xA0:   lhu[UX],
		0x08:   sb[UX],
		0x28:   sh[UX],
		0x48:   sw[UX],
		0x04:   addi[UX],
		0x44:   slti[UX],
		0x64:   sltiu[UX],
		0x84:   xori[UX],
		0xC4:   ori[UX],
		0xE4:   andi[UX],
		0x000C: add[UX],
		0x200C: sub[UX],
		0x002C: sll[UX],
		0x004C: slt[UX],
		0x006C: sltu[UX],
		0x008C: xor[UX],
		0x00AC: srl[UX],
		0x20AC: sra[UX],
		0x0CC:  or[UX],
		0x0EC:  and[UX],
		0x03:   fence[UX],
		0x23:   fenceI[UX],
		0x1C:   ecallOrBreak[UX],
		0x3C:   csrrw[UX],
		0x5C:   csrrs[UX],
		0x7C:   csrrc[UX],
		0xBC:   csrrwi[UX],
		0xDC:   csrrsi[UX],
		0xFC:   csrrci[UX],

		0xC0:   lwu[UX],
		0x60:   ld[UX],
		0x68:   sd[UX],
		0x24:   slli[UX],
		0xA4:   shiftRight[UX],
		0x06:   addiw[UX],
		0x0026: slliw[UX],
		0x00A6: srliw[UX],
		0x20A6: sraiw[UX],
		0x000E: addw[UX],
		0x200E: subw[UX],
		0x002E: sllw[UX],
		0x00AE: srlw[UX],
		0x20AE: sraw[UX],

		0x10C: mul[UX],
		0x12C: mulh[UX],
		0x14C: mulhsu[UX],
		0x16C: mulhu[UX],
		0x18C: div[UX],
		0x1AC: divu[UX],
		0x1CC: rem[UX],
		0x1EC: remu[UX],
		0x10E: mulw[UX],
		0x18E: divw[UX],
		0x1AE: divuw[UX],
		0x1CE: remw[UX],
		0x1EE: remuw[UX],
	}
}
