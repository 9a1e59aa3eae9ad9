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

// Package mmu is the centerpiece of the simulator: it
// composes physical memory, a PMA table, and two TLBs (instruction and
// data) into fetch/load/store primitives with fault signalling.
package mmu

import (
	"encoding/binary"
	"unsafe"

	"github.com/rv8sim/rv8sim/internal/mem"
	"github.com/rv8sim/rv8sim/internal/pma"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/tlb"
	"github.com/rv8sim/rv8sim/internal/trap"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Int is the constraint for the typed load/store value: the guest-visible
// integer widths a Fetch/Load/Store call can carry.
type Int interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// MMU holds an instruction TLB, a data TLB, a PMA table, and the
// underlying Mem instance.
type MMU[UX xlen.UX] struct {
	ITLB *tlb.TLB[UX]
	DTLB *tlb.TLB[UX]
	PMA  *pma.Table
	Mem  *mem.Mem
}

// New returns an MMU with the default TLB capacities and the given PMA
// table and memory.
func New[UX xlen.UX](pmaTable *pma.Table, m *mem.Mem) *MMU[UX] {
	return &MMU[UX]{
		ITLB: tlb.New[UX](tlb.DefaultCapacity),
		DTLB: tlb.New[UX](tlb.DefaultCapacity),
		PMA:  pmaTable,
		Mem:  m,
	}
}

// Fetch reads one RISC-V instruction (16 or 32 bits) at guest virtual
// address pc. It raises MisalignedFetch or FaultFetch via
// trap.Raise on failure; callers rely on the run loop's recover at the
// trap boundary, so Fetch never returns an error value for those cases.
func (m *MMU[UX]) Fetch(p *proc.Proc[UX], pc UX) (inst uint32, size int) {
	if pc&1 != 0 {
		p.BadAddr = pc
		trap.Raise(trap.MisalignedFetch, uint64(p.PC), uint64(pc))
	}

	uva := m.translateToHost(p, pc, true, false)
	if uva == mem.IllegalAddress {
		p.BadAddr = pc
		trap.Raise(trap.FaultFetch, uint64(p.PC), uint64(pc))
	}

	b := bytesAt(uva, 2)
	if b[0]&0x3 != 0x3 {
		return uint32(binary.LittleEndian.Uint16(b)), 2
	}
	b4 := bytesAt(uva, 4)
	return binary.LittleEndian.Uint32(b4), 4
}

// Load performs an aligned typed load of width sizeof(T) at guest virtual
// address va, raising MisalignedLoad or FaultLoad on failure.
func Load[UX xlen.UX, T Int](m *MMU[UX], p *proc.Proc[UX], va UX) T {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	if uint64(va)&(size-1) != 0 {
		p.BadAddr = va
		trap.Raise(trap.MisalignedLoad, uint64(p.PC), uint64(va))
	}

	uva := m.translateToHost(p, va, false, false)
	if uva == mem.IllegalAddress {
		p.BadAddr = va
		trap.Raise(trap.FaultLoad, uint64(p.PC), uint64(va))
	}

	b := bytesAt(uva, int(size))
	switch size {
	case 1:
		return T(b[0])
	case 2:
		return T(binary.LittleEndian.Uint16(b))
	case 4:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

// Store performs an aligned typed store of value at guest virtual address
// va, raising MisalignedStore or FaultStore on failure.
func Store[UX xlen.UX, T Int](m *MMU[UX], p *proc.Proc[UX], va UX, value T) {
	size := uint64(unsafe.Sizeof(value))
	if uint64(va)&(size-1) != 0 {
		p.BadAddr = va
		trap.Raise(trap.MisalignedStore, uint64(p.PC), uint64(va))
	}

	uva := m.translateToHost(p, va, false, true)
	if uva == mem.IllegalAddress {
		p.BadAddr = va
		trap.Raise(trap.FaultStore, uint64(p.PC), uint64(va))
	}

	b := bytesAt(uva, int(size))
	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	default:
		binary.LittleEndian.PutUint64(b, uint64(value))
	}
}

// translateToHost runs the full translate-then-PMA-check-then-mpa_to_uva
// pipeline, returning mem.IllegalAddress on any failure. It does not
// itself raise traps — Fetch/Load/Store do, since the cause differs per
// access kind.
func (m *MMU[UX]) translateToHost(p *proc.Proc[UX], va UX, isFetch, isStore bool) uintptr {
	pa, ok := m.Translate(p, va, isFetch, isStore)
	if !ok {
		return mem.IllegalAddress
	}

	attrs := m.PMA.Lookup(uint64(pa))
	if isFetch && attrs&pma.Executable == 0 {
		return mem.IllegalAddress
	}
	if isStore && attrs&pma.Writable == 0 {
		return mem.IllegalAddress
	}
	if !isFetch && !isStore && attrs&pma.Readable == 0 {
		return mem.IllegalAddress
	}

	return m.Mem.MPAToUVA(uint64(pa))
}

// Translate runs the effective-privilege check, scheme dispatch, TLB
// lookup, and TLB-miss walk. It reports ok=false if the
// address cannot be translated (mbare/M-mode-untranslated paths always
// succeed) or if the leaf's permission bits don't cover the access.
func (m *MMU[UX]) Translate(p *proc.Proc[UX], va UX, isFetch, isStore bool) (UX, bool) {
	if !p.EffectiveTranslationEnabled() {
		return va, true
	}

	switch p.VM {
	case proc.Mbare:
		return va, true
	case proc.Sv32, proc.Sv39, proc.Sv48:
		return m.pagedTranslate(p, va, isFetch, isStore)
	default:
		return 0, false
	}
}

func (m *MMU[UX]) pagedTranslate(p *proc.Proc[UX], va UX, isFetch, isStore bool) (UX, bool) {
	sp, ok := schemeTable[p.VM]
	if !ok {
		return 0, false
	}

	t := m.DTLB
	if isFetch {
		t = m.ITLB
	}

	asidTag := p.SPTBR >> ppnBits[UX]()
	if e, hit := t.Lookup(p.PDID, asidTag, va); hit {
		if !permitted(e.Flags, p.Mode, isFetch, isStore) {
			return 0, false
		}
		pageOff := va & UX(tlb.PageMask)
		return (e.PPN << tlb.PageShift) | pageOff, true
	}

	res, ok := walkPageTable[UX](m.Mem, sp, p.SPTBR, va)
	if !ok {
		return 0, false
	}
	// Cache the ppn of this 4 KiB page, not the leaf's ppn: a megapage or
	// gigapage takes one slot per 4 KiB page, and the hit path above adds
	// only the 12-bit page offset.
	pa := composeLeafPA(res.ppn, res.shift, va)
	t.Insert(p.PDID, asidTag, va, res.flags, pa>>tlb.PageShift)
	if !permitted(res.flags, p.Mode, isFetch, isStore) {
		return 0, false
	}
	return pa, true
}

// permitted checks a leaf PTE's R/W/X/U bits against the access being
// made. U-mode may only touch U=1 pages; S-mode
// may only touch U=0 pages (no SUM/MXR support).
func permitted(flags tlb.PTEFlags, mode proc.Mode, isFetch, isStore bool) bool {
	switch {
	case isFetch:
		if flags&tlb.FlagX == 0 {
			return false
		}
	case isStore:
		// W alone, not W&&D: A/D-bit update-on-access is unmodeled (see
		// DESIGN.md's open-question decision), so D is never consulted here.
		if flags&tlb.FlagW == 0 {
			return false
		}
	default:
		if flags&tlb.FlagR == 0 {
			return false
		}
	}
	isUserPage := flags&tlb.FlagU != 0
	switch mode {
	case proc.ModeU:
		return isUserPage
	case proc.ModeS:
		return !isUserPage
	default:
		return true
	}
}

func bytesAt(uva uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uva)), n)
}
