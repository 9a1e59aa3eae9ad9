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

package mmu

import (
	"encoding/binary"

	"github.com/rv8sim/rv8sim/internal/mem"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/tlb"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// schemeParams holds the per-scheme constants the walker needs: level count, bits of vpn consumed per level, and PTE size in
// bytes. The bit layout of flags and ppn within a PTE is scheme-independent
// (see pte.go) so it is not part of this table.
type schemeParams struct {
	levels  int
	bits    int
	pteSize int
}

var schemeTable = map[proc.Scheme]schemeParams{
	proc.Sv32: {levels: 2, bits: 10, pteSize: 4},
	proc.Sv39: {levels: 3, bits: 9, pteSize: 8},
	proc.Sv48: {levels: 4, bits: 9, pteSize: 8},
}

// ppnBits returns the width of the root-ppn field packed into sptbr's low
// bits, derived from the guest's address width; the remaining high bits of
// sptbr are the asid-like tag the TLB keys on.
func ppnBits[UX xlen.UX]() int {
	return xlen.Width[UX]() - tlb.PageShift
}

// readPTE loads one page-table entry from guest physical address pteAddr,
// or returns ok=false if that address has no backing segment.
func readPTE(m *mem.Mem, pteAddr uint64, pteSize int) (pte, bool) {
	b := m.Bytes(pteAddr, uint64(pteSize))
	if b == nil {
		return pte{}, false
	}
	var raw uint64
	if pteSize == 4 {
		raw = uint64(binary.LittleEndian.Uint32(b))
	} else {
		raw = binary.LittleEndian.Uint64(b)
	}
	return decodePTE(raw), true
}

// walkResult is what a successful page-table walk produces: enough to
// compose the physical address and to populate a TLB entry.
type walkResult[UX xlen.UX] struct {
	ppn   UX
	flags tlb.PTEFlags
	shift int // the leaf level's shift; callers OR in (va & ((1<<shift)-1))
}

// walkPageTable walks the page table to its leaf, checking faults in this
// exact order: V=0 first, then the R=0∧W=1 reserved encoding. It returns
// ok=false on any failure (falling off the bottom of the table, a bad
// intermediate pte address, or a fault test tripping).
func walkPageTable[UX xlen.UX](m *mem.Mem, sp schemeParams, rootSPTBR UX, va UX) (walkResult[UX], bool) {
	ppn := uint64(rootSPTBR) & ((1 << ppnBits[UX]()) - 1)

	for level := sp.levels - 1; level >= 0; level-- {
		shift := sp.bits*level + tlb.PageShift
		vpn := (uint64(va) >> shift) & ((1 << sp.bits) - 1)
		pteAddr := (ppn << tlb.PageShift) + vpn*uint64(sp.pteSize)

		entry, ok := readPTE(m, pteAddr, sp.pteSize)
		if !ok {
			return walkResult[UX]{}, false
		}

		// Fault tests, in this exact order.
		if !entry.valid() {
			return walkResult[UX]{}, false
		}
		if entry.reservedEncoding() {
			return walkResult[UX]{}, false
		}

		if entry.leaf() {
			return walkResult[UX]{ppn: UX(entry.ppn), flags: entry.tlbFlags(), shift: shift}, true
		}

		ppn = entry.ppn
	}
	return walkResult[UX]{}, false
}

// composeLeafPA reassembles a physical address from a leaf translation,
// letting the low `shift` bits of va pass through unchanged — this is what
// turns a higher-level leaf into a megapage or gigapage translation
//.
func composeLeafPA[UX xlen.UX](ppn UX, shift int, va UX) UX {
	mask := (UX(1) << shift) - 1
	return (ppn << tlb.PageShift) + (va & mask)
}
