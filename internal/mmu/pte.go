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

import "github.com/rv8sim/rv8sim/internal/tlb"

// The pteShift* constants give the bit position of each PTE flag. The layout is
// identical across sv32, sv39 and sv48: only the ppn
// field's width and the pte size in bytes differ between schemes.
const (
	pteShiftV = 0
	pteShiftR = 1
	pteShiftW = 2
	pteShiftX = 3
	pteShiftU = 4
	pteShiftG = 5
	pteShiftA = 6
	pteShiftD = 7
)

const pteFlagMask = 0xff
const ppnShift = 10

// pte is a decoded page-table entry, independent of scheme.
type pte struct {
	raw uint64
	ppn uint64
}

func decodePTE(raw uint64) pte {
	return pte{raw: raw, ppn: raw >> ppnShift}
}

func (p pte) flag(shift uint) bool { return (p.raw>>shift)&1 != 0 }

func (p pte) valid() bool      { return p.flag(pteShiftV) }
func (p pte) readable() bool   { return p.flag(pteShiftR) }
func (p pte) writable() bool   { return p.flag(pteShiftW) }
func (p pte) executable() bool { return p.flag(pteShiftX) }
func (p pte) user() bool       { return p.flag(pteShiftU) }
func (p pte) global() bool     { return p.flag(pteShiftG) }
func (p pte) accessed() bool   { return p.flag(pteShiftA) }
func (p pte) dirty() bool      { return p.flag(pteShiftD) }

// leaf reports whether this PTE terminates the walk: any of R or X set.
func (p pte) leaf() bool { return p.readable() || p.executable() }

// reservedEncoding reports the R=0 ∧ W=1 reserved bit pattern.
func (p pte) reservedEncoding() bool { return !p.readable() && p.writable() }

// tlbFlags packs the subset of PTE flags the TLB caches.
func (p pte) tlbFlags() tlb.PTEFlags {
	var f tlb.PTEFlags
	if p.valid() {
		f |= tlb.FlagV
	}
	if p.readable() {
		f |= tlb.FlagR
	}
	if p.writable() {
		f |= tlb.FlagW
	}
	if p.executable() {
		f |= tlb.FlagX
	}
	if p.user() {
		f |= tlb.FlagU
	}
	if p.global() {
		f |= tlb.FlagG
	}
	if p.accessed() {
		f |= tlb.FlagA
	}
	if p.dirty() {
		f |= tlb.FlagD
	}
	return f
}
