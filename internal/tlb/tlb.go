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

// Package tlb implements a direct-mapped translation lookaside buffer
//: fixed capacity, no associativity, no LRU. Every context
// switch that changes pdid or sptbr's root ppn is, as a consequence, a
// full effective flush because no stale entry can match the new tag.
package tlb

import "github.com/rv8sim/rv8sim/internal/xlen"

// PageShift is log2 of the page size (4 KiB pages only).
const PageShift = 12

// PageMask masks the page offset out of a virtual address.
const PageMask = (1 << PageShift) - 1

// PTEFlags mirrors the leaf PTE's flag bits that survive into a TLB entry.
type PTEFlags uint8

const (
	FlagV PTEFlags = 1 << iota
	FlagR
	FlagW
	FlagX
	FlagU
	FlagG
	FlagA
	FlagD
)

// Entry is one cached virtual-to-physical translation.
type Entry[UX xlen.UX] struct {
	valid   bool
	PDID    uint32
	RootPPN UX
	VPN     UX
	PPN     UX
	Flags   PTEFlags
}

// DefaultCapacity is a representative TLB size for a single hart.
const DefaultCapacity = 128

// TLB is a direct-mapped cache of Entry, indexed by hash(vpn) % capacity.
type TLB[UX xlen.UX] struct {
	slots []Entry[UX]
}

// New returns a TLB with the given number of slots.
func New[UX xlen.UX](capacity int) *TLB[UX] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TLB[UX]{slots: make([]Entry[UX], capacity)}
}

func (t *TLB[UX]) index(vpn UX) int {
	// A simple multiplicative hash spreads sequential page numbers (the
	// common case) across slots instead of colliding them all in the low
	// bits, the way a plain modulo would.
	h := uint64(vpn) * 2654435761
	return int(h % uint64(len(t.slots)))
}

// Lookup returns the cached entry for (pdid, rootPPN, va), or ok=false if
// the slot is empty or tagged for a different translation.
func (t *TLB[UX]) Lookup(pdid uint32, rootPPN, va UX) (Entry[UX], bool) {
	vpn := va >> PageShift
	e := t.slots[t.index(vpn)]
	if !e.valid || e.PDID != pdid || e.RootPPN != rootPPN || e.VPN != vpn {
		return Entry[UX]{}, false
	}
	return e, true
}

// Insert unconditionally writes a new entry into the slot indexed by va's
// vpn, evicting whatever was there.
func (t *TLB[UX]) Insert(pdid uint32, rootPPN, va UX, flags PTEFlags, ppn UX) Entry[UX] {
	vpn := va >> PageShift
	e := Entry[UX]{valid: true, PDID: pdid, RootPPN: rootPPN, VPN: vpn, PPN: ppn, Flags: flags}
	t.slots[t.index(vpn)] = e
	return e
}

// FlushAll invalidates every entry.
func (t *TLB[UX]) FlushAll() {
	for i := range t.slots {
		t.slots[i] = Entry[UX]{}
	}
}

// FlushByVPN invalidates the entry at va's slot, if any (sfence.vma with an
// address argument).
func (t *TLB[UX]) FlushByVPN(va UX) {
	vpn := va >> PageShift
	idx := t.index(vpn)
	if t.slots[idx].valid && t.slots[idx].VPN == vpn {
		t.slots[idx] = Entry[UX]{}
	}
}
