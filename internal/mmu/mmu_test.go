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
	"testing"

	"github.com/rv8sim/rv8sim/internal/mem"
	"github.com/rv8sim/rv8sim/internal/pma"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/trap"
)

const (
	ptV = 1 << 0
	ptR = 1 << 1
	ptW = 1 << 2
	ptX = 1 << 3
)

func writePTE(m *mem.Mem, addr, ppn, flags uint64) {
	b := m.Bytes(addr, 8)
	binary.LittleEndian.PutUint64(b, ppn<<10|flags)
}

func expectFault(t *testing.T, want trap.Cause, fn func()) {
	t.Helper()
	defer func() {
		// recover() must be called directly by the deferred function.
		r := recover()
		f, ok := r.(*trap.Fault)
		if !ok {
			t.Fatalf("expected fault %v, got panic value %v", want, r)
			return
		}
		if f.Cause != want {
			t.Fatalf("got cause %v, want %v", f.Cause, want)
		}
	}()
	fn()
}

func TestTranslateIdentityMbare(t *testing.T) {
	m := mem.New()
	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Mbare

	pa, ok := mm.Translate(p, 0xDEADBEEF, false, false)
	if !ok || pa != 0xDEADBEEF {
		t.Errorf("Translate(mbare, 0xDEADBEEF) = (%#x, %v), want (0xDEADBEEF, true)", pa, ok)
	}
}

func TestLoadMisaligned(t *testing.T) {
	m := mem.New()
	if _, err := m.Map(0, mem.PageSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		t.Fatalf("Map: %v", err)
	}
	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Mbare

	expectFault(t, trap.MisalignedLoad, func() {
		Load[uint64, uint32](mm, p, 2)
	})
}

// TestSv39WalkAndTLBHit builds a three-level Sv39 page table mapping va
// 0x1000 to a 4 KiB leaf page and confirms a miss-then-walk followed by a
// second access (now a TLB hit) both resolve to the same data.
func TestSv39WalkAndTLBHit(t *testing.T) {
	m := mem.New()
	// Page 0: root table. Page 1: level-1 table. Page 2: level-0 table.
	// Page 3: leaf data page. All page-aligned and contiguous, so one
	// mapping covers the lot.
	if _, err := m.Map(0, 4*mem.PageSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		t.Fatalf("Map: %v", err)
	}

	writePTE(m, 0, 1, ptV)           // root[0] -> level-1 table at ppn 1
	writePTE(m, mem.PageSize, 2, ptV) // level1[0] -> level-0 table at ppn 2
	writePTE(m, 2*mem.PageSize+1*8, 3, ptV|ptR|ptW) // level0[1] -> leaf ppn 3

	const want uint32 = 0xCAFEBABE
	binary.LittleEndian.PutUint32(m.Bytes(3*mem.PageSize, 4), want)

	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Sv39
	p.SPTBR = 0 // root ppn 0
	p.Mode = proc.ModeS

	const va = uint64(1) << 12 // vpn0 = 1, vpn1 = 0, vpn2 = 0

	got := Load[uint64, uint32](mm, p, va)
	if got != want {
		t.Errorf("first load (walk): got %#x, want %#x", got, want)
	}

	got = Load[uint64, uint32](mm, p, va)
	if got != want {
		t.Errorf("second load (TLB hit): got %#x, want %#x", got, want)
	}
}

// TestSv39Megapage maps a level-1 leaf (a 2 MiB megapage) and checks that
// an address deep inside it, past the page-table-walk-visible low bits,
// still resolves via composeLeafPA's pass-through of the low (9+12) bits.
func TestSv39Megapage(t *testing.T) {
	m := mem.New()
	// Page 0: root table. Page 1: level-1 table, whose [0] entry is a leaf
	// (a 2 MiB megapage) instead of pointing at a level-0 table. Page 2
	// onward: the megapage's backing data (mapped far enough to cover the
	// in-megapage offset used below).
	if _, err := m.Map(0, 5*mem.PageSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		t.Fatalf("Map: %v", err)
	}
	writePTE(m, 0, 1, ptV)              // root[0] -> level-1 table at ppn 1
	writePTE(m, mem.PageSize, 2, ptV|ptR|ptW) // level1[0] -> leaf ppn 2 (megapage)

	const want uint32 = 0x11223344
	const offset = uint64(0x2000) // well past a 4 KiB page boundary, inside the megapage
	binary.LittleEndian.PutUint32(m.Bytes(2*mem.PageSize+offset, 4), want)

	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Sv39
	p.SPTBR = 0
	p.Mode = proc.ModeS

	got := Load[uint64, uint32](mm, p, offset)
	if got != want {
		t.Errorf("megapage load: got %#x, want %#x", got, want)
	}
}

// TestPermissionFault maps a leaf with only X set and confirms a store to
// it faults instead of silently succeeding.
func TestPermissionFault(t *testing.T) {
	m := mem.New()
	if _, err := m.Map(0, 2*mem.PageSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		t.Fatalf("Map: %v", err)
	}
	writePTE(m, 0, 1, ptV|ptX) // executable-only gigapage (root-level leaf), no R or W

	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Sv39
	p.SPTBR = 0
	p.Mode = proc.ModeS

	expectFault(t, trap.FaultStore, func() {
		Store[uint64, uint32](mm, p, 0, 0xFFFFFFFF)
	})
}

// TestUserPageBlockedInSupervisorMode confirms S-mode can't touch a U=1
// page (no SUM support).
func TestUserPageBlockedInSupervisorMode(t *testing.T) {
	m := mem.New()
	if _, err := m.Map(0, 2*mem.PageSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		t.Fatalf("Map: %v", err)
	}
	const ptU = 1 << 4
	writePTE(m, 0, 1, ptV|ptR|ptW|ptU)

	mm := New[uint64](pma.New(pma.DefaultCapacity), m)
	p := proc.New[uint64](0)
	p.VM = proc.Sv39
	p.SPTBR = 0
	p.Mode = proc.ModeS

	expectFault(t, trap.FaultLoad, func() {
		Load[uint64, uint32](mm, p, 0)
	})
}
