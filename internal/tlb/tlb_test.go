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

package tlb

import "testing"

func TestLookupMiss(t *testing.T) {
	tb := New[uint64](8)
	if _, ok := tb.Lookup(0, 0, 0x1000); ok {
		t.Errorf("Lookup on empty TLB: ok = true, want false")
	}
}

func TestInsertThenLookup(t *testing.T) {
	tb := New[uint64](8)
	tb.Insert(1, 0x100, 0x2000, FlagV|FlagR|FlagW, 0x55)

	e, ok := tb.Lookup(1, 0x100, 0x2000)
	if !ok {
		t.Fatalf("Lookup after Insert: ok = false, want true")
	}
	if e.PPN != 0x55 {
		t.Errorf("PPN = %#x, want %#x", e.PPN, 0x55)
	}
	if e.Flags&FlagW == 0 {
		t.Errorf("Flags missing FlagW")
	}
}

func TestLookupWrongTagMisses(t *testing.T) {
	tb := New[uint64](8)
	tb.Insert(1, 0x100, 0x2000, FlagV, 0x55)

	if _, ok := tb.Lookup(2, 0x100, 0x2000); ok {
		t.Errorf("Lookup with different pdid: ok = true, want false")
	}
	if _, ok := tb.Lookup(1, 0x200, 0x2000); ok {
		t.Errorf("Lookup with different rootPPN: ok = true, want false")
	}
}

func TestInsertEvictsColliding(t *testing.T) {
	// A single-slot TLB forces every insert to collide: there's no
	// associativity to fall back on.
	tb := New[uint64](1)
	tb.Insert(1, 0, 0x1000, FlagV, 0x10)
	tb.Insert(2, 0, 0x2000, FlagV, 0x20)

	if _, ok := tb.Lookup(1, 0, 0x1000); ok {
		t.Errorf("Lookup for evicted entry: ok = true, want false")
	}
	e, ok := tb.Lookup(2, 0, 0x2000)
	if !ok || e.PPN != 0x20 {
		t.Errorf("Lookup for surviving entry: got (%+v, %v), want PPN=0x20, ok=true", e, ok)
	}
}

func TestFlushAll(t *testing.T) {
	tb := New[uint64](8)
	tb.Insert(1, 0, 0x1000, FlagV, 0x10)
	tb.Insert(1, 0, 0x2000, FlagV, 0x20)
	tb.FlushAll()
	if _, ok := tb.Lookup(1, 0, 0x1000); ok {
		t.Errorf("Lookup after FlushAll: ok = true, want false")
	}
	if _, ok := tb.Lookup(1, 0, 0x2000); ok {
		t.Errorf("Lookup after FlushAll: ok = true, want false")
	}
}

func TestFlushByVPN(t *testing.T) {
	tb := New[uint64](8)
	tb.Insert(1, 0, 0x1000, FlagV, 0x10)
	tb.Insert(1, 0, 0x2000, FlagV, 0x20)
	tb.FlushByVPN(0x1000)

	if _, ok := tb.Lookup(1, 0, 0x1000); ok {
		t.Errorf("Lookup(0x1000) after FlushByVPN(0x1000): ok = true, want false")
	}
	if _, ok := tb.Lookup(1, 0, 0x2000); !ok {
		t.Errorf("Lookup(0x2000) after FlushByVPN(0x1000): ok = false, want true")
	}
}
