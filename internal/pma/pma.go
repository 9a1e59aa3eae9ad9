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

// Package pma implements the physical memory attributes table: a small table of (base, length, attributes) ranges the MMU
// consults after translation, independent of PTE permission bits.
package pma

import "github.com/google/btree"

// Attr is a bitmask of physical memory attributes.
type Attr uint8

const (
	Readable Attr = 1 << iota
	Writable
	Executable
	Cacheable
	Device // device/I-O memory
	Coherent
)

// Unconstrained is the default attribute set returned when no PMA entry
// covers a queried address: fully permissive, as if no PMA table existed.
const Unconstrained = Readable | Writable | Executable | Cacheable | Coherent

// Entry is one physical memory attribute range.
type Entry struct {
	Base, Length uint64
	Attrs        Attr
}

func (e Entry) contains(pa uint64) bool { return pa >= e.Base && pa < e.Base+e.Length }

// Table is a fixed-capacity ordered table of PMA entries.
type Table struct {
	tree *btree.BTreeG[Entry]
	cap  int
	n    int
}

// DefaultCapacity is a representative compiled-in table size.
const DefaultCapacity = 8

func lessEntry(a, b Entry) bool { return a.Base < b.Base }

// New returns an empty PMA table with the given capacity.
func New(capacity int) *Table {
	return &Table{tree: btree.NewG(8, lessEntry), cap: capacity}
}

// Add installs a new PMA entry. It returns false if the table is at
// capacity.
func (t *Table) Add(e Entry) bool {
	if t.n >= t.cap {
		return false
	}
	t.tree.ReplaceOrInsert(e)
	t.n++
	return true
}

// Lookup returns the attributes of the entry containing pa, or
// Unconstrained if none matches. Where entries overlap, the containing
// entry with the highest base address wins, so a range carved out of a
// larger one takes precedence over it.
func (t *Table) Lookup(pa uint64) Attr {
	attrs := Attr(Unconstrained)
	t.tree.DescendLessOrEqual(Entry{Base: pa}, func(e Entry) bool {
		if e.contains(pa) {
			attrs = e.Attrs
			return false
		}
		// Base <= pa but doesn't contain it: an earlier, larger-ranged
		// entry might still cover pa, so keep walking backwards.
		return true
	})
	return attrs
}

// Entries returns all installed entries in base-address order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, t.n)
	t.tree.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
