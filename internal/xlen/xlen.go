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

// Package xlen defines the UX type parameter shared by the TLB, MMU, and
// processor state: the guest's native integer width, 32 or 64 bits.
package xlen

// UX is the constraint satisfied by the two concrete guest word widths.
// Every package parameterised over the guest XLEN (tlb, mmu, proc, interp) takes UX
// as a type parameter instead of duplicating code per width, using Go
// generics to cover both RV32 and RV64 from one implementation.
type UX interface {
	~uint32 | ~uint64
}

// Width returns the bit width of X, either 32 or 64.
func Width[X UX]() int {
	var x X
	return widthOf(x)
}

func widthOf(x any) int {
	switch x.(type) {
	case uint32:
		return 32
	case uint64:
		return 64
	default:
		return 64
	}
}
