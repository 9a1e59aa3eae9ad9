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

// Package symtab resolves a PC to a symbol name plus offset for the
// `-S/--symbolicate` trace option. Pretty-printing the
// symbol beyond "name+offset" is explicitly out of the simulator core's
// scope; this package only does the ELF symbol-table lookup.
package symtab

import (
	"debug/elf"
	"fmt"
	"io"
	"sort"
)

type symbol struct {
	name  string
	value uint64
	size  uint64
}

// Table is an address-ordered symbol table built from an ELF file's
// .symtab (or .dynsym, if .symtab was stripped).
type Table struct {
	syms []symbol
}

// Load reads the ELF symbol table from r.
func Load(r io.ReaderAt) (*Table, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	elfSyms, err := f.Symbols()
	if err != nil || len(elfSyms) == 0 {
		elfSyms, err = f.DynamicSymbols()
	}
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, s := range elfSyms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		t.syms = append(t.syms, symbol{name: s.Name, value: s.Value, size: s.Size})
	}
	sort.Slice(t.syms, func(i, j int) bool { return t.syms[i].value < t.syms[j].value })
	return t, nil
}

// Resolve returns "name+offset" for the symbol containing pc, or a bare
// hex address if none is found.
func (t *Table) Resolve(pc uint64) string {
	if t == nil || len(t.syms) == 0 {
		return fmt.Sprintf("%#x", pc)
	}
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].value > pc }) - 1
	if i < 0 {
		return fmt.Sprintf("%#x", pc)
	}
	s := t.syms[i]
	if s.size != 0 && pc >= s.value+s.size {
		return fmt.Sprintf("%#x", pc)
	}
	if off := pc - s.value; off != 0 {
		return fmt.Sprintf("%s+%#x", s.name, off)
	}
	return s.name
}
