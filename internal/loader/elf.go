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

// Package loader builds the initial guest memory image: ELF program
// headers mapped into a mem.Mem, a 1 MiB stack populated
// with the standard argc/argv/envp/auxv frame, and register seeding from
// host entropy.
package loader

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"

	"github.com/rv8sim/rv8sim/internal/mem"
)

// Image describes the ELF file a Hart was started from.
type Image struct {
	Entry    uint64
	Is64     bool
	PhdrAddr uint64
	Phentsize int
	Phnum    int
}

// Load maps every PT_LOAD and PT_DYNAMIC program header of the ELF file read
// from r into m at its p_vaddr, honouring PF_R/W/X, and zero-fills the
// p_memsz-p_filesz BSS tail.
func Load(m *mem.Mem, r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "loader: not a valid ELF file")
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, errors.Errorf("loader: ELF machine %s is not RISC-V", f.Machine)
	}

	img := &Image{
		Entry: f.Entry,
		Is64:  f.Class == elf.ELFCLASS64,
	}

	for _, p := range f.Progs {
		if p.Type == elf.PT_PHDR {
			img.PhdrAddr = p.Vaddr
		}
		if p.Type != elf.PT_LOAD && p.Type != elf.PT_DYNAMIC {
			continue
		}
		if p.Memsz == 0 {
			continue
		}
		if err := mapSegment(m, f, p); err != nil {
			return nil, errors.Wrapf(err, "loader: mapping segment at vaddr=%#x", p.Vaddr)
		}
	}

	img.Phentsize = int(elfPhentsize(img.Is64))
	img.Phnum = len(f.Progs)
	return img, nil
}

func elfPhentsize(is64 bool) int {
	if is64 {
		return 56
	}
	return 32
}

// mapSegment rounds a program header's range out to page boundaries (the
// ELF loader's view of alignment need not match mem.Map's, which requires
// page-aligned ranges) and copies in its file-backed bytes.
func mapSegment(m *mem.Mem, f *elf.File, p *elf.Prog) error {
	base := p.Vaddr &^ (mem.PageSize - 1)
	end := (p.Vaddr + p.Memsz + mem.PageSize - 1) &^ (mem.PageSize - 1)
	length := end - base

	prot := mem.Read
	if p.Flags&elf.PF_W != 0 {
		prot |= mem.Write
	}
	if p.Flags&elf.PF_X != 0 {
		prot |= mem.Exec
	}

	data := make([]byte, p.Filesz)
	if p.Filesz > 0 {
		if _, err := p.ReadAt(data, 0); err != nil {
			return errors.Wrap(err, "loader: reading segment contents")
		}
	}

	off := p.Vaddr - base
	buf := make([]byte, length)
	copy(buf[off:], data)

	_, err := m.Map(base, length, prot, mem.Source{File: buf, Offset: 0})
	return err
}
