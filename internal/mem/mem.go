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

// Package mem owns the guest physical address space: a set of host-backed
// segments, each mapped to a contiguous guest-physical range. It is the lowest layer in the MMU's composition.
package mem

import (
	"sort"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// IllegalAddress is the distinguished value meaning "no mapping". It is all-ones in the host's pointer width.
const IllegalAddress = ^uintptr(0)

const PageSize = 4096
const pageMask = PageSize - 1

// Prot is a bitmask of segment permissions.
type Prot uint8

const (
	Read Prot = 1 << iota
	Write
	Exec
)

// Source describes how a segment's backing bytes are populated.
type Source struct {
	// Anonymous segments are zero-filled. File-backed segments copy Length
	// bytes from File starting at Offset, matching an ELF PT_LOAD's
	// p_filesz region; the tail up to Length is left zero.
	File   []byte
	Offset int64
}

func (s Source) isFileBacked() bool { return s.File != nil }

// Segment is a contiguous guest-physical range paired with host memory.
type Segment struct {
	PA     uint64
	Length uint64
	Prot   Prot
	host   []byte // mmap'd region, len == Length
}

func (s *Segment) contains(pa uint64) bool {
	return pa >= s.PA && pa < s.PA+s.Length
}

// Mem is the set of segments backing guest physical memory.
type Mem struct {
	segments *btree.BTreeG[*Segment]
	byStart  map[uint64]*Segment // for exact-base unmap lookups
}

func less(a, b *Segment) bool { return a.PA < b.PA }

// New returns an empty Mem.
func New() *Mem {
	return &Mem{
		segments: btree.NewG(32, less),
		byStart:  make(map[uint64]*Segment),
	}
}

// Map reserves length bytes of host memory and associates it with guest
// physical range [pa, pa+length). It fails if the range is misaligned, has
// zero length, or overlaps an existing segment.
func (m *Mem) Map(pa, length uint64, prot Prot, src Source) (*Segment, error) {
	if length == 0 {
		return nil, errors.Errorf("mem: zero-length mapping at pa=%#x", pa)
	}
	if pa&pageMask != 0 || length&pageMask != 0 {
		return nil, errors.Errorf("mem: unaligned mapping pa=%#x length=%#x", pa, length)
	}
	if end, ok := addOverflow(pa, length); !ok || m.overlaps(pa, end) {
		return nil, errors.Errorf("mem: mapping [%#x, %#x) overlaps an existing segment", pa, pa+length)
	}

	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	host, err := unix.Mmap(-1, 0, int(length), hostProt(prot|Write), flags)
	if err != nil {
		return nil, errors.Wrapf(err, "mem: mmap %d bytes for pa=%#x", length, pa)
	}
	if src.isFileBacked() {
		n := copy(host, src.File[src.Offset:])
		_ = n // remainder up to length stays zero-filled, matching BSS tail semantics
	}
	if prot&Write == 0 {
		if err := unix.Mprotect(host, hostProt(prot)); err != nil {
			unix.Munmap(host)
			return nil, errors.Wrap(err, "mem: mprotect read-only segment")
		}
	}

	seg := &Segment{PA: pa, Length: length, Prot: prot, host: host}
	m.segments.ReplaceOrInsert(seg)
	m.byStart[pa] = seg
	return seg, nil
}

// Unmap releases the backing region for the segment based at pa and drops
// it from the segment table.
func (m *Mem) Unmap(pa, length uint64) error {
	seg, ok := m.byStart[pa]
	if !ok || seg.Length != length {
		return errors.Errorf("mem: no segment based at pa=%#x length=%#x", pa, length)
	}
	if err := unix.Munmap(seg.host); err != nil {
		return errors.Wrapf(err, "mem: munmap pa=%#x", pa)
	}
	delete(m.byStart, pa)
	m.segments.Delete(seg)
	return nil
}

// MPAToUVA translates a guest physical address to a host address, or
// returns IllegalAddress if no segment covers pa.
func (m *Mem) MPAToUVA(pa uint64) uintptr {
	var found *Segment
	m.segments.DescendLessOrEqual(&Segment{PA: pa}, func(s *Segment) bool {
		if s.contains(pa) {
			found = s
		}
		return false
	})
	if found == nil {
		return IllegalAddress
	}
	off := pa - found.PA
	return hostAddr(found.host) + uintptr(off)
}

// Bytes returns the host-backed slice for length bytes starting at pa, or
// nil if the range is not entirely covered by a single segment. Used by
// the page-table walker and the loader's stack builder to read/write guest
// memory without an unsafe pointer cast per access.
func (m *Mem) Bytes(pa, length uint64) []byte {
	var found *Segment
	m.segments.DescendLessOrEqual(&Segment{PA: pa}, func(s *Segment) bool {
		if s.contains(pa) {
			found = s
		}
		return false
	})
	if found == nil || pa+length > found.PA+found.Length {
		return nil
	}
	off := pa - found.PA
	return found.host[off : off+length]
}

// overlaps reports whether [pa, end) intersects any existing segment.
func (m *Mem) overlaps(pa, end uint64) bool {
	overlap := false
	m.segments.Ascend(func(s *Segment) bool {
		if s.PA < end && pa < s.PA+s.Length {
			overlap = true
			return false
		}
		return true
	})
	return overlap
}

// Segments returns all segments ordered by base address, for
// --log-memory-map reporting.
func (m *Mem) Segments() []*Segment {
	out := make([]*Segment, 0, len(m.byStart))
	m.segments.Ascend(func(s *Segment) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PA < out[j].PA })
	return out
}

func hostProt(p Prot) int {
	var v int
	if p&Read != 0 {
		v |= unix.PROT_READ
	}
	if p&Write != 0 {
		v |= unix.PROT_WRITE
	}
	if p&Exec != 0 {
		v |= unix.PROT_EXEC
	}
	return v
}

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}
