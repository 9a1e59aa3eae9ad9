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

// Package syscallproxy marshals a guest ecall into a real host syscall
//: "the AEE services a fixed set of syscalls by
// trapping ecall and performing the equivalent host operation." It
// implements interp.Syscalls by reading the A0-A5 register convention off
// a proc.Proc and issuing golang.org/x/sys/unix calls directly, rather
// than emulating a guest libc.
package syscallproxy

import (
	"golang.org/x/sys/unix"

	"github.com/rv8sim/rv8sim/internal/mmu"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Linux/RISC-V syscall numbers this proxy understands (asm-generic
// unistd.h), matching the real ABI the original_source's syscall.h table
// documents.
const (
	sysGetcwd    = 17
	sysClose     = 57
	sysLseek     = 62
	sysRead      = 63
	sysWrite     = 64
	sysFstat     = 80
	sysExit      = 93
	sysExitGroup = 94
	sysBrk       = 214
	sysOpenat    = 56
)

const (
	a0 = 10
	a1 = 11
	a2 = 12
	a3 = 13
	a7 = 17
)

// Declared as vars (not untyped constants) so uint64(...) below is a
// runtime two's-complement conversion rather than a constant conversion,
// which Go rejects for negative values.
var (
	errFstatUnsupported int64 = -1
	errENOSYS           int64 = -38
)

// Proxy services ecalls for a single Hart, reading/writing guest buffers
// through the same MMU the interpreter's loads and stores go through.
type Proxy[UX xlen.UX] struct {
	MMU *mmu.MMU[UX]
	brk UX
}

// NewProxy returns a Proxy whose brk (for the brk syscall) starts at the
// given guest virtual address, typically just past the loaded image.
func NewProxy[UX xlen.UX](m *mmu.MMU[UX], initialBrk UX) *Proxy[UX] {
	return &Proxy[UX]{MMU: m, brk: initialBrk}
}

// Handle services one ecall using the standard Linux RISC-V register
// convention: syscall number in a7, arguments in a0-a5, return value in
// a0.
func (px *Proxy[UX]) Handle(p *proc.Proc[UX]) (code int, exited bool, err error) {
	switch call := p.Reg(a7); call {
	case sysExit, sysExitGroup:
		return int(int32(p.Reg(a0))), true, nil

	case sysWrite:
		n, werr := px.write(p, int(p.Reg(a0)), UX(p.Reg(a1)), int(p.Reg(a2)))
		px.setResult(p, n, werr)
		return 0, false, nil

	case sysRead:
		n, rerr := px.read(p, int(p.Reg(a0)), UX(p.Reg(a1)), int(p.Reg(a2)))
		px.setResult(p, n, rerr)
		return 0, false, nil

	case sysClose:
		rerr := unix.Close(int(p.Reg(a0)))
		px.setResult(p, 0, rerr)
		return 0, false, nil

	case sysLseek:
		off, rerr := unix.Seek(int(p.Reg(a0)), int64(p.Reg(a1)), int(p.Reg(a2)))
		px.setResult(p, int(off), rerr)
		return 0, false, nil

	case sysOpenat:
		fd, oerr := px.openat(p)
		px.setResult(p, fd, oerr)
		return 0, false, nil

	case sysFstat:
		// Guest stat structs do not match the host's layout closely enough
		// to copy directly; report failure rather than fabricate fields.
		p.SetReg(a0, uint64(errFstatUnsupported))
		return 0, false, nil

	case sysBrk:
		if reqAddr := UX(p.Reg(a0)); reqAddr != 0 {
			px.brk = reqAddr
		}
		p.SetReg(a0, uint64(px.brk))
		return 0, false, nil

	case sysGetcwd:
		n := px.writeGuestString(p, UX(p.Reg(a0)), int(p.Reg(a1)), "/")
		px.setResult(p, n, nil)
		return 0, false, nil

	default:
		p.SetReg(a0, uint64(errENOSYS)) // -ENOSYS
		return 0, false, nil
	}
}

func (px *Proxy[UX]) setResult(p *proc.Proc[UX], n int, err error) {
	if err != nil {
		p.SetReg(a0, uint64(errFstatUnsupported))
		return
	}
	p.SetReg(a0, uint64(int64(n)))
}

// write reads count bytes out of guest memory at va and writes them to
// the host fd, one guest-virtual byte at a time so it composes with the
// MMU's normal fault handling instead of assuming a contiguous host
// mapping.
func (px *Proxy[UX]) write(p *proc.Proc[UX], fd int, va UX, count int) (int, error) {
	buf := make([]byte, count)
	for i := 0; i < count; i++ {
		buf[i] = mmu.Load[UX, uint8](px.MMU, p, va+UX(i))
	}
	return unix.Write(fd, buf)
}

func (px *Proxy[UX]) read(p *proc.Proc[UX], fd int, va UX, count int) (int, error) {
	buf := make([]byte, count)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return n, err
	}
	for i := 0; i < n; i++ {
		mmu.Store[UX, uint8](px.MMU, p, va+UX(i), buf[i])
	}
	return n, nil
}

func (px *Proxy[UX]) writeGuestString(p *proc.Proc[UX], va UX, max int, s string) int {
	b := append([]byte(s), 0)
	if len(b) > max {
		b = b[:max]
	}
	for i, c := range b {
		mmu.Store[UX, uint8](px.MMU, p, va+UX(i), c)
	}
	return len(b)
}

// openat reads a NUL-terminated path string out of guest memory and
// issues the equivalent host openat.
func (px *Proxy[UX]) openat(p *proc.Proc[UX]) (int, error) {
	dirfd := int(int32(p.Reg(a0)))
	pathVA := UX(p.Reg(a1))
	flags := int(p.Reg(a2))
	mode := uint32(p.Reg(a3))

	var pathBytes []byte
	for i := 0; i < 4096; i++ {
		c := mmu.Load[UX, uint8](px.MMU, p, pathVA+UX(i))
		if c == 0 {
			break
		}
		pathBytes = append(pathBytes, c)
	}
	return unix.Openat(dirfd, string(pathBytes), flags, mode)
}
