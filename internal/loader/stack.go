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

package loader

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/rv8sim/rv8sim/internal/mem"
)

// StackSize is the guest stack's fixed size, allocated just below
// memoryTop.
const StackSize = 1 << 20

// DefaultEnvAllowList is the set of host environment variables forwarded
// into the guest's envp by default.
var DefaultEnvAllowList = []string{"TERM"}

const (
	atNull    = 0
	atPhdr    = 3
	atPhent   = 4
	atPhnum   = 5
	atPagesz  = 6
	atBase    = 7
	atFlags   = 8
	atEntry   = 9
	atUID     = 11
	atEUID    = 12
	atGID     = 13
	atEGID    = 14
	atHWCap   = 16
	atRandom  = 25
)

// stackWriter lays out the guest ABI frame from the top of the stack
// region downward, writing into a mem.Mem segment one field at a time.
type stackWriter struct {
	mem *mem.Mem
	sp  uint64
}

func (w *stackWriter) pushBytes(b []byte) uint64 {
	w.sp -= uint64(len(b))
	copy(w.mem.Bytes(w.sp, uint64(len(b))), b)
	return w.sp
}

func (w *stackWriter) pushCString(s string) uint64 {
	return w.pushBytes(append([]byte(s), 0))
}

func (w *stackWriter) pushUint64(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.pushBytes(b[:])
}

// BuildStack allocates the 1 MiB guest stack below memoryTop and
// populates it with argc, argv, a filtered envp, and an auxiliary vector
//. It returns the initial stack pointer.
func BuildStack(m *mem.Mem, memoryTop uint64, img *Image, argv []string, envAllowList []string) (uint64, error) {
	base := memoryTop - StackSize
	if _, err := m.Map(base, StackSize, mem.Read|mem.Write, mem.Source{}); err != nil {
		return 0, errors.Wrap(err, "loader: mapping guest stack")
	}

	if envAllowList == nil {
		envAllowList = DefaultEnvAllowList
	}
	var envp []string
	for _, name := range envAllowList {
		if v, ok := os.LookupEnv(name); ok {
			envp = append(envp, name+"="+v)
		}
	}

	w := &stackWriter{mem: m, sp: memoryTop}

	// Left zero-filled: AT_RANDOM only needs a stable address guests can
	// point ld.so's stack-protector seed at, not entropy. Register state is
	// where randomization is modeled, via seed.go's crypto/rand seeding.
	var randomBytes [16]byte
	randomAddr := w.pushBytes(randomBytes[:])

	var envAddrs, argvAddrs []uint64
	for i := len(envp) - 1; i >= 0; i-- {
		envAddrs = append([]uint64{w.pushCString(envp[i])}, envAddrs...)
	}
	for i := len(argv) - 1; i >= 0; i-- {
		argvAddrs = append([]uint64{w.pushCString(argv[i])}, argvAddrs...)
	}

	w.sp &^= 0xf // 16-byte align before the fixed-size frame below

	auxv := []uint64{
		atPagesz, mem.PageSize,
		atPhdr, img.PhdrAddr,
		atPhent, uint64(img.Phentsize),
		atPhnum, uint64(img.Phnum),
		atEntry, img.Entry,
		atBase, 0,
		atFlags, 0,
		atHWCap, 0,
		atUID, uint64(os.Getuid()),
		atEUID, uint64(os.Geteuid()),
		atGID, uint64(os.Getgid()),
		atEGID, uint64(os.Getegid()),
		atRandom, randomAddr,
		atNull, 0,
	}
	for i := len(auxv) - 1; i >= 0; i -= 2 {
		w.pushUint64(auxv[i])
		w.pushUint64(auxv[i-1])
	}

	w.pushUint64(0) // envp terminator
	for i := len(envAddrs) - 1; i >= 0; i-- {
		w.pushUint64(envAddrs[i])
	}
	w.pushUint64(0) // argv terminator
	for i := len(argvAddrs) - 1; i >= 0; i-- {
		w.pushUint64(argvAddrs[i])
	}
	w.pushUint64(uint64(len(argv)))

	return w.sp, nil
}
