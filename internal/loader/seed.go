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
	"crypto/rand"

	"github.com/pkg/errors"
)

// SeedRegisters fills regs[1:] (x0 stays hardwired zero) with pseudo-random
// bits derived from a caller-supplied seed XORed with at least 512 bits of
// host entropy, "to flush out programs that wrongly depend
// on zeroed initial register state" (original_source's comment on the same
// behaviour).
func SeedRegisters(regs *[32]uint64, seed uint64) error {
	var entropy [31 * 8]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return errors.Wrap(err, "loader: reading host entropy for register seeding")
	}

	state := seed
	for i := 1; i < 32; i++ {
		state = splitmix64(state)
		var h uint64
		for b := 0; b < 8; b++ {
			h = h<<8 | uint64(entropy[(i-1)*8+b])
		}
		regs[i] = state ^ h
	}
	return nil
}

// splitmix64 is a fast, well-distributed PRNG step used only to spread a
// single 64-bit seed across many register slots; it is not used for any
// security-sensitive purpose.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
