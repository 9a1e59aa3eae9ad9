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

// Package histogram accumulates the optional per-step PC, register, and
// instruction counters and exports the PC
// histogram as a pprof profile, so it can be inspected with `go tool
// pprof` instead of a bespoke text dump.
package histogram

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/google/pprof/profile"

	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Set accumulates the three histograms the run loop samples into every
// step, each gated by the flag passed to New for it.
type Set struct {
	pc          map[uint64]int64
	regs        [32]map[uint64]int64
	instruction map[string]int64

	samplePC, sampleRegs, sampleInstr bool

	// Symbolicate, if set, resolves a PC to a human-readable location name
	// for the exported profile's Function.Name.
	Symbolicate func(pc uint64) string
}

// New returns a Set that only accumulates the histograms the caller asks
// for.
func New(samplePC, sampleRegs, sampleInstr bool) *Set {
	s := &Set{
		pc:          map[uint64]int64{},
		instruction: map[string]int64{},
		samplePC:    samplePC,
		sampleRegs:  sampleRegs,
		sampleInstr: sampleInstr,
	}
	if sampleRegs {
		for i := range s.regs {
			s.regs[i] = map[uint64]int64{}
		}
	}
	return s
}

func (s *Set) SamplePC(pc uint64) {
	if !s.samplePC {
		return
	}
	s.pc[pc]++
}

func (s *Set) SampleRegisters(regs *[32]uint64) {
	if !s.sampleRegs {
		return
	}
	for i, v := range regs {
		s.regs[i][v]++
	}
}

func (s *Set) SampleInstruction(opcode string) {
	if !s.sampleInstr {
		return
	}
	s.instruction[opcode]++
}

// WritePCProfile serializes the PC histogram as a gzip-compressed pprof
// profile at path, viewable with `go tool pprof`.
func (s *Set) WritePCProfile(path string) error {
	pcs := make([]uint64, 0, len(s.pc))
	for pc := range s.pc {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "instructions", Unit: "count"},
		Period:     1,
	}

	for i, pc := range pcs {
		id := uint64(i) + 1
		name := "?"
		if s.Symbolicate != nil {
			name = s.Symbolicate(pc)
		}
		fn := &profile.Function{ID: id, Name: name}
		loc := &profile.Location{
			ID:      id,
			Address: pc,
			Line:    []profile.Line{{Function: fn, Line: 0}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.pc[pc]},
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "histogram: creating %s", path)
	}
	defer f.Close()
	if err := p.Write(f); err != nil {
		return errors.Wrapf(err, "histogram: writing profile to %s", path)
	}
	return nil
}

// InstructionCounts returns the execution count table for the exit-stats
// TOML dump, keyed by the string passed to SampleInstruction. The run loop
// passes the decoded Instruction's String form (raw bits, operand fields
// and handler name), so each distinct encoding is counted separately
// rather than per opcode.
func (s *Set) InstructionCounts() map[string]int64 {
	return s.instruction
}

// Adapter narrows a Set's uint64-keyed PC histogram to the generic UX the
// run loop's interp.Histograms interface requires, so the same Set serves
// either an RV32 or RV64 Hart without duplicating the counters.
type Adapter[UX xlen.UX] struct {
	*Set
}

func (a Adapter[UX]) SamplePC(pc UX) { a.Set.SamplePC(uint64(pc)) }
