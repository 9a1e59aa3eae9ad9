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

package interp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rv8sim/rv8sim/internal/mmu"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/trap"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Syscalls services a guest ecall using the A0-A5 register convention
//. Handle returns exited=true with the guest's requested exit
// code when the guest called the exit syscall.
type Syscalls[UX xlen.UX] interface {
	Handle(p *proc.Proc[UX]) (code int, exited bool, err error)
}

// DebugHook is the interface the run loop calls into on ebreak when the
// CLI debugger is enabled. Break returns
// resume=false to request termination ("quit").
type DebugHook[UX xlen.UX] interface {
	Break(p *proc.Proc[UX]) (resume bool, err error)
}

// Histograms receives per-step samples for the optional -P/-R/-I
// histograms.
type Histograms[UX xlen.UX] interface {
	SamplePC(pc UX)
	SampleRegisters(regs *[32]uint64)
	SampleInstruction(opcode string)
}

// Hart is one RISC-V hardware thread of execution: processor state, the
// MMU it issues fetches/loads/stores through, and the collaborators the
// run loop drives.
type Hart[UX xlen.UX] struct {
	Proc     *proc.Proc[UX]
	MMU      *mmu.MMU[UX]
	Syscalls Syscalls[UX]
	Debug    DebugHook[UX]
	Hist     Histograms[UX]
	Log      *logrus.Logger
	Symbolicate func(pc UX) string

	lastSize int // size in bytes of the instruction currently executing

	rviTable map[uint64]opFunc[UX]
	rvcTable map[uint64]opFunc[UX]
}

// opFunc is the type of a per-opcode semantic handler.
type opFunc[UX xlen.UX] func(*Hart[UX], *Instruction[UX]) flags

// NewHart returns a Hart ready to run, with its opcode dispatch tables
// built once up front rather than per instruction.
func NewHart[UX xlen.UX](p *proc.Proc[UX], m *mmu.MMU[UX]) *Hart[UX] {
	return &Hart[UX]{
		Proc:     p,
		MMU:      m,
		rviTable: buildRVITable[UX](),
		rvcTable: buildRVCTable[UX](),
	}
}

// ExitError is returned by Run when the guest requested termination, via
// either the exit syscall or the debugger's "quit" command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("guest exited with code %d", e.Code) }

// FaultError is returned by Run when an unrecoverable trap reaches the
// loop boundary: an access fault, an illegal instruction, or an ebreak
// with no debugger attached.
type FaultError struct {
	*trap.Fault
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("unhandled trap: %s", e.Fault.Error())
}

// Run drives the fetch-decode-execute cycle for up to maxSteps
// instructions (0 means unbounded), stopping at the first terminal
// condition: the exit syscall, an unrecovered fault, or a
// debugger quit.
func (h *Hart[UX]) Run(maxSteps int) error {
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		if sigintRequested() && h.Debug != nil {
			resume, err := h.Debug.Break(h.Proc)
			if err != nil {
				return err
			}
			if !resume {
				return &ExitError{Code: 130}
			}
		}

		exit, err := h.step()
		if exit != nil {
			return exit
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// step executes exactly one instruction, translating any trap.Fault
// panicked by the MMU, the decoder, or an ecall/ebreak handler into either
// a terminal *ExitError/*FaultError or nil (meaning: keep looping).
//
// This recover is the interpreter's only trap boundary: no caller between
// a faulting mmu.Load/Store and here needs to check or propagate an error
// for that fault.
func (h *Hart[UX]) step() (exit error, err error) {
	defer func() {
		// recover() only stops a panic when called directly by the deferred
		// function, so it is called here rather than through a helper.
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(*trap.Fault)
		if !ok {
			panic(r)
		}
		exit, err = h.handleTrap(f)
	}()

	h.Proc.BadAddr = 0
	pc := h.Proc.PC

	bits, size := h.MMU.Fetch(h.Proc, pc)
	h.lastSize = size

	in, derr := h.decode(bits, size)
	if derr != nil {
		trap.Raise(trap.IllegalInstruction, uint64(pc), uint64(pc))
	}

	if h.Log != nil && h.Proc.Log&proc.LogInstructions != 0 {
		h.trace(pc, in)
	}

	fl := in.fn(h, in)
	h.Proc.Steps++
	if !fl.updatedRDINSTRET {
		h.Proc.CSR[csrRDINSTRET]++
	}
	if !fl.updatedPC {
		h.Proc.PC += UX(size)
	}

	if h.Hist != nil {
		h.Hist.SamplePC(pc)
		h.Hist.SampleRegisters(&h.Proc.Regs)
		h.Hist.SampleInstruction(in.String())
	}

	return nil, nil
}

func (h *Hart[UX]) handleTrap(f *trap.Fault) (exit error, err error) {
	switch f.Cause {
	case trap.EcallFromU, trap.EcallFromS, trap.EcallFromM:
		code, exited, serr := h.Syscalls.Handle(h.Proc)
		if serr != nil {
			return nil, serr
		}
		if exited {
			return &ExitError{Code: code}, nil
		}
		// ecall is never compressed; the trap short-circuited the normal
		// post-execute PC advance, so do it here.
		h.Proc.PC += 4
		return nil, nil

	case trap.Ebreak:
		if h.Debug == nil {
			return nil, &FaultError{f}
		}
		resume, derr := h.Debug.Break(h.Proc)
		if derr != nil {
			return nil, derr
		}
		if !resume {
			return &ExitError{Code: 0}, nil
		}
		h.Proc.PC += UX(h.lastSize)
		return nil, nil

	default:
		if h.Log != nil {
			h.Log.WithFields(logrus.Fields{
				"cause":   f.Cause.String(),
				"pc":      fmt.Sprintf("%#x", f.PC),
				"badaddr": fmt.Sprintf("%#x", f.BadAddr),
			}).Error("unhandled trap")
		}
		return nil, &FaultError{f}
	}
}

func (h *Hart[UX]) trace(pc UX, in *Instruction[UX]) {
	fields := logrus.Fields{"pc": fmt.Sprintf("%#x", uint64(pc))}
	if h.Symbolicate != nil {
		fields["sym"] = h.Symbolicate(pc)
	}
	if h.Proc.Log&proc.LogOperands != 0 {
		fields["instr"] = in.String()
	}
	h.Log.WithFields(fields).Trace("step")
	if h.Proc.Log&proc.LogRegisters != 0 {
		h.Log.WithField("regs", h.Proc.Regs).Trace("registers")
	}
}
