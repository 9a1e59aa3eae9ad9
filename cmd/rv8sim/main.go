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

// rv8sim is a user-mode RISC-V instruction set simulator: it loads a
// statically-linked RISC-V ELF executable, maps it into a soft MMU, and
// interprets it instruction by instruction against a proxied host ABI.
//
//	rv8sim [options] <elf_file> [<guest args>]
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/rv8sim/rv8sim/internal/config"
	"github.com/rv8sim/rv8sim/internal/debugcli"
	"github.com/rv8sim/rv8sim/internal/histogram"
	"github.com/rv8sim/rv8sim/internal/interp"
	"github.com/rv8sim/rv8sim/internal/loader"
	"github.com/rv8sim/rv8sim/internal/mem"
	"github.com/rv8sim/rv8sim/internal/mmu"
	"github.com/rv8sim/rv8sim/internal/pma"
	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/symtab"
	"github.com/rv8sim/rv8sim/internal/syscallproxy"
	"github.com/rv8sim/rv8sim/internal/xlen"

	"github.com/sirupsen/logrus"
)

const usageExitCode = 9

var (
	isa             = flag.StringP("isa", "i", "imafdc", "ISA name, one of i, ima, imac, imafd, imafdc (checked only; decoding does not depend on it)")
	logInstructions = flag.BoolP("log-instructions", "l", false, "enable per-instruction and trap logging")
	logOperands     = flag.BoolP("log-operands", "o", false, "also include operand values in the instruction log")
	symbolicate     = flag.BoolP("symbolicate", "S", false, "resolve logged PCs to symbol[+offset]")
	logMemoryMap    = flag.BoolP("log-memory-map", "m", false, "log Mem segment creation/destruction")
	logRegisters    = flag.BoolP("log-registers", "r", false, "dump integer registers per step")
	logExitStats    = flag.BoolP("log-exit-stats", "E", false, "print exit statistics to stderr")
	saveExitStats   = flag.StringP("save-exit-stats", "D", "", "write exit statistics as DIR/exit-stats.toml")
	histPC          = flag.BoolP("hist-pc", "P", false, "enable the PC histogram")
	histRegs        = flag.BoolP("hist-registers", "R", false, "enable the register-value histogram")
	histInstr       = flag.BoolP("hist-instructions", "I", false, "enable the instruction histogram")
	debug           = flag.BoolP("debug", "d", false, "enter the CLI debugger at the first ebreak")
	noPseudo        = flag.BoolP("no-pseudo", "x", false, "disable pseudo-instruction disassembly")
	seed            = flag.Int64P("seed", "s", 0, "seed the initial-register RNG (default: time-based)")
	pmaConfig       = flag.String("pma-config", "", "override the default PMA table from a TOML file")
	maxSteps        = flag.Int("max-steps", 0, "maximum instructions to execute (0 = unbounded)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options] <elf_file> [<guest args>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || !validISA(*isa) {
		flag.Usage()
		os.Exit(usageExitCode)
	}

	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rv8sim: %+v\n", err)
		os.Exit(1)
	}
}

func validISA(s string) bool {
	switch s {
	case "i", "ima", "imac", "imafd", "imafdc":
		return true
	default:
		return false
	}
}

func run(path string, guestArgs []string) error {
	is64, err := detect64(path)
	if err != nil {
		return err
	}
	if is64 {
		return runHart[uint64](path, guestArgs)
	}
	return runHart[uint32](path, guestArgs)
}

func detect64(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	var ident [5]byte
	if _, err := f.ReadAt(ident[:], 0); err != nil {
		return false, err
	}
	return ident[4] == 2, nil // EI_CLASS: ELFCLASS64
}

func runHart[UX xlen.UX](path string, guestArgs []string) error {
	log := logrus.New()
	if *logInstructions {
		log.SetLevel(logrus.TraceLevel)
	} else if *logMemoryMap {
		log.SetLevel(logrus.DebugLevel)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m := mem.New()

	img, err := loader.Load(m, f)
	if err != nil {
		return err
	}

	pmaTable := defaultPMATable()
	if *pmaConfig != "" {
		pmaTable, err = config.LoadPMATable(*pmaConfig)
		if err != nil {
			return err
		}
	}

	const memoryTop = uint64(0x80000000)
	argv := append([]string{path}, guestArgs...)
	sp, err := loader.BuildStack(m, memoryTop, img, argv, loader.DefaultEnvAllowList)
	if err != nil {
		return err
	}

	p := proc.New[UX](UX(img.Entry))
	regSeed := uint64(*seed)
	if !flag.CommandLine.Changed("seed") {
		regSeed = uint64(time.Now().UnixNano())
	}
	if err := loader.SeedRegisters(&p.Regs, regSeed); err != nil {
		return err
	}
	p.Regs[2] = sp // sp, set after seeding so the guest ABI frame's address survives
	if *logInstructions {
		p.Log |= proc.LogInstructions
	}
	if *logOperands {
		p.Log |= proc.LogOperands
	}
	if *logRegisters {
		p.Log |= proc.LogRegisters
	}

	mm := mmu.New[UX](pmaTable, m)
	h := interp.NewHart[UX](p, mm)
	h.Log = log
	h.Syscalls = syscallproxy.NewProxy[UX](mm, UX(0))

	var symtable *symtab.Table
	if *symbolicate {
		symtable, err = symtab.Load(f)
		if err != nil {
			return err
		}
		sym := func(pc UX) string { return symtable.Resolve(uint64(pc)) }
		h.Symbolicate = sym
	}

	if *debug {
		dbg := debugcli.New[UX](os.Stdin, os.Stderr)
		if symtable != nil {
			dbg.Symbolicate = func(pc UX) string { return symtable.Resolve(uint64(pc)) }
		}
		h.Debug = dbg
		interp.WatchSIGINT()
	}

	hist := histogram.New(*histPC, *histRegs, *histInstr)
	if *histPC || *histRegs || *histInstr {
		if symtable != nil {
			hist.Symbolicate = func(pc uint64) string { return symtable.Resolve(pc) }
		}
		h.Hist = histogram.Adapter[UX]{Set: hist}
	}

	if *logMemoryMap {
		for _, s := range m.Segments() {
			log.WithFields(logrus.Fields{"pa": s.PA, "length": s.Length}).Debug("segment mapped")
		}
	}

	runErr := h.Run(*maxSteps)

	exitCode := 0
	if ee, ok := runErr.(*interp.ExitError); ok {
		exitCode = ee.Code
		runErr = nil
	}

	if *saveExitStats != "" && *histPC {
		if err := os.MkdirAll(*saveExitStats, 0o755); err != nil {
			return err
		}
		if werr := hist.WritePCProfile(*saveExitStats + "/pc.pprof"); werr != nil {
			return werr
		}
	}

	if *logExitStats || *saveExitStats != "" {
		stats := config.ExitStats{
			Steps:       p.Steps,
			ExitCode:    exitCode,
			PC:          uint64(p.PC),
			Instruction: hist.InstructionCounts(),
		}
		if *logExitStats {
			fmt.Fprintf(os.Stderr, "steps=%d exit_code=%d final_pc=%#x\n", stats.Steps, stats.ExitCode, stats.PC)
		}
		if *saveExitStats != "" {
			if werr := config.WriteExitStats(*saveExitStats, stats); werr != nil {
				return werr
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// defaultPMATable: RAM is R+W+X+cacheable, with a carved-out device/IO
// hole below it.
func defaultPMATable() *pma.Table {
	t := pma.New(pma.DefaultCapacity)
	t.Add(pma.Entry{Base: 0, Length: 0x1000, Attrs: pma.Readable | pma.Writable | pma.Device})
	t.Add(pma.Entry{Base: 0x1000, Length: 0x7FFFF000, Attrs: pma.Unconstrained})
	return t
}
