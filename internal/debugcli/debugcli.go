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

// Package debugcli is the interactive breakpoint debugger the run loop
// calls into on ebreak or a pending SIGINT. It puts the host terminal into raw mode to read
// single-key commands rather than line-buffered ones.
package debugcli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/rv8sim/rv8sim/internal/proc"
	"github.com/rv8sim/rv8sim/internal/xlen"
)

// Debugger implements interp.DebugHook[UX]. It is only safe to use from
// one Hart's run loop: like the rest of the simulator, it assumes a
// single thread of execution.
type Debugger[UX xlen.UX] struct {
	In  *os.File
	Out io.Writer

	Symbolicate func(pc UX) string

	fd       int
	oldState *term.State
}

// New returns a Debugger reading single keys from in (normally os.Stdin)
// if it is a terminal; otherwise commands fall back to unbuffered reads
// without raw mode, so piped input (e.g. from a test) still works.
func New[UX xlen.UX](in *os.File, out io.Writer) *Debugger[UX] {
	return &Debugger[UX]{In: in, Out: out, fd: int(in.Fd())}
}

func (d *Debugger[UX]) enterRaw() {
	if !term.IsTerminal(d.fd) {
		return
	}
	st, err := term.MakeRaw(d.fd)
	if err != nil {
		return
	}
	d.oldState = st
}

func (d *Debugger[UX]) exitRaw() {
	if d.oldState == nil {
		return
	}
	term.Restore(d.fd, d.oldState)
	d.oldState = nil
}

// Break is called by the run loop at an ebreak or a pending host SIGINT.
// It returns resume=false on a "quit" command.
func (d *Debugger[UX]) Break(p *proc.Proc[UX]) (resume bool, err error) {
	d.enterRaw()
	defer d.exitRaw()

	buf := make([]byte, 1)
	for {
		d.printPrompt(p)
		n, rerr := d.In.Read(buf)
		if rerr != nil || n == 0 {
			return false, rerr
		}
		switch buf[0] {
		case 'c', 'C':
			return true, nil
		case 's', 'S', '\r', '\n':
			return true, nil
		case 'r', 'R':
			d.printRegisters(p)
		case 'q', 'Q':
			return false, nil
		default:
			fmt.Fprintf(d.Out, "\r\ncommands: (s)tep, (c)ontinue, (r)egisters, (q)uit\r\n")
		}
	}
}

func (d *Debugger[UX]) printPrompt(p *proc.Proc[UX]) {
	sym := ""
	if d.Symbolicate != nil {
		sym = " " + d.Symbolicate(p.PC)
	}
	fmt.Fprintf(d.Out, "\r\nrv8sim> pc=%#x%s ", uint64(p.PC), sym)
}

func (d *Debugger[UX]) printRegisters(p *proc.Proc[UX]) {
	for i := 0; i < proc.RegCount; i += 4 {
		fmt.Fprintf(d.Out, "\r\n")
		for j := i; j < i+4 && j < proc.RegCount; j++ {
			fmt.Fprintf(d.Out, "x%-2d=%#018x ", j, p.Reg(j))
		}
	}
	fmt.Fprintf(d.Out, "\r\n")
}
