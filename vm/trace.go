package vm

import (
	"fmt"
	"io"
	"strings"
)

// DumpCells writes cells 0 through until inclusive on one line. The cell
// under the pointer is written as ">v<", every other cell as "[v]".
func (m *Machine) DumpCells(w io.Writer, until int) {
	if until >= len(m.cells) {
		until = len(m.cells) - 1
	}
	var sb strings.Builder
	for i := 0; i <= until; i++ {
		if i == m.ptr {
			fmt.Fprintf(&sb, ">%d< ", m.cells[i])
		} else {
			fmt.Fprintf(&sb, "[%d] ", m.cells[i])
		}
	}
	sb.WriteByte('\n')
	io.WriteString(w, sb.String())
}

// DumpState writes the trace block for the instruction at ip: a caret line
// marking ip, the code, the open loop stack and the tape up to the farthest
// interesting cell.
func (m *Machine) DumpState(w io.Writer, code string, ip int) {
	m.traceState(w, code, ip)
}

func (m *Machine) traceState(w io.Writer, code string, ip int) {
	fmt.Fprintf(w, "%sv\n", strings.Repeat(" ", ip))
	fmt.Fprintf(w, "%s\n", code)
	fmt.Fprintf(w, "loops: %v\n", m.loops)
	m.DumpCells(w, max(m.farthest, m.ptr))
	fmt.Fprintln(w)
}
