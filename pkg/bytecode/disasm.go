package bytecode

import (
	"fmt"
	"strings"
)

// Format renders instructions in the text format accepted by Parse.
// Labels are written flush left and everything else is indented.
func Format(code []Instr) string {
	var sb strings.Builder
	for _, in := range code {
		if lbl, ok := in.(Label); ok {
			sb.WriteString(lbl.Name)
			sb.WriteString(":\n")
			continue
		}
		sb.WriteString("    ")
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Disassemble returns a human-readable listing of a partitioned program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a program listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Entry: %s\n", p.Entry))
	sb.WriteString(fmt.Sprintf("; Blocks: %d\n\n", len(p.Order)))

	for i, label := range p.Order {
		b := p.Blocks[label]
		sb.WriteString(fmt.Sprintf("; block %d", i+1))
		switch {
		case b.IsConditional():
			sb.WriteString(fmt.Sprintf(" -> %s | %s", b.TrueExit, b.FalseExit))
		case b.TrueExit != "":
			sb.WriteString(fmt.Sprintf(" -> %s", b.TrueExit))
		default:
			sb.WriteString(" -> halt")
		}
		sb.WriteString("\n")

		for j, in := range b.Instrs {
			if lbl, ok := in.(Label); ok {
				sb.WriteString(fmt.Sprintf("%s:\n", lbl.Name))
				continue
			}
			info := GetOpcodeInfo(in.Opcode())
			sb.WriteString(fmt.Sprintf("%04d  %-24s ; pop %d push %d\n",
				j, in.String(), info.StackPop, info.StackPush))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
