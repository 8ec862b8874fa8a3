package compiler

import (
	"fmt"

	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/codegen"
	"github.com/chazu/tapec/pkg/stack"
)

// Output is everything a build produces.
type Output struct {
	Ops    []bil.Op
	Nodes  []*codegen.Node
	Code   string
	Extent int // cells the program may touch to the right of its start
}

// Build lowers straight-line code and generates tape code for it. Code
// containing control flow fails in the generator; use Compile or
// BuildProgram for that.
func Build(code []bytecode.Instr, frame *stack.Frame) (*Output, error) {
	l := NewLowerer(frame)
	ops, err := l.Lower(code)
	if err != nil {
		return nil, err
	}
	return generate(ops, l.Extent())
}

// BuildProgram lowers a partitioned program and generates tape code for it.
func BuildProgram(p *bytecode.Program, frame *stack.Frame) (*Output, error) {
	l := NewLowerer(frame)
	ops, err := l.LowerProgram(p)
	if err != nil {
		return nil, err
	}
	return generate(ops, l.Extent())
}

// Compile builds code, partitioning it into basic blocks first when it
// contains any control-flow instruction.
func Compile(code []bytecode.Instr, frame *stack.Frame) (*Output, error) {
	if !HasControl(code) {
		return Build(code, frame)
	}
	p, err := bytecode.BuildProgram(code, bytecode.NewLabeler("block"))
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	return BuildProgram(p, frame)
}

// HasControl reports whether code contains a control-flow instruction.
func HasControl(code []bytecode.Instr) bool {
	for _, in := range code {
		if in.Opcode().IsControl() {
			return true
		}
	}
	return false
}

func generate(ops []bil.Op, extent int) (*Output, error) {
	text, nodes, err := codegen.Generate(ops)
	if err != nil {
		return nil, err
	}
	return &Output{Ops: ops, Nodes: nodes, Code: text, Extent: extent}, nil
}
