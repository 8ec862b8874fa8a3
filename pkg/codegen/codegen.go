// Package codegen expands tape-relative macro-ops into primitive tape-machine
// instructions. Each macro-op becomes a tree of Nodes that remembers which op
// produced which text; Flatten turns the tree into the final program.
package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/tapec/pkg/bil"
)

var log = commonlog.GetLogger("tapec.codegen")

// ErrUnresolvedControl is returned when a control-flow instruction reaches
// the generator. Control flow must be resolved by program lowering first.
var ErrUnresolvedControl = errors.New("unresolved control-flow op")

// ErrUnknownOp is returned for macro-op types the generator does not know.
var ErrUnknownOp = errors.New("unknown macro-op")

// Error reports a macro-op that could not be expanded.
type Error struct {
	Op  bil.Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codegen: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Generate expands every op and returns the flattened program alongside the
// per-op trees.
func Generate(ops []bil.Op) (string, []*Node, error) {
	nodes, err := ExpandAll(ops)
	if err != nil {
		return "", nil, err
	}
	code := Flatten(nodes...)
	log.Debugf("generated %d instructions from %d macro-ops", len(code), len(ops))
	return code, nodes, nil
}

// ExpandAll expands each op in order.
func ExpandAll(ops []bil.Op) ([]*Node, error) {
	nodes := make([]*Node, 0, len(ops))
	for _, op := range ops {
		n, err := Expand(op)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Expand turns a single macro-op into its instruction tree.
//
// Operand disjointness (for example Copy's work cell) is the caller's
// contract and is not checked here; run bil.Validate first when the ops come
// from an untrusted source.
func Expand(op bil.Op) (*Node, error) {
	switch o := op.(type) {
	case bil.Go:
		return &Node{Op: o, Body: Leaf(goText(o.Delta))}, nil
	case bil.Literal:
		if o.At == 0 {
			return &Node{Op: o, Body: Leaf(o.Text)}, nil
		}
		return &Node{Op: o, Body: Leaf(goText(o.At) + o.Text + goText(-o.At))}, nil
	case bil.Control:
		return nil, &Error{Op: o, Err: ErrUnresolvedControl}
	}

	b := &builder{}
	switch o := op.(type) {
	case bil.Add:
		b.op(bil.Go{Delta: o.Dst})
		b.text(addText(o.Count))
		b.op(bil.Go{Delta: -o.Dst})

	case bil.Move:
		b.drain(o.Src, target{o.Dst, '+'})
		b.op(bil.Go{Delta: -o.Src})

	case bil.Unmove:
		b.drain(o.Src, target{o.Dst, '-'})
		b.op(bil.Go{Delta: -o.Src})

	case bil.Zero:
		b.op(bil.Go{Delta: o.Dst})
		b.text("[-]")
		b.op(bil.Go{Delta: -o.Dst})

	case bil.Copy:
		// Spread src into work and dst, then drain work back into src.
		b.drain(o.Src, target{o.Work, '+'}, target{o.Dst, '+'})
		b.op(bil.Move{Dst: 0, Src: o.Work - o.Src})
		b.op(bil.Go{Delta: -o.Src})

	case bil.IsZero:
		if len(o.Preserve) == 2 {
			b.op(bil.Copy{Dst: o.Preserve[0], Src: o.Src, Work: o.Preserve[1]})
			b.op(bil.IsZero{Dst: o.Dst, Src: o.Preserve[0], Negated: o.Negated})
			break
		}
		if len(o.Preserve) != 0 {
			return nil, &Error{Op: o, Err: bil.ErrTooFewOperands}
		}
		step := -1
		if o.Negated {
			step = 1
		} else {
			b.op(bil.Add{Dst: o.Dst, Count: 1})
		}
		b.op(bil.Cond{Src: o.Src, Body: []bil.Op{bil.Add{Dst: o.Dst, Count: step}}})

	case bil.And:
		if len(o.Srcs) == 0 {
			return nil, &Error{Op: o, Err: bil.ErrEmptyOperandList}
		}
		b.op(bil.Add{Dst: o.Work, Count: len(o.Srcs)})
		for _, src := range o.Srcs {
			b.op(bil.Cond{Src: src, Body: []bil.Op{bil.Add{Dst: o.Work, Count: -1}}})
		}
		b.op(bil.IsZero{Dst: o.Dst, Src: o.Work})

	case bil.Or:
		if len(o.Srcs) == 0 {
			return nil, &Error{Op: o, Err: bil.ErrEmptyOperandList}
		}
		for _, src := range o.Srcs {
			b.op(bil.Cond{Src: src, Body: []bil.Op{bil.Add{Dst: o.Dst, Count: 1}}})
		}

	case bil.Xor:
		if len(o.Srcs) < 2 {
			return nil, &Error{Op: o, Err: bil.ErrTooFewOperands}
		}
		// Toggle dst: park it in work, then dst = (work == 0).
		toggle := []bil.Op{
			bil.Move{Dst: o.Work, Src: o.Dst},
			bil.IsZero{Dst: o.Dst, Src: o.Work},
		}
		for _, src := range o.Srcs {
			b.op(bil.Cond{Src: src, Body: toggle})
		}

	case bil.IsEq:
		switch len(o.Work) {
		case 0:
			b.op(bil.Unmove{Dst: o.First, Src: o.Second})
			b.op(bil.IsZero{Dst: o.Dst, Src: o.First})
		case 2:
			w0, w1 := o.Work[0], o.Work[1]
			b.op(bil.Copy{Dst: w0, Src: o.First, Work: w1})
			b.drain(o.Second, target{w0, '-'}, target{w1, '+'})
			b.op(bil.Go{Delta: -o.Second})
			b.op(bil.Move{Dst: o.Second, Src: w1})
			b.op(bil.IsZero{Dst: o.Dst, Src: w0})
		default:
			return nil, &Error{Op: o, Err: bil.ErrTooFewOperands}
		}

	case bil.Cond:
		if d := bil.Displacement(o.Body...); d != 0 {
			return nil, &Error{Op: o, Err: bil.ErrBodyDisplacement}
		}
		b.op(bil.Go{Delta: o.Src})
		b.text("[")
		for _, inner := range o.Body {
			b.op(inner.Shift(-o.Src))
		}
		b.op(bil.Zero{Dst: 0})
		b.text("]")
		b.op(bil.Go{Delta: -o.Src})

	case bil.Loop:
		if d := bil.Displacement(o.Body...); d != 0 {
			return nil, &Error{Op: o, Err: bil.ErrBodyDisplacement}
		}
		b.op(bil.Go{Delta: o.Src})
		b.text("[")
		for _, inner := range o.Body {
			b.op(inner.Shift(-o.Src))
		}
		b.text("]")
		b.op(bil.Go{Delta: -o.Src})

	case bil.Branch:
		then := append(append([]bil.Op(nil), o.Then...), bil.Add{Dst: o.Work, Count: -1})
		b.op(bil.Add{Dst: o.Work, Count: 1})
		b.op(bil.Cond{Src: o.Src, Body: then})
		b.op(bil.Cond{Src: o.Work, Body: o.Else})

	default:
		return nil, &Error{Op: op, Err: ErrUnknownOp}
	}

	if b.err != nil {
		var ce *Error
		if errors.As(b.err, &ce) {
			return nil, b.err
		}
		return nil, &Error{Op: op, Err: b.err}
	}
	return &Node{Op: op, Body: Branch(b.children)}, nil
}

// builder accumulates the children of one expansion. The first error sticks
// and later calls become no-ops.
type builder struct {
	children []*Node
	err      error
}

func (b *builder) text(s string) {
	if b.err != nil {
		return
	}
	b.children = append(b.children, &Node{Body: Leaf(s)})
}

func (b *builder) op(o bil.Op) {
	if b.err != nil {
		return
	}
	n, err := Expand(o)
	if err != nil {
		b.err = err
		return
	}
	b.children = append(b.children, n)
}

type target struct {
	off  int
	sign byte
}

// drain emits a loop at src that decrements src and applies each target's
// sign once per iteration. The pointer is left at src.
func (b *builder) drain(src int, targets ...target) {
	b.op(bil.Go{Delta: src})
	b.text("[-")
	pos := src
	for _, t := range targets {
		b.op(bil.Go{Delta: t.off - pos})
		b.text(string(t.sign))
		pos = t.off
	}
	b.op(bil.Go{Delta: src - pos})
	b.text("]")
}

func goText(delta int) string {
	if delta < 0 {
		return strings.Repeat("<", -delta)
	}
	return strings.Repeat(">", delta)
}

func addText(count int) string {
	if count < 0 {
		return strings.Repeat("-", -count)
	}
	return strings.Repeat("+", count)
}
