// Package bil defines the tape-relative macro-op IR that sits between stack
// bytecode and primitive tape instructions.
//
// Every positional operand of a macro-op is an offset from the tape pointer
// at the moment the op starts executing. Apart from Go and Literal, every op
// leaves the pointer where it found it, so a sequence of ops composes by plain
// offset arithmetic without anyone tracking the absolute pointer.
package bil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/tapec/pkg/bytecode"
)

// Op is a macro-op. The set of implementations is closed: every variant lives
// in this file and implements Shift, so adding a variant without teaching it
// how to rebase fails to compile.
type Op interface {
	String() string
	// Shift returns the op with every positional operand moved by delta.
	// Running op.Shift(-k) with the pointer k cells to the right of the
	// original entry position touches exactly the same cells as op.
	Shift(delta int) Op
	op() // marker method
}

// Go moves the pointer by Delta cells.
type Go struct {
	Delta int
}

// Add adds Count (mod 256) to the cell at Dst.
type Add struct {
	Dst   int
	Count int
}

// Move drains Src into Dst: Dst += Src, Src = 0.
type Move struct {
	Dst int
	Src int
}

// Unmove drains Src out of Dst: Dst -= Src, Src = 0.
type Unmove struct {
	Dst int
	Src int
}

// Zero clears the cell at Dst.
type Zero struct {
	Dst int
}

// Copy adds Src into Dst without destroying Src. Work must be zero on entry
// and is zero again on exit.
type Copy struct {
	Dst  int
	Src  int
	Work int
}

// IsZero adds 1 to Dst if Src is zero (or, when Negated, if Src is nonzero).
// Src is drained unless two zeroed Preserve cells are supplied, in which case
// Src is tested through a copy and left unchanged.
type IsZero struct {
	Dst      int
	Src      int
	Negated  bool
	Preserve []int
}

// And sets Dst to 1 if every cell in Srcs is nonzero. Sources are drained;
// Work must be zero on entry and is zero on exit.
type And struct {
	Dst  int
	Srcs []int
	Work int
}

// Or adds 1 to Dst for each nonzero source, draining the sources. The result
// is a count, not a boolean; follow with a negated IsZero to normalize.
type Or struct {
	Dst  int
	Srcs []int
}

// Xor toggles Dst (which must hold 0 or 1) once per nonzero source, draining
// the sources. Starting from 0 this leaves the parity of the nonzero count.
type Xor struct {
	Dst  int
	Srcs []int
	Work int
}

// IsEq adds 1 to Dst if First and Second hold the same value. Without Work
// both operands are drained; with two zeroed Work cells they are preserved.
type IsEq struct {
	Dst    int
	First  int
	Second int
	Work   []int
}

// Cond runs Body once if Src is nonzero and drains Src. Body offsets are
// relative to the Cond's own entry position and Body must be pointer-neutral.
type Cond struct {
	Src  int
	Body []Op
}

// Loop runs Body while Src is nonzero. Body offsets are relative to the
// Loop's entry position and Body must be pointer-neutral.
type Loop struct {
	Src  int
	Body []Op
}

// Branch runs Then if Src is nonzero and Else otherwise, draining Src. Work
// must be zero on entry and is zero on exit. Neither body may touch Src or
// Work.
type Branch struct {
	Src  int
	Work int
	Then []Op
	Else []Op
}

// Literal is raw tape-machine text run with the pointer At cells from the
// op's entry position. The pointer returns by -At afterwards, so a Literal
// whose text is balanced leaves the pointer where it found it.
type Literal struct {
	Text string
	At   int
}

// Control carries a control-flow instruction that straight-line lowering
// cannot resolve. It must be resolved before code generation.
type Control struct {
	Instr bytecode.Instr
}

func (Go) op()      {}
func (Add) op()     {}
func (Move) op()    {}
func (Unmove) op()  {}
func (Zero) op()    {}
func (Copy) op()    {}
func (IsZero) op()  {}
func (And) op()     {}
func (Or) op()      {}
func (Xor) op()     {}
func (IsEq) op()    {}
func (Cond) op()    {}
func (Loop) op()    {}
func (Branch) op()  {}
func (Literal) op() {}
func (Control) op() {}

// ---------------------------------------------------------------------------
// Rebasing
// ---------------------------------------------------------------------------

func (o Go) Shift(int) Op          { return o }
func (o Control) Shift(int) Op     { return o }
func (o Add) Shift(d int) Op       { return Add{Dst: o.Dst + d, Count: o.Count} }
func (o Move) Shift(d int) Op      { return Move{Dst: o.Dst + d, Src: o.Src + d} }
func (o Unmove) Shift(d int) Op    { return Unmove{Dst: o.Dst + d, Src: o.Src + d} }
func (o Zero) Shift(d int) Op      { return Zero{Dst: o.Dst + d} }
func (o Copy) Shift(d int) Op      { return Copy{Dst: o.Dst + d, Src: o.Src + d, Work: o.Work + d} }
func (o Or) Shift(d int) Op        { return Or{Dst: o.Dst + d, Srcs: shiftCells(o.Srcs, d)} }
func (o Cond) Shift(d int) Op      { return Cond{Src: o.Src + d, Body: ShiftAll(o.Body, d)} }
func (o Loop) Shift(d int) Op      { return Loop{Src: o.Src + d, Body: ShiftAll(o.Body, d)} }
func (o Literal) Shift(d int) Op   { return Literal{Text: o.Text, At: o.At + d} }

func (o IsZero) Shift(d int) Op {
	return IsZero{Dst: o.Dst + d, Src: o.Src + d, Negated: o.Negated, Preserve: shiftCells(o.Preserve, d)}
}

func (o And) Shift(d int) Op {
	return And{Dst: o.Dst + d, Srcs: shiftCells(o.Srcs, d), Work: o.Work + d}
}

func (o Xor) Shift(d int) Op {
	return Xor{Dst: o.Dst + d, Srcs: shiftCells(o.Srcs, d), Work: o.Work + d}
}

func (o IsEq) Shift(d int) Op {
	return IsEq{Dst: o.Dst + d, First: o.First + d, Second: o.Second + d, Work: shiftCells(o.Work, d)}
}

func (o Branch) Shift(d int) Op {
	return Branch{Src: o.Src + d, Work: o.Work + d, Then: ShiftAll(o.Then, d), Else: ShiftAll(o.Else, d)}
}

// ShiftAll rebases a sequence of ops by delta.
func ShiftAll(ops []Op, delta int) []Op {
	if ops == nil {
		return nil
	}
	out := make([]Op, len(ops))
	for i, o := range ops {
		out[i] = o.Shift(delta)
	}
	return out
}

func shiftCells(cells []int, d int) []int {
	if cells == nil {
		return nil
	}
	out := make([]int, len(cells))
	for i, c := range cells {
		out[i] = c + d
	}
	return out
}

// Displacement returns the net pointer movement of running ops in sequence.
// Only Go and Literal can move the pointer.
func Displacement(ops ...Op) int {
	n := 0
	for _, o := range ops {
		switch o := o.(type) {
		case Go:
			n += o.Delta
		case Literal:
			n += strings.Count(o.Text, ">") - strings.Count(o.Text, "<")
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func (o Go) String() string      { return fmt.Sprintf("go(%d)", o.Delta) }
func (o Add) String() string     { return fmt.Sprintf("add(%d, %d)", o.Dst, o.Count) }
func (o Move) String() string    { return fmt.Sprintf("move(%d, %d)", o.Dst, o.Src) }
func (o Unmove) String() string  { return fmt.Sprintf("unmove(%d, %d)", o.Dst, o.Src) }
func (o Zero) String() string    { return fmt.Sprintf("zero(%d)", o.Dst) }
func (o Copy) String() string    { return fmt.Sprintf("copy(%d, %d, %d)", o.Dst, o.Src, o.Work) }
func (o Control) String() string { return fmt.Sprintf("control(%s)", o.Instr) }

func (o Literal) String() string {
	if o.At != 0 {
		return fmt.Sprintf("literal(%q @%d)", o.Text, o.At)
	}
	return fmt.Sprintf("literal(%q)", o.Text)
}

func (o IsZero) String() string {
	name := "iszero"
	if o.Negated {
		name = "isnotzero"
	}
	if len(o.Preserve) > 0 {
		return fmt.Sprintf("%s(%d, %d, %s)", name, o.Dst, o.Src, cellList(o.Preserve))
	}
	return fmt.Sprintf("%s(%d, %d)", name, o.Dst, o.Src)
}

func (o And) String() string {
	return fmt.Sprintf("and(%d, %s, %d)", o.Dst, cellList(o.Srcs), o.Work)
}

func (o Or) String() string {
	return fmt.Sprintf("or(%d, %s)", o.Dst, cellList(o.Srcs))
}

func (o Xor) String() string {
	return fmt.Sprintf("xor(%d, %s, %d)", o.Dst, cellList(o.Srcs), o.Work)
}

func (o IsEq) String() string {
	if len(o.Work) > 0 {
		return fmt.Sprintf("iseq(%d, %d, %d, %s)", o.Dst, o.First, o.Second, cellList(o.Work))
	}
	return fmt.Sprintf("iseq(%d, %d, %d)", o.Dst, o.First, o.Second)
}

func (o Cond) String() string {
	return fmt.Sprintf("cond(%d, %s)", o.Src, opList(o.Body))
}

func (o Loop) String() string {
	return fmt.Sprintf("loop(%d, %s)", o.Src, opList(o.Body))
}

func (o Branch) String() string {
	return fmt.Sprintf("branch(%d, %d, %s, %s)", o.Src, o.Work, opList(o.Then), opList(o.Else))
}

func cellList(cells []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = strconv.Itoa(c)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func opList(ops []Op) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

// Listing renders ops one per line.
func Listing(ops []Op) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.String()
	}
	return out
}
