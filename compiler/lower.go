package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/stack"
)

var log = commonlog.GetLogger("tapec.compiler")

// ---------------------------------------------------------------------------
// Lowerer: stack bytecode to tape-relative macro-ops
// ---------------------------------------------------------------------------

// Lowerer tracks a single cursor, the current stack depth, while it walks
// bytecode. The tape pointer always sits at the cursor between
// instructions, one cell above the top of the expression stack, so every
// stack reference can be written as an offset from the pointer.
//
// A Lowerer is single use: after an error its state is undefined.
type Lowerer struct {
	frame    *stack.Frame
	depth    map[string]int // slot name -> depth of its first cell
	sizes    map[string]int
	cur      int
	reserved int // cells held by reserved slots
	scratch  arena
	base     int // cells below depth zero, used by program lowering
	ops      []bil.Op

	// Set by program lowering.
	block   string
	framed  bool
	control func(i int, in bytecode.Instr) error
}

// NewLowerer creates a lowerer for a function whose frame is described by
// frame. A nil frame accepts any reserve instruction.
func NewLowerer(frame *stack.Frame) *Lowerer {
	return &Lowerer{
		frame: frame,
		depth: make(map[string]int),
		sizes: make(map[string]int),
	}
}

// Lower lowers code with a fresh Lowerer.
func Lower(code []bytecode.Instr, frame *stack.Frame) ([]bil.Op, error) {
	return NewLowerer(frame).Lower(code)
}

// Lower appends the macro-ops for code and returns them. Control-flow
// instructions pass through as bil.Control.
func (l *Lowerer) Lower(code []bytecode.Instr) ([]bil.Op, error) {
	start := len(l.ops)
	for i, in := range code {
		if err := l.visit(i, in); err != nil {
			return nil, err
		}
	}
	return append([]bil.Op(nil), l.ops[start:]...), nil
}

// Depth returns the current stack depth, frame slots included.
func (l *Lowerer) Depth() int { return l.cur }

// Extent returns the number of cells above the starting pointer that the
// lowered code may touch, scratch cells included.
func (l *Lowerer) Extent() int { return l.base + l.scratch.high }

// SlotDepth returns the depth of a reserved slot's first cell.
func (l *Lowerer) SlotDepth(name string) (int, bool) {
	d, ok := l.depth[name]
	return d, ok
}

func (l *Lowerer) visit(i int, in bytecode.Instr) error {
	log.Debugf("visiting %d: %s (depth %d)", i, in, l.cur)

	switch in := in.(type) {
	case bytecode.Reserve:
		if err := l.checkFrame(in.Name, in.Size); err != nil {
			return l.fail(i, in, err)
		}
		if l.framed {
			return nil
		}
		if _, ok := l.depth[in.Name]; ok {
			return l.fail(i, in, fmt.Errorf("slot %q already reserved: %w", in.Name, ErrFrameMismatch))
		}
		if in.Size <= 0 {
			return l.fail(i, in, fmt.Errorf("slot size %d: %w", in.Size, ErrUnsupportedOperand))
		}
		l.depth[in.Name] = l.cur
		l.sizes[in.Name] = in.Size
		l.cur += in.Size
		l.reserved += in.Size
		l.scratch.reach(l.cur)
		return l.emit(i, in, bil.Go{Delta: in.Size})

	case bytecode.Unreserve:
		if err := l.checkFrame(in.Name, in.Size); err != nil {
			return l.fail(i, in, err)
		}
		if l.framed {
			return nil
		}
		size, ok := l.sizes[in.Name]
		if !ok {
			return l.fail(i, in, fmt.Errorf("slot %q: %w", in.Name, ErrUnknownSymbol))
		}
		if size != in.Size {
			return l.fail(i, in, fmt.Errorf("slot %q has size %d, unreserving %d: %w", in.Name, size, in.Size, ErrFrameMismatch))
		}
		if l.cur-size < 0 {
			return l.fail(i, in, ErrNegativeDepth)
		}
		delete(l.depth, in.Name)
		delete(l.sizes, in.Name)
		l.cur -= size
		l.reserved -= size
		return l.emit(i, in, bil.Go{Delta: -size})

	case bytecode.Push:
		v, err := parseLiteral(in.Operand)
		if err != nil {
			return l.fail(i, in, err)
		}
		l.cur++
		l.scratch.reach(l.cur)
		return l.emit(i, in, bil.Add{Dst: 0, Count: v}, bil.Go{Delta: 1})

	case bytecode.Pop:
		d, ok := l.depth[in.Name]
		if !ok {
			return l.fail(i, in, fmt.Errorf("slot %q: %w", in.Name, ErrUnknownSymbol))
		}
		if err := l.need(1); err != nil {
			return l.fail(i, in, err)
		}
		// The slot is cleared before the move, so pop stores rather than
		// accumulates into it.
		l.cur--
		off := d - l.cur
		return l.emit(i, in, bil.Go{Delta: -1}, bil.Zero{Dst: off}, bil.Move{Dst: off, Src: 0})

	case bytecode.AddC:
		if err := l.need(2); err != nil {
			return l.fail(i, in, err)
		}
		l.cur--
		return l.emit(i, in, bil.Move{Dst: -2, Src: -1}, bil.Go{Delta: -1})

	case bytecode.SubC:
		if err := l.need(2); err != nil {
			return l.fail(i, in, err)
		}
		l.cur--
		return l.emit(i, in, bil.Unmove{Dst: -2, Src: -1}, bil.Go{Delta: -1})

	case bytecode.Dup:
		if err := l.need(1); err != nil {
			return l.fail(i, in, err)
		}
		s := l.scratch.take(l.cur, 2)
		l.cur++
		return l.emit(i, in, bil.Copy{Dst: s[0], Src: -1, Work: s[1]}, bil.Go{Delta: 1})

	case bytecode.Not:
		if err := l.need(1); err != nil {
			return l.fail(i, in, err)
		}
		s := l.scratch.take(l.cur, 1)
		return l.emit(i, in, bil.Move{Dst: s[0], Src: -1}, bil.IsZero{Dst: -1, Src: s[0]})

	case bytecode.And, bytecode.Or, bytecode.Xor:
		if err := l.need(2); err != nil {
			return l.fail(i, in, err)
		}
		s := l.scratch.take(l.cur, 3)
		ops := []bil.Op{bil.Move{Dst: s[0], Src: -2}, bil.Move{Dst: s[1], Src: -1}}
		srcs := []int{s[0], s[1]}
		switch in.(type) {
		case bytecode.And:
			ops = append(ops, bil.And{Dst: -2, Srcs: srcs, Work: s[2]})
		case bytecode.Or:
			ops = append(ops,
				bil.Or{Dst: s[2], Srcs: srcs},
				bil.IsZero{Dst: -2, Src: s[2], Negated: true})
		case bytecode.Xor:
			ops = append(ops, bil.Xor{Dst: -2, Srcs: srcs, Work: s[2]})
		}
		l.cur--
		return l.emit(i, in, append(ops, bil.Go{Delta: -1})...)

	case bytecode.Eq:
		if err := l.need(2); err != nil {
			return l.fail(i, in, err)
		}
		s := l.scratch.take(l.cur, 1)
		l.cur--
		return l.emit(i, in,
			bil.Move{Dst: s[0], Src: -2},
			bil.IsEq{Dst: -2, First: s[0], Second: -1},
			bil.Go{Delta: -1})

	case bytecode.Out:
		if err := l.need(1); err != nil {
			return l.fail(i, in, err)
		}
		l.cur--
		return l.emit(i, in, bil.Go{Delta: -1}, bil.Literal{Text: "."}, bil.Zero{Dst: 0})

	case bytecode.In:
		l.cur++
		l.scratch.reach(l.cur)
		return l.emit(i, in, bil.Literal{Text: ","}, bil.Go{Delta: 1})

	case bytecode.Label, bytecode.Jump, bytecode.Cond:
		if l.control != nil {
			return l.control(i, in)
		}
		return l.emit(i, in, bil.Control{Instr: in})
	}
	return l.fail(i, in, fmt.Errorf("%T: %w", in, ErrUnsupportedOpcode))
}

func (l *Lowerer) fail(i int, in bytecode.Instr, err error) error {
	return &LoweringError{Block: l.block, Index: i, Instr: in, Err: err}
}

// emit validates ops and appends them to the output.
func (l *Lowerer) emit(i int, in bytecode.Instr, ops ...bil.Op) error {
	for _, op := range ops {
		if err := bil.Validate(op); err != nil {
			return l.fail(i, in, err)
		}
	}
	l.ops = append(l.ops, ops...)
	return nil
}

// need checks that the expression stack holds at least n cells above the
// reserved slots. A short stack is always an underflow; ErrNegativeDepth is
// left to unreserve.
func (l *Lowerer) need(n int) error {
	if l.cur-l.reserved < n {
		return fmt.Errorf("need %d cells, have %d: %w", n, l.cur-l.reserved, ErrStackUnderflow)
	}
	return nil
}

// checkFrame verifies a reserve or unreserve against the declared frame.
func (l *Lowerer) checkFrame(name string, size int) error {
	if l.frame == nil {
		return nil
	}
	want, ok := l.frame.Size(name)
	if !ok {
		return fmt.Errorf("slot %q not in frame %s: %w", name, l.frame, ErrFrameMismatch)
	}
	if want != size {
		return fmt.Errorf("slot %q has size %d in frame, got %d: %w", name, want, size, ErrFrameMismatch)
	}
	return nil
}

// parseLiteral decodes a char-sized literal such as "65c" or "-1c".
func parseLiteral(operand string) (int, error) {
	digits, ok := strings.CutSuffix(operand, "c")
	if !ok {
		return 0, fmt.Errorf("%q: only char-sized literals are supported: %w", operand, ErrUnsupportedOperand)
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%q: not a number: %w", operand, ErrUnsupportedOperand)
	}
	if v < -128 || v > 255 {
		return 0, fmt.Errorf("%q: out of byte range: %w", operand, ErrUnsupportedOperand)
	}
	return v, nil
}
