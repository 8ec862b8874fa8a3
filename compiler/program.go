package compiler

import (
	"fmt"

	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/stack"
)

// ---------------------------------------------------------------------------
// Program lowering: basic blocks dispatched on a program counter cell
// ---------------------------------------------------------------------------

// The tape has no indirect jumps, so a program runs as one loop that keeps
// the number of the next block in a pc cell. Layout, left to right:
//
//	[pc] [sel] [tmp] [frame slots ...] [expression stack ...]
//
// Depth zero is the first frame cell; pc, sel and tmp sit at depths -3, -2
// and -1. Block numbers start at 1 for the entry block; pc == 0 halts.
const (
	pcDepth     = -3
	selDepth    = -2
	tmpDepth    = -1
	controlSize = 3

	// MaxBlocks is the largest number of blocks a pc cell can address.
	MaxBlocks = 255
)

// LowerProgram lowers a partitioned program with a fresh Lowerer.
func LowerProgram(p *bytecode.Program, frame *stack.Frame) ([]bil.Op, error) {
	return NewLowerer(frame).LowerProgram(p)
}

// LowerProgram lowers p into a single pointer-neutral dispatch loop. The
// frame is reserved once up front; reserve and unreserve instructions inside
// blocks must agree with it and emit nothing. If the Lowerer has no frame,
// one is built from the reserve instructions of every block. Each block must
// leave the expression stack empty.
func (l *Lowerer) LowerProgram(p *bytecode.Program) ([]bil.Op, error) {
	if err := p.Validate(); err != nil {
		return nil, &LoweringError{Err: err}
	}
	if len(p.Order) > MaxBlocks {
		return nil, &LoweringError{Err: fmt.Errorf("%d blocks, limit %d: %w", len(p.Order), MaxBlocks, ErrTooManyBlocks)}
	}

	if l.frame == nil {
		var all []bytecode.Instr
		for _, label := range p.Order {
			all = append(all, p.Blocks[label].Instrs...)
		}
		frame, err := stack.FromBytecode(all)
		if err != nil {
			return nil, &LoweringError{Err: err}
		}
		l.frame = frame
	}

	numbers := blockNumbers(p)
	start := len(l.ops)
	l.base = controlSize
	l.ops = append(l.ops, bil.Go{Delta: controlSize})
	for i, in := range l.frame.Reserves() {
		if err := l.visit(i, in); err != nil {
			return nil, err
		}
	}
	l.framed = true
	height := l.cur
	pc, sel, tmp := pcDepth-height, selDepth-height, tmpDepth-height

	var dispatch []bil.Op
	for _, label := range dispatchOrder(p) {
		body, err := l.lowerBlock(p.Blocks[label], numbers, height)
		if err != nil {
			return nil, err
		}
		dispatch = append(dispatch,
			bil.Copy{Dst: sel, Src: pc, Work: tmp},
			bil.Add{Dst: sel, Count: -numbers[label]},
			bil.IsZero{Dst: tmp, Src: sel},
			bil.Cond{Src: tmp, Body: body},
		)
	}

	tail := []bil.Op{
		bil.Add{Dst: pc, Count: 1},
		bil.Loop{Src: pc, Body: dispatch},
		bil.Go{Delta: -height},
		bil.Go{Delta: -controlSize},
	}
	for _, op := range tail {
		if err := bil.Validate(op); err != nil {
			return nil, &LoweringError{Err: err}
		}
	}
	l.ops = append(l.ops, tail...)
	log.Debugf("lowered program: %d blocks, frame %s", len(p.Order), l.frame)
	return append([]bil.Op(nil), l.ops[start:]...), nil
}

// lowerBlock returns the ops for one block, relative to a pointer at the
// top of the frame.
func (l *Lowerer) lowerBlock(b *bytecode.BasicBlock, numbers map[string]int, height int) ([]bil.Op, error) {
	l.block = b.Label
	defer func() {
		l.block = ""
		l.control = nil
	}()

	start := len(l.ops)
	terminated := false
	pcAt := func() int { return pcDepth - l.cur }
	target := func(label string) (int, error) {
		n, ok := numbers[label]
		if !ok {
			return 0, fmt.Errorf("%q: %w", label, bytecode.ErrUnknownLabel)
		}
		return n, nil
	}

	l.control = func(i int, in bytecode.Instr) error {
		switch in := in.(type) {
		case bytecode.Label:
			if i != 0 {
				return l.fail(i, in, fmt.Errorf("label inside block: %w", ErrUnsupportedOpcode))
			}
			return nil

		case bytecode.Jump:
			n, err := target(in.Target)
			if err != nil {
				return l.fail(i, in, err)
			}
			terminated = true
			return l.emit(i, in, bil.Zero{Dst: pcAt()}, bil.Add{Dst: pcAt(), Count: n})

		case bytecode.Cond:
			t, err := target(in.True)
			if err != nil {
				return l.fail(i, in, err)
			}
			f, err := target(in.False)
			if err != nil {
				return l.fail(i, in, err)
			}
			if err := l.need(1); err != nil {
				return l.fail(i, in, err)
			}
			if err := l.emit(i, in, bil.Go{Delta: -1}); err != nil {
				return err
			}
			l.cur--
			s := l.scratch.take(l.cur, 2)
			terminated = true
			return l.emit(i, in, bil.Branch{
				Src:  s[0],
				Work: s[1],
				Then: []bil.Op{bil.Zero{Dst: pcAt()}, bil.Add{Dst: pcAt(), Count: t}},
				Else: []bil.Op{bil.Zero{Dst: pcAt()}, bil.Add{Dst: pcAt(), Count: f}},
			})
		}
		return l.fail(i, in, fmt.Errorf("%s: %w", in, ErrUnsupportedOpcode))
	}

	for i, in := range b.Instrs {
		if terminated {
			return nil, l.fail(i, in, fmt.Errorf("instruction after block exit: %w", ErrUnsupportedOpcode))
		}
		if err := l.visit(i, in); err != nil {
			return nil, err
		}
	}
	if l.cur != height {
		return nil, &LoweringError{
			Block: b.Label,
			Index: len(b.Instrs),
			Err:   fmt.Errorf("depth %d at exit, frame height %d: %w", l.cur, height, ErrUnbalancedBlock),
		}
	}
	if !terminated {
		// Fall off the end of the program unless the block names a
		// successor without an explicit jump.
		exit := []bil.Op{bil.Zero{Dst: pcAt()}}
		if b.TrueExit != "" {
			n, err := target(b.TrueExit)
			if err != nil {
				return nil, &LoweringError{Block: b.Label, Index: len(b.Instrs), Err: err}
			}
			exit = append(exit, bil.Add{Dst: pcAt(), Count: n})
		}
		l.ops = append(l.ops, exit...)
	}

	body := append([]bil.Op(nil), l.ops[start:]...)
	l.ops = l.ops[:start]
	return body, nil
}

// blockNumbers assigns 1 to the entry block and 2, 3, ... to the rest in
// source order.
func blockNumbers(p *bytecode.Program) map[string]int {
	numbers := make(map[string]int, len(p.Order))
	for i, label := range dispatchOrder(p) {
		numbers[label] = i + 1
	}
	return numbers
}

func dispatchOrder(p *bytecode.Program) []string {
	order := make([]string, 0, len(p.Order))
	order = append(order, p.Entry)
	for _, label := range p.Order {
		if label != p.Entry {
			order = append(order, label)
		}
	}
	return order
}
