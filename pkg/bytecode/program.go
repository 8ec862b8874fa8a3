package bytecode

import (
	"errors"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Control-flow partitioning: labeled basic blocks
// ---------------------------------------------------------------------------

// ErrUnknownLabel is returned when an exit names a block that does not exist.
var ErrUnknownLabel = errors.New("unknown label")

// ErrDuplicateLabel is returned when two blocks share a label.
var ErrDuplicateLabel = errors.New("duplicate label")

// BasicBlock is a straight-line run of instructions starting at a label.
// TrueExit is the unconditional successor (or the taken branch of a cond);
// FalseExit is only set for blocks ending in a cond. An empty TrueExit means
// the block falls off the end of the program.
type BasicBlock struct {
	Label     string
	Instrs    []Instr
	TrueExit  string
	FalseExit string
}

// IsConditional returns true if the block ends in a two-way branch.
func (b *BasicBlock) IsConditional() bool {
	return b.FalseExit != ""
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("BasicBlock(label=%q, instrs=%d, true_exit=%q, false_exit=%q)",
		b.Label, len(b.Instrs), b.TrueExit, b.FalseExit)
}

// Program is a function body partitioned into labeled basic blocks.
// Order records block labels in the order they appeared in the source
// bytecode; Entry is always Order[0].
type Program struct {
	Entry  string
	Blocks map[string]*BasicBlock
	Order  []string
}

// Block returns the block with the given label.
func (p *Program) Block(label string) (*BasicBlock, bool) {
	b, ok := p.Blocks[label]
	return b, ok
}

// Validate checks that every exit names a block of the program.
func (p *Program) Validate() error {
	if _, ok := p.Blocks[p.Entry]; !ok {
		return fmt.Errorf("entry %q: %w", p.Entry, ErrUnknownLabel)
	}
	for _, label := range p.Order {
		b := p.Blocks[label]
		for _, exit := range []string{b.TrueExit, b.FalseExit} {
			if exit == "" {
				continue
			}
			if _, ok := p.Blocks[exit]; !ok {
				return fmt.Errorf("block %q exits to %q: %w", label, exit, ErrUnknownLabel)
			}
		}
	}
	return nil
}

// Labeler hands out unique block labels. Each front-end or partitioning run
// owns its own Labeler, so independent runs never share a counter.
type Labeler struct {
	prefix string
	next   int
	taken  map[string]bool
}

// NewLabeler creates a labeler producing names like "<prefix>_0".
func NewLabeler(prefix string) *Labeler {
	return &Labeler{prefix: prefix, taken: make(map[string]bool)}
}

// Claim marks names as used so Next never returns them.
func (l *Labeler) Claim(names ...string) {
	for _, n := range names {
		l.taken[n] = true
	}
}

// Next returns a fresh label.
func (l *Labeler) Next() string {
	for {
		name := l.prefix + "_" + strconv.Itoa(l.next)
		l.next++
		if !l.taken[name] {
			l.taken[name] = true
			return name
		}
	}
}

// AddLabels inserts a label at the start of the code and after every jump or
// cond that is not already followed by one.
func AddLabels(code []Instr, l *Labeler) []Instr {
	for _, in := range code {
		if lbl, ok := in.(Label); ok {
			l.Claim(lbl.Name)
		}
	}

	out := make([]Instr, 0, len(code)+4)
	for i, in := range code {
		if in.Opcode() != OpLabel {
			if i == 0 || code[i-1].Opcode().IsTerminator() {
				out = append(out, Label{Name: l.Next()})
			}
		}
		out = append(out, in)
	}
	return out
}

// AddJumps makes fallthrough explicit: an instruction followed by a label
// gets a jump to that label unless it already transfers control.
func AddJumps(code []Instr) []Instr {
	out := make([]Instr, 0, len(code)+4)
	for i, in := range code {
		out = append(out, in)
		if i+1 < len(code) {
			if next, ok := code[i+1].(Label); ok && !in.Opcode().IsTerminator() {
				out = append(out, Jump{Target: next.Name})
			}
		}
	}
	return out
}

// Partition splits labeled code into basic blocks. The code must start with
// a label; AddLabels guarantees that.
func Partition(code []Instr) (*Program, error) {
	if len(code) == 0 {
		return nil, errors.New("partition: empty code")
	}
	first, ok := code[0].(Label)
	if !ok {
		return nil, fmt.Errorf("partition: code must start with a label, got %q", code[0])
	}

	p := &Program{Entry: first.Name, Blocks: make(map[string]*BasicBlock)}
	var cur *BasicBlock
	for _, in := range code {
		switch in := in.(type) {
		case Label:
			if _, dup := p.Blocks[in.Name]; dup {
				return nil, fmt.Errorf("partition: %q: %w", in.Name, ErrDuplicateLabel)
			}
			cur = &BasicBlock{Label: in.Name}
			p.Blocks[in.Name] = cur
			p.Order = append(p.Order, in.Name)
		case Jump:
			cur.TrueExit = in.Target
		case Cond:
			cur.TrueExit = in.True
			cur.FalseExit = in.False
		}
		cur.Instrs = append(cur.Instrs, in)
	}
	return p, nil
}

// BuildProgram runs AddLabels, AddJumps and Partition, then validates the
// result.
func BuildProgram(code []Instr, l *Labeler) (*Program, error) {
	p, err := Partition(AddJumps(AddLabels(code, l)))
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
