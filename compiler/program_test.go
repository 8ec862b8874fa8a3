package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
)

const ifElse = `
	push %dc
	cond yes no
yes:
	push 65c
	out
	jump end
no:
	push 66c
	out
end:
`

func TestProgramIfElse(t *testing.T) {
	tests := []struct {
		test int
		want string
	}{
		{1, "A"},
		{7, "A"},
		{0, "B"},
	}
	for _, tt := range tests {
		m, got := exec(t, fmt.Sprintf(ifElse, tt.test), "")
		if got != tt.want {
			t.Errorf("cond on %d printed %q, want %q", tt.test, got, tt.want)
		}
		if m.Pointer() != 0 {
			t.Errorf("pointer = %d, want 0 after the dispatch loop", m.Pointer())
		}
		for i, c := range m.Cells(8) {
			if c != 0 {
				t.Errorf("cell %d = %d after halting", i, c)
			}
		}
	}
}

func TestProgramLoop(t *testing.T) {
	// Echo input up to and including the first zero.
	src := `
loop:
	in
	dup
	out
	cond loop end
end:
`
	_, got := exec(t, src, "hi")
	if got != "hi\x00" {
		t.Errorf("output = %q, want %q", got, "hi\x00")
	}
}

func TestProgramFrame(t *testing.T) {
	src := `
	reserve x 1
	push 4c
	pop x
	jump end
end:
	unreserve x 1
`
	m, _ := exec(t, src, "")
	// pc, sel and tmp sit below the frame.
	if m.Cell(controlSize) != 4 {
		t.Errorf("x = %d, want 4; tape %v", m.Cell(controlSize), m.Cells(8))
	}
	if m.Pointer() != 0 {
		t.Errorf("pointer = %d, want 0", m.Pointer())
	}
}

func TestProgramLayout(t *testing.T) {
	code := mustParse(t, "push 1c\ncond a b\na:\njump b\nb:")
	p, err := bytecode.BuildProgram(code, bytecode.NewLabeler("block"))
	if err != nil {
		t.Fatal(err)
	}
	l := NewLowerer(nil)
	ops, err := l.LowerProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	if d := bil.Displacement(ops...); d != 0 {
		t.Errorf("program displacement = %d, want 0", d)
	}
	if first := ops[0]; first != (bil.Go{Delta: controlSize}) {
		t.Errorf("first op = %v, want go(%d)", first, controlSize)
	}
	loop, ok := ops[len(ops)-3].(bil.Loop)
	if !ok {
		t.Fatalf("ops[-3] = %v, want the dispatch loop", ops[len(ops)-3])
	}
	if loop.Src != pcDepth {
		t.Errorf("loop on %d, want pc at %d", loop.Src, pcDepth)
	}
	// Four dispatch ops per block.
	if len(loop.Body) != 4*len(p.Order) {
		t.Errorf("dispatch has %d ops for %d blocks", len(loop.Body), len(p.Order))
	}
	if l.Extent() <= controlSize {
		t.Errorf("Extent() = %d, want room past the control cells", l.Extent())
	}
}

func TestProgramErrors(t *testing.T) {
	t.Run("unbalanced block", func(t *testing.T) {
		_, err := Compile(mustParse(t, "push 1c\njump end\nend:"), nil)
		if !errors.Is(err, ErrUnbalancedBlock) {
			t.Fatalf("error = %v, want ErrUnbalancedBlock", err)
		}
		var le *LoweringError
		if !errors.As(err, &le) || le.Block != "block_0" {
			t.Errorf("error = %v, want it attributed to block_0", err)
		}
	})

	t.Run("cond on empty stack", func(t *testing.T) {
		_, err := Compile(mustParse(t, "cond a a\na:"), nil)
		if !errors.Is(err, ErrStackUnderflow) {
			t.Fatalf("error = %v, want ErrStackUnderflow", err)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := Compile(mustParse(t, "jump nowhere"), nil)
		if !errors.Is(err, bytecode.ErrUnknownLabel) {
			t.Fatalf("error = %v, want ErrUnknownLabel", err)
		}
	})

	t.Run("code after exit", func(t *testing.T) {
		p := &bytecode.Program{
			Entry: "a",
			Order: []string{"a"},
			Blocks: map[string]*bytecode.BasicBlock{
				"a": {
					Label:    "a",
					Instrs:   []bytecode.Instr{bytecode.Label{Name: "a"}, bytecode.Jump{Target: "a"}, bytecode.Char(1)},
					TrueExit: "a",
				},
			},
		}
		_, err := LowerProgram(p, nil)
		if !errors.Is(err, ErrUnsupportedOpcode) {
			t.Fatalf("error = %v, want ErrUnsupportedOpcode", err)
		}
		var le *LoweringError
		if errors.As(err, &le) && le.Index != 2 {
			t.Errorf("Index = %d, want 2", le.Index)
		}
	})

	t.Run("label inside block", func(t *testing.T) {
		p := &bytecode.Program{
			Entry: "a",
			Order: []string{"a"},
			Blocks: map[string]*bytecode.BasicBlock{
				"a": {Label: "a", Instrs: []bytecode.Instr{bytecode.Label{Name: "a"}, bytecode.Label{Name: "b"}}},
			},
		}
		if _, err := LowerProgram(p, nil); !errors.Is(err, ErrUnsupportedOpcode) {
			t.Fatalf("error = %v, want ErrUnsupportedOpcode", err)
		}
	})

	t.Run("too many blocks", func(t *testing.T) {
		var src strings.Builder
		for i := 0; i <= MaxBlocks; i++ {
			fmt.Fprintf(&src, "l%d:\n", i)
		}
		_, err := Compile(mustParse(t, src.String()), nil)
		if !errors.Is(err, ErrTooManyBlocks) {
			t.Fatalf("error = %v, want ErrTooManyBlocks", err)
		}
	})
}

func TestHasControl(t *testing.T) {
	if HasControl(mustParse(t, "push 1c\nout")) {
		t.Error("straight-line code reported as control flow")
	}
	if !HasControl(mustParse(t, "a:\npush 1c\nout")) {
		t.Error("a label should count as control flow")
	}
}
