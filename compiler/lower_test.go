package compiler

import (
	"bytes"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/codegen"
	"github.com/chazu/tapec/pkg/stack"
	"github.com/chazu/tapec/vm"
)

func mustParse(t *testing.T, src string) []bytecode.Instr {
	t.Helper()
	code, err := bytecode.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return code
}

// exec compiles src and runs it from cell 0 with the given input.
func exec(t *testing.T, src, input string) (*vm.Machine, string) {
	t.Helper()
	out, err := Compile(mustParse(t, src), nil)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	var stdout bytes.Buffer
	m := vm.New(vm.Options{
		Capacity: 64,
		Input:    strings.NewReader(input),
		Output:   &stdout,
		MaxSteps: 1 << 20,
		EOF:      vm.EOFZero,
	})
	if err := m.Run(out.Code); err != nil {
		t.Fatalf("Run(%q): %v", out.Code, err)
	}
	return m, stdout.String()
}

func TestLowerSequence(t *testing.T) {
	tests := []struct {
		src  string
		want []bil.Op
	}{
		{
			"reserve x 1\npush 5c\npop x\nunreserve x 1",
			[]bil.Op{
				bil.Go{Delta: 1},
				bil.Add{Dst: 0, Count: 5}, bil.Go{Delta: 1},
				bil.Go{Delta: -1}, bil.Zero{Dst: -1}, bil.Move{Dst: -1, Src: 0},
				bil.Go{Delta: -1},
			},
		},
		{
			"reserve x 2\npush 7c\npop x",
			[]bil.Op{
				bil.Go{Delta: 2},
				bil.Add{Dst: 0, Count: 7}, bil.Go{Delta: 1},
				bil.Go{Delta: -1}, bil.Zero{Dst: -2}, bil.Move{Dst: -2, Src: 0},
			},
		},
		{
			"push 1c\npush 2c\naddc",
			[]bil.Op{
				bil.Add{Dst: 0, Count: 1}, bil.Go{Delta: 1},
				bil.Add{Dst: 0, Count: 2}, bil.Go{Delta: 1},
				bil.Move{Dst: -2, Src: -1}, bil.Go{Delta: -1},
			},
		},
		{
			"push 1c\npush 2c\nsubc",
			[]bil.Op{
				bil.Add{Dst: 0, Count: 1}, bil.Go{Delta: 1},
				bil.Add{Dst: 0, Count: 2}, bil.Go{Delta: 1},
				bil.Unmove{Dst: -2, Src: -1}, bil.Go{Delta: -1},
			},
		},
		{
			"push -1c\ndup\nnot",
			[]bil.Op{
				bil.Add{Dst: 0, Count: -1}, bil.Go{Delta: 1},
				bil.Copy{Dst: 0, Src: -1, Work: 1}, bil.Go{Delta: 1},
				bil.Move{Dst: 0, Src: -1}, bil.IsZero{Dst: -1, Src: 0},
			},
		},
		{
			"in\nout",
			[]bil.Op{
				bil.Literal{Text: ","}, bil.Go{Delta: 1},
				bil.Go{Delta: -1}, bil.Literal{Text: "."}, bil.Zero{Dst: 0},
			},
		},
	}
	for _, tt := range tests {
		got, err := Lower(mustParse(t, tt.src), nil)
		if err != nil {
			t.Errorf("Lower(%q): %v", tt.src, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Lower(%q) =\n%v\nwant\n%v", tt.src, bil.Listing(got), bil.Listing(tt.want))
		}
	}
}

func TestLowerDepth(t *testing.T) {
	l := NewLowerer(nil)
	if _, err := l.Lower(mustParse(t, "reserve a 2\nreserve b 1\npush 1c\npush 2c\neq")); err != nil {
		t.Fatal(err)
	}
	if l.Depth() != 4 {
		t.Errorf("Depth() = %d, want 4", l.Depth())
	}
	if d, ok := l.SlotDepth("b"); !ok || d != 2 {
		t.Errorf("SlotDepth(b) = %d, %v, want 2", d, ok)
	}
	// eq borrows one scratch cell above the two operands.
	if l.Extent() != 6 {
		t.Errorf("Extent() = %d, want 6", l.Extent())
	}
}

func TestLowerDeterministic(t *testing.T) {
	code := mustParse(t, "reserve x 1\npush 3c\npush 4c\nxor\npush 1c\nor\npop x")
	first, err := Build(code, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Build(code, nil)
		if err != nil {
			t.Fatal(err)
		}
		if again.Code != first.Code || !reflect.DeepEqual(again.Ops, first.Ops) {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestLowerControlPassthrough(t *testing.T) {
	ops, err := Lower(mustParse(t, "push 1c\ncond a b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := bil.Control{Instr: bytecode.Cond{True: "a", False: "b"}}
	if got := ops[len(ops)-1]; !reflect.DeepEqual(got, want) {
		t.Errorf("last op = %v, want %v", got, want)
	}

	_, err = Build(mustParse(t, "jump a"), nil)
	if !errors.Is(err, codegen.ErrUnresolvedControl) {
		t.Errorf("Build with a jump = %v, want ErrUnresolvedControl", err)
	}
}

func TestLowerErrors(t *testing.T) {
	frame := stack.NewFrame()
	if err := frame.Add("x", 1); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		src   string
		frame *stack.Frame
		index int
		want  error
	}{
		{"pop unknown", "push 1c\npop y", nil, 1, ErrUnknownSymbol},
		{"unreserve unknown", "unreserve y 1", nil, 0, ErrUnknownSymbol},
		{"addc one operand", "push 1c\naddc", nil, 1, ErrStackUnderflow},
		{"pop into slot from empty stack", "reserve x 1\npop x", nil, 1, ErrStackUnderflow},
		{"out of nothing", "out", nil, 0, ErrStackUnderflow},
		{"dup below the frame", "reserve x 1\ndup", nil, 1, ErrStackUnderflow},
		{"bare number", "push 5", nil, 0, ErrUnsupportedOperand},
		{"too wide", "push 300c", nil, 0, ErrUnsupportedOperand},
		{"not a number", "push abc", nil, 0, ErrUnsupportedOperand},
		{"reserved twice", "reserve x 1\nreserve x 1", nil, 1, ErrFrameMismatch},
		{"unreserve wrong size", "reserve x 2\nunreserve x 1", nil, 1, ErrFrameMismatch},
		{"size disagrees with frame", "reserve x 2", frame, 0, ErrFrameMismatch},
		{"slot outside frame", "reserve y 1", frame, 0, ErrFrameMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower(mustParse(t, tt.src), tt.frame)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var le *LoweringError
			if !errors.As(err, &le) {
				t.Fatalf("error = %T, want *LoweringError", err)
			}
			if le.Index != tt.index {
				t.Errorf("Index = %d, want %d", le.Index, tt.index)
			}
			if !strings.HasPrefix(err.Error(), "lowering: instruction") {
				t.Errorf("Error() = %q", err.Error())
			}
		})
	}
}

func TestExecuteStoreIntoSlot(t *testing.T) {
	m, _ := exec(t, "reserve x 1\nreserve y 2\npush 5c\npop x\npush 9c\npop y\nunreserve y 2\nunreserve x 1", "")
	if m.Pointer() != 0 {
		t.Errorf("pointer = %d, want 0 after unreserving everything", m.Pointer())
	}
	if got := m.Cells(3); got[0] != 5 || got[1] != 9 || got[2] != 0 {
		t.Errorf("cells = %v, want [5 9 0]", got)
	}

	// A second pop overwrites rather than accumulates.
	m, _ = exec(t, "reserve x 1\npush 5c\npop x\npush 2c\npop x", "")
	if m.Cell(0) != 2 {
		t.Errorf("x = %d, want 2", m.Cell(0))
	}
}

func TestExecuteArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want byte
	}{
		{"push 200c\npush 100c\naddc\nout", 44},
		{"push 3c\npush 5c\nsubc\nout", 254},
		{"push 9c\ndup\naddc\nout", 18},
		{"push -1c\nout", 255},
		{"push 0c\nnot\nout", 1},
		{"push 9c\nnot\nout", 0},
	}
	for _, tt := range tests {
		m, got := exec(t, tt.src, "")
		if got != string([]byte{tt.want}) {
			t.Errorf("%q printed %q, want %q", tt.src, got, []byte{tt.want})
		}
		if m.Farthest() != 0 || m.Cell(0) != 0 {
			t.Errorf("%q left nonzero cells behind: %v", tt.src, m.Cells(8))
		}
	}
}

func TestExecuteLogic(t *testing.T) {
	tests := []struct {
		op   string
		a, b int
		want byte
	}{
		{"and", 0, 0, 0},
		{"and", 0, 5, 0},
		{"and", 3, 5, 1},
		{"or", 0, 0, 0},
		{"or", 0, 7, 1},
		{"or", 2, 9, 1},
		{"xor", 0, 0, 0},
		{"xor", 1, 0, 1},
		{"xor", 0, 8, 1},
		{"xor", 4, 9, 0},
		{"eq", 5, 5, 1},
		{"eq", 5, 6, 0},
		{"eq", 0, 0, 1},
	}
	for _, tt := range tests {
		src := "push " + strconv.Itoa(tt.a) + "c\npush " + strconv.Itoa(tt.b) + "c\n" + tt.op + "\nout"
		m, got := exec(t, src, "")
		if got != string([]byte{tt.want}) {
			t.Errorf("%d %s %d = %q, want %d", tt.a, tt.op, tt.b, got, tt.want)
		}
		for i, c := range m.Cells(8) {
			if c != 0 {
				t.Errorf("%d %s %d left cell %d = %d", tt.a, tt.op, tt.b, i, c)
			}
		}
	}
}

func TestExecuteInput(t *testing.T) {
	_, got := exec(t, "in\nin\nsubc\nout\nin\nout", "ca")
	if got != "\x02\x00" {
		t.Errorf("output = %q, want %q", got, "\x02\x00")
	}
}

func BenchmarkBuild(b *testing.B) {
	var src strings.Builder
	src.WriteString("reserve x 1\n")
	for i := 0; i < 64; i++ {
		src.WriteString("push 3c\npush 4c\nxor\npush 1c\neq\npop x\n")
	}
	code, err := bytecode.Parse(src.String())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(code, nil); err != nil {
			b.Fatal(err)
		}
	}
}
