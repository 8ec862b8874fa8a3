package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRunLoopMatching(t *testing.T) {
	m := New(Options{})
	if err := m.Run("++[-]"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Cell(0) != 0 || m.Pointer() != 0 {
		t.Errorf("cell 0 = %d, pointer = %d, want 0, 0", m.Cell(0), m.Pointer())
	}
	if m.Steps() != 9 {
		t.Errorf("steps = %d, want 9", m.Steps())
	}
}

func TestRunNestedLoops(t *testing.T) {
	// 3 * 4 into cell 2, then skip a loop over an empty cell.
	m := New(Options{})
	if err := m.Run("+++[>++++[>+<-]<-]>>>[<<+>>-]<<<"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Cell(2) != 12 {
		t.Errorf("cell 2 = %d, want 12", m.Cell(2))
	}
	if m.LoopDepth() != 0 {
		t.Errorf("loop depth = %d after run", m.LoopDepth())
	}
}

func TestPointerUnderflow(t *testing.T) {
	m := New(Options{})
	err := m.Run("<")
	if !errors.Is(err, ErrPointerUnderflow) {
		t.Fatalf("Run(<) error = %v, want ErrPointerUnderflow", err)
	}
	f, ok := IsFault(err)
	if !ok || f.IP != 0 || f.Pointer != 0 || f.Instr != '<' {
		t.Errorf("fault = %+v", f)
	}
	for i, c := range m.Cells(16) {
		if c != 0 {
			t.Errorf("cell %d = %d, want untouched tape", i, c)
		}
	}
}

func TestPointerOverflow(t *testing.T) {
	m := New(Options{Capacity: 3})
	err := m.Run(">>>")
	if !errors.Is(err, ErrPointerOverflow) {
		t.Fatalf("error = %v, want ErrPointerOverflow", err)
	}
	if f, _ := IsFault(err); f.IP != 2 {
		t.Errorf("fault ip = %d, want 2", f.IP)
	}
}

func TestUnbalanced(t *testing.T) {
	tests := []struct {
		code string
		ip   int
	}{
		{"]", 0},
		{"+[", 2}, // still open at the end
		{"[", 0},  // skipped forward off the end
		{"[]]", 2},
	}
	for _, tt := range tests {
		m := New(Options{MaxSteps: 100})
		err := m.Run(tt.code)
		if !errors.Is(err, ErrUnbalancedLoop) {
			t.Errorf("Run(%q) error = %v, want ErrUnbalancedLoop", tt.code, err)
			continue
		}
		if f, _ := IsFault(err); f.IP != tt.ip {
			t.Errorf("Run(%q) fault ip = %d, want %d", tt.code, f.IP, tt.ip)
		}
	}
}

func TestUnrecognizedInstruction(t *testing.T) {
	m := New(Options{})
	err := m.Run("+ +\n\t+x")
	if !errors.Is(err, ErrUnrecognizedInstruction) {
		t.Fatalf("error = %v, want ErrUnrecognizedInstruction", err)
	}
	if m.Cell(0) != 3 {
		t.Errorf("whitespace should be skipped: cell 0 = %d, want 3", m.Cell(0))
	}
	if f, _ := IsFault(err); f.Instr != 'x' || f.IP != 6 {
		t.Errorf("fault = %+v", f)
	}
}

func TestWraparound(t *testing.T) {
	m := New(Options{})
	if err := m.Run("-"); err != nil {
		t.Fatal(err)
	}
	if m.Cell(0) != 255 {
		t.Errorf("0 - 1 = %d, want 255", m.Cell(0))
	}
	if err := m.Run("+"); err != nil {
		t.Fatal(err)
	}
	if m.Cell(0) != 0 {
		t.Errorf("255 + 1 = %d, want 0", m.Cell(0))
	}
}

func TestWatermark(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"", 0},
		{">>>+", 3},
		{">>>+-", 0},
		{">+>>+-", 1},
		{">+>>+<<->>-", 0},
		{">>>-", 3},  // wraps to 255
		{">>>-+", 0}, // and back
	}
	for _, tt := range tests {
		m := New(Options{})
		if err := m.Run(tt.code); err != nil {
			t.Fatalf("Run(%q): %v", tt.code, err)
		}
		if got := m.Farthest(); got != tt.want {
			t.Errorf("Run(%q) farthest = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestIO(t *testing.T) {
	var out bytes.Buffer
	m := New(Options{Input: strings.NewReader("ab"), Output: &out})
	if err := m.Run(",+.>,+.>,."); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "bc\x00" {
		t.Errorf("output = %q, want %q", got, "bc\x00")
	}
	if m.Farthest() != 1 {
		t.Errorf("farthest = %d, want 1 after input", m.Farthest())
	}
}

func TestEOFModes(t *testing.T) {
	tests := []struct {
		mode EOFMode
		want byte
	}{
		{EOFUnchanged, 7},
		{EOFZero, 0},
		{EOFMax, 255},
	}
	for _, tt := range tests {
		m := New(Options{EOF: tt.mode})
		if err := m.Run("+++++++,"); err != nil {
			t.Fatal(err)
		}
		if m.Cell(0) != tt.want {
			t.Errorf("%s: cell = %d, want %d", tt.mode, m.Cell(0), tt.want)
		}
	}

	for _, name := range []string{"unchanged", "zero", "max"} {
		mode, err := ParseEOFMode(name)
		if err != nil || mode.String() != name {
			t.Errorf("ParseEOFMode(%q) = %v, %v", name, mode, err)
		}
	}
	if _, err := ParseEOFMode("minus-one"); err == nil {
		t.Error("ParseEOFMode accepted an unknown mode")
	}
}

func TestTrace(t *testing.T) {
	var trace bytes.Buffer
	m := New(Options{Trace: &trace})
	if err := m.Run(">+"); err != nil {
		t.Fatal(err)
	}
	blocks := strings.Split(strings.TrimSpace(trace.String()), "\n\n")
	if len(blocks) != 3 {
		t.Fatalf("got %d trace blocks, want 3:\n%s", len(blocks), trace.String())
	}
	if want := " v\n>+\nloops: []\n[0] >0< "; blocks[1] != want {
		t.Errorf("second block = %q, want %q", blocks[1], want)
	}
	if want := "  v\n>+\nloops: []\n[0] >1<"; blocks[2] != want {
		t.Errorf("final block = %q, want %q", blocks[2], want)
	}
}

func TestDumpCells(t *testing.T) {
	m := New(Options{Capacity: 4})
	m.Poke(1, 9)
	if err := m.Seek(2); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	m.DumpCells(&buf, 10)
	if got, want := buf.String(), "[0] [9] >0< [0] \n"; got != want {
		t.Errorf("DumpCells() = %q, want %q", got, want)
	}
	if err := m.Seek(4); err == nil {
		t.Error("Seek past the tape should fail")
	}
}

func TestStepLimit(t *testing.T) {
	m := New(Options{MaxSteps: 50})
	err := m.Run("+[]")
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("error = %v, want ErrStepLimit", err)
	}
	if m.Steps() != 50 {
		t.Errorf("steps = %d, want 50", m.Steps())
	}
	if _, ok := IsFault(err); ok {
		t.Error("a step limit is not a machine fault")
	}
}

func TestStepper(t *testing.T) {
	var seen []int
	stop := StepFunc(func(m *Machine, ip int) error {
		seen = append(seen, ip)
		if len(seen) == 3 {
			return ErrAborted
		}
		return nil
	})
	m := New(Options{Stepper: stop})
	err := m.Run("+ ++++")
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted", err)
	}
	if want := []int{0, 2, 3}; len(seen) != 3 || seen[0] != want[0] || seen[1] != want[1] || seen[2] != want[2] {
		t.Errorf("stepped at %v, want %v", seen, want)
	}
	if m.Cell(0) != 3 {
		t.Errorf("cell 0 = %d, want 3", m.Cell(0))
	}
}

func TestReset(t *testing.T) {
	m := New(Options{Capacity: 8})
	if err := m.Run(">>+++"); err != nil {
		t.Fatal(err)
	}
	m.Reset()
	if m.Pointer() != 0 || m.Farthest() != 0 || m.Steps() != 0 || m.Cell(2) != 0 {
		t.Errorf("Reset left state: ptr %d farthest %d steps %d cell %d",
			m.Pointer(), m.Farthest(), m.Steps(), m.Cell(2))
	}
	if m.Capacity() != 8 {
		t.Errorf("capacity = %d, want 8", m.Capacity())
	}
}

func FuzzRun(f *testing.F) {
	f.Add("++[-]")
	f.Add("+[>+<-]>.")
	f.Add("<")
	f.Add("]]][[[")
	f.Fuzz(func(t *testing.T, code string) {
		m := New(Options{Capacity: 32, MaxSteps: 10000})
		err := m.Run(code)
		if m.Pointer() < 0 || m.Pointer() >= 32 {
			t.Fatalf("pointer escaped the tape: %d", m.Pointer())
		}
		if err == nil && m.LoopDepth() != 0 {
			t.Fatalf("clean halt with %d open loops", m.LoopDepth())
		}
		// The watermark never hides a nonzero cell.
		for i := m.Farthest() + 1; i < 32; i++ {
			if m.Cell(i) != 0 {
				t.Fatalf("cell %d = %d beyond farthest %d", i, m.Cell(i), m.Farthest())
			}
		}
	})
}

func BenchmarkRun(b *testing.B) {
	// Three nested counting loops.
	code := "++++++++[>++++++++[>++++++++[>+<-]<-]<-]"
	for i := 0; i < b.N; i++ {
		m := New(Options{Capacity: 16})
		if err := m.Run(code); err != nil {
			b.Fatal(err)
		}
	}
}
