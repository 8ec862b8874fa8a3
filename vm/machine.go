package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tapec.vm")

// DefaultCapacity is the tape size used when Options.Capacity is zero.
const DefaultCapacity = 30000

// EOFMode selects what "," stores when the input is exhausted.
type EOFMode int

const (
	EOFUnchanged EOFMode = iota // leave the cell as it was
	EOFZero                     // store 0
	EOFMax                      // store 255
)

// String returns the configuration name of the mode.
func (e EOFMode) String() string {
	switch e {
	case EOFUnchanged:
		return "unchanged"
	case EOFZero:
		return "zero"
	case EOFMax:
		return "max"
	default:
		return fmt.Sprintf("EOFMode(%d)", int(e))
	}
}

// ParseEOFMode resolves a configuration name.
func ParseEOFMode(s string) (EOFMode, error) {
	switch s {
	case "", "unchanged":
		return EOFUnchanged, nil
	case "zero":
		return EOFZero, nil
	case "max":
		return EOFMax, nil
	}
	return 0, fmt.Errorf("unknown eof mode %q", s)
}

// Stepper is called after every executed instruction when step mode is on.
// It blocks for as long as it likes; returning an error stops the run with
// that error.
type Stepper interface {
	Step(m *Machine, ip int) error
}

// StepFunc adapts a function to the Stepper interface.
type StepFunc func(m *Machine, ip int) error

// Step calls f.
func (f StepFunc) Step(m *Machine, ip int) error { return f(m, ip) }

// Options configures a Machine.
type Options struct {
	Capacity int       // tape size in cells, DefaultCapacity if zero
	Input    io.Reader // source for ","; nil behaves as empty input
	Output   io.Writer // sink for "."; nil discards
	Trace    io.Writer // if set, state is dumped before every instruction
	Stepper  Stepper   // if set, called after every instruction
	MaxSteps uint64    // stop with ErrStepLimit after this many instructions; 0 is unlimited
	EOF      EOFMode
}

// Machine is a single-tape, single-pointer byte machine.
type Machine struct {
	cells    []byte
	ptr      int
	loops    []int // loop-return stack of "[" indices
	farthest int   // highest index known to hold a nonzero cell
	steps    uint64

	opts Options
	in   io.Reader
	out  io.Writer

	// skip caches the matching "]" for each "[" that was jumped over.
	skip map[int]int
	code string
}

// New creates a machine with a zeroed tape.
func New(opts Options) *Machine {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	m := &Machine{
		cells: make([]byte, opts.Capacity),
		opts:  opts,
		in:    opts.Input,
		out:   opts.Output,
	}
	if m.in == nil {
		m.in = strings.NewReader("")
	}
	if m.out == nil {
		m.out = io.Discard
	}
	return m
}

// Reset zeroes the tape and clears all execution state.
func (m *Machine) Reset() {
	clear(m.cells)
	m.ptr = 0
	m.loops = m.loops[:0]
	m.farthest = 0
	m.steps = 0
	m.skip = nil
	m.code = ""
}

// Capacity returns the number of cells on the tape.
func (m *Machine) Capacity() int { return len(m.cells) }

// Pointer returns the current pointer index.
func (m *Machine) Pointer() int { return m.ptr }

// Cell returns the value of cell i.
func (m *Machine) Cell(i int) byte { return m.cells[i] }

// Cells returns a copy of cells [0, n).
func (m *Machine) Cells(n int) []byte {
	return append([]byte(nil), m.cells[:n]...)
}

// Farthest returns the farthest-nonzero watermark.
func (m *Machine) Farthest() int { return m.farthest }

// LoopDepth returns the number of open loops.
func (m *Machine) LoopDepth() int { return len(m.loops) }

// Steps returns the number of instructions executed since the last Reset.
func (m *Machine) Steps() uint64 { return m.steps }

// Poke sets cell i, keeping the watermark consistent.
func (m *Machine) Poke(i int, v byte) {
	m.cells[i] = v
	m.touch(i)
}

// Seek moves the pointer to p.
func (m *Machine) Seek(p int) error {
	if p < 0 || p >= len(m.cells) {
		return fmt.Errorf("vm: seek %d outside tape of %d cells", p, len(m.cells))
	}
	m.ptr = p
	return nil
}

// Run executes code against the current tape. Whitespace is ignored; any
// other character outside the instruction alphabet is a fault.
func (m *Machine) Run(code string) error {
	if code != m.code {
		m.code = code
		m.skip = nil
	}
	log.Debugf("run: %d bytes of code, %d cells", len(code), len(m.cells))

	for ip := 0; ip < len(code); ip++ {
		c := code[ip]
		if isSpace(c) {
			continue
		}
		if m.opts.MaxSteps > 0 && m.steps >= m.opts.MaxSteps {
			return fmt.Errorf("vm: %w after %d steps at instruction %d", ErrStepLimit, m.steps, ip)
		}
		if m.opts.Trace != nil {
			m.traceState(m.opts.Trace, code, ip)
		}

		at := ip
		switch c {
		case '>':
			if m.ptr+1 >= len(m.cells) {
				return m.fault(ErrPointerOverflow, ip, c)
			}
			m.ptr++
		case '<':
			if m.ptr == 0 {
				return m.fault(ErrPointerUnderflow, ip, c)
			}
			m.ptr--
		case '+':
			m.cells[m.ptr]++
			m.touch(m.ptr)
		case '-':
			m.cells[m.ptr]--
			m.touch(m.ptr)
		case '[':
			if m.cells[m.ptr] == 0 {
				end, ok := m.matchForward(code, ip)
				if !ok {
					return m.fault(ErrUnbalancedLoop, ip, c)
				}
				ip = end
			} else {
				m.loops = append(m.loops, ip)
			}
		case ']':
			if len(m.loops) == 0 {
				return m.fault(ErrUnbalancedLoop, ip, c)
			}
			top := m.loops[len(m.loops)-1]
			m.loops = m.loops[:len(m.loops)-1]
			// Land on the "[" so its test runs again.
			ip = top - 1
		case '.':
			if _, err := m.out.Write(m.cells[m.ptr : m.ptr+1]); err != nil {
				return fmt.Errorf("vm: output at instruction %d: %w", ip, err)
			}
		case ',':
			if err := m.read(); err != nil {
				return fmt.Errorf("vm: input at instruction %d: %w", ip, err)
			}
		default:
			return m.fault(ErrUnrecognizedInstruction, ip, c)
		}

		m.steps++
		if m.opts.Stepper != nil {
			if err := m.opts.Stepper.Step(m, at); err != nil {
				return err
			}
		}
	}

	if m.opts.Trace != nil {
		m.traceState(m.opts.Trace, code, len(code))
	}
	if len(m.loops) > 0 {
		return &Fault{Err: ErrUnbalancedLoop, IP: len(code), Pointer: m.ptr}
	}
	log.Debugf("run: halted after %d steps, pointer %d", m.steps, m.ptr)
	return nil
}

func (m *Machine) fault(err error, ip int, c byte) error {
	log.Debugf("fault: %v at %d", err, ip)
	return &Fault{Err: err, IP: ip, Pointer: m.ptr, Instr: c}
}

// matchForward finds the "]" matching the "[" at ip.
func (m *Machine) matchForward(code string, ip int) (int, bool) {
	if end, ok := m.skip[ip]; ok {
		return end, true
	}
	depth := 1
	for i := ip + 1; i < len(code); i++ {
		switch code[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				if m.skip == nil {
					m.skip = make(map[int]int)
				}
				m.skip[ip] = i
				return i, true
			}
		}
	}
	return 0, false
}

func (m *Machine) read() error {
	var buf [1]byte
	_, err := io.ReadFull(m.in, buf[:])
	switch {
	case err == nil:
		m.cells[m.ptr] = buf[0]
	case errors.Is(err, io.EOF):
		switch m.opts.EOF {
		case EOFZero:
			m.cells[m.ptr] = 0
		case EOFMax:
			m.cells[m.ptr] = 255
		}
	default:
		return err
	}
	m.touch(m.ptr)
	return nil
}

// touch maintains the farthest-nonzero watermark after cell i changed.
func (m *Machine) touch(i int) {
	if m.cells[i] != 0 {
		if i > m.farthest {
			m.farthest = i
		}
		return
	}
	if i == m.farthest {
		for m.farthest > 0 && m.cells[m.farthest] == 0 {
			m.farthest--
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
