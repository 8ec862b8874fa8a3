package bytecode

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Text format
//
// One instruction per line: a mnemonic followed by whitespace-separated
// operands. "#" starts a comment. "name:" on its own is shorthand for
// "label name".
//
//	reserve x 1
//	push 5c
//	pop x
//	done:
// ---------------------------------------------------------------------------

// ErrUnknownOpcode is returned for mnemonics that are not in the opcode table.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ErrOperandCount is returned when an instruction has the wrong number of operands.
var ErrOperandCount = errors.New("wrong operand count")

// ParseError locates a syntax error in bytecode text.
type ParseError struct {
	Line int    // 1-based line number
	Text string // offending line, trimmed
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads bytecode text into instructions.
func Parse(src string) ([]Instr, error) {
	var code []Instr
	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		in, err := ParseInstr(text)
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Err: err}
		}
		code = append(code, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return code, nil
}

// ParseInstr parses a single instruction.
func ParseInstr(text string) (Instr, error) {
	fields := strings.Fields(text)
	if len(fields) == 1 && strings.HasSuffix(fields[0], ":") && len(fields[0]) > 1 {
		return Label{Name: strings.TrimSuffix(fields[0], ":")}, nil
	}

	op, ok := LookupOpcode(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownOpcode, fields[0])
	}
	args := fields[1:]
	if want := GetOpcodeInfo(op).Operands; len(args) != want {
		return nil, fmt.Errorf("%s takes %d operand(s), got %d: %w", op, want, len(args), ErrOperandCount)
	}

	switch op {
	case OpReserve, OpUnreserve:
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s size %q: %w", op, args[1], err)
		}
		if op == OpReserve {
			return Reserve{Name: args[0], Size: size}, nil
		}
		return Unreserve{Name: args[0], Size: size}, nil
	case OpPush:
		return Push{Operand: args[0]}, nil
	case OpPop:
		return Pop{Name: args[0]}, nil
	case OpDup:
		return Dup{}, nil
	case OpAddC:
		return AddC{}, nil
	case OpSubC:
		return SubC{}, nil
	case OpNot:
		return Not{}, nil
	case OpAnd:
		return And{}, nil
	case OpOr:
		return Or{}, nil
	case OpXor:
		return Xor{}, nil
	case OpEq:
		return Eq{}, nil
	case OpOut:
		return Out{}, nil
	case OpIn:
		return In{}, nil
	case OpLabel:
		return Label{Name: args[0]}, nil
	case OpJump:
		return Jump{Target: args[0]}, nil
	case OpCond:
		return Cond{True: args[0], False: args[1]}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownOpcode, fields[0])
}
