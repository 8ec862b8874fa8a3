package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/tapec/pkg/bytecode"
)

// Lowering failures. Every one is fatal; no partial output is returned.
var (
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrNegativeDepth      = errors.New("negative stack depth")
	ErrStackUnderflow     = errors.New("expression stack underflow")
	ErrUnsupportedOperand = errors.New("unsupported operand")
	ErrUnsupportedOpcode  = errors.New("unsupported opcode")
	ErrFrameMismatch      = errors.New("frame mismatch")
	ErrUnbalancedBlock    = errors.New("block leaves the stack unbalanced")
	ErrTooManyBlocks      = errors.New("too many basic blocks")
)

// LoweringError reports the instruction that could not be lowered.
type LoweringError struct {
	Block string         // enclosing basic block, empty for straight-line code
	Index int            // position of Instr in its list
	Instr bytecode.Instr // nil for errors about a whole block
	Err   error
}

func (e *LoweringError) Error() string {
	where := ""
	if e.Block != "" {
		where = fmt.Sprintf("block %q: ", e.Block)
	}
	if e.Instr == nil {
		return fmt.Sprintf("lowering: %s%v", where, e.Err)
	}
	return fmt.Sprintf("lowering: %sinstruction %d (%s): %v", where, e.Index, e.Instr, e.Err)
}

func (e *LoweringError) Unwrap() error { return e.Err }
