package bytecode

import (
	"fmt"
	"strconv"
)

// Instr is a single stack bytecode instruction. The set of implementations
// is closed: every variant lives in this file.
type Instr interface {
	Opcode() Opcode
	String() string
	instr() // marker method
}

// Reserve lays out a named frame slot of Size cells above the current top.
type Reserve struct {
	Name string
	Size int
}

// Unreserve releases a slot previously laid out by Reserve.
type Unreserve struct {
	Name string
	Size int
}

// Push pushes a sized literal such as "5c" (a char-sized 5).
type Push struct {
	Operand string
}

// Pop stores the top of stack into the named slot, replacing its previous
// value rather than adding to it.
type Pop struct {
	Name string
}

// Dup duplicates the top of stack.
type Dup struct{}

// AddC adds the top of stack into the cell below it.
type AddC struct{}

// SubC subtracts the top of stack from the cell below it.
type SubC struct{}

// Not replaces the top of stack with 1 if it was zero, else 0.
type Not struct{}

// And replaces the top two cells with 1 if both were nonzero.
type And struct{}

// Or replaces the top two cells with 1 if either was nonzero.
type Or struct{}

// Xor replaces the top two cells with 1 if exactly one was nonzero.
type Xor struct{}

// Eq replaces the top two cells with 1 if they were equal.
type Eq struct{}

// Out pops the top of stack and writes it as a character.
type Out struct{}

// In reads a character and pushes it.
type In struct{}

// Label starts a basic block.
type Label struct {
	Name string
}

// Jump transfers control to Target.
type Jump struct {
	Target string
}

// Cond pops the top of stack and transfers to True if it was nonzero,
// otherwise to False.
type Cond struct {
	True  string
	False string
}

func (Reserve) Opcode() Opcode   { return OpReserve }
func (Unreserve) Opcode() Opcode { return OpUnreserve }
func (Push) Opcode() Opcode      { return OpPush }
func (Pop) Opcode() Opcode       { return OpPop }
func (Dup) Opcode() Opcode       { return OpDup }
func (AddC) Opcode() Opcode      { return OpAddC }
func (SubC) Opcode() Opcode      { return OpSubC }
func (Not) Opcode() Opcode       { return OpNot }
func (And) Opcode() Opcode       { return OpAnd }
func (Or) Opcode() Opcode        { return OpOr }
func (Xor) Opcode() Opcode       { return OpXor }
func (Eq) Opcode() Opcode        { return OpEq }
func (Out) Opcode() Opcode       { return OpOut }
func (In) Opcode() Opcode        { return OpIn }
func (Label) Opcode() Opcode     { return OpLabel }
func (Jump) Opcode() Opcode      { return OpJump }
func (Cond) Opcode() Opcode      { return OpCond }

func (Reserve) instr()   {}
func (Unreserve) instr() {}
func (Push) instr()      {}
func (Pop) instr()       {}
func (Dup) instr()       {}
func (AddC) instr()      {}
func (SubC) instr()      {}
func (Not) instr()       {}
func (And) instr()       {}
func (Or) instr()        {}
func (Xor) instr()       {}
func (Eq) instr()        {}
func (Out) instr()       {}
func (In) instr()        {}
func (Label) instr()     {}
func (Jump) instr()      {}
func (Cond) instr()      {}

func (i Reserve) String() string   { return fmt.Sprintf("reserve %s %d", i.Name, i.Size) }
func (i Unreserve) String() string { return fmt.Sprintf("unreserve %s %d", i.Name, i.Size) }
func (i Push) String() string      { return "push " + i.Operand }
func (i Pop) String() string       { return "pop " + i.Name }
func (Dup) String() string         { return "dup" }
func (AddC) String() string        { return "addc" }
func (SubC) String() string        { return "subc" }
func (Not) String() string         { return "not" }
func (And) String() string         { return "and" }
func (Or) String() string          { return "or" }
func (Xor) String() string         { return "xor" }
func (Eq) String() string          { return "eq" }
func (Out) String() string         { return "out" }
func (In) String() string          { return "in" }
func (i Label) String() string     { return "label " + i.Name }
func (i Jump) String() string      { return "jump " + i.Target }
func (i Cond) String() string      { return fmt.Sprintf("cond %s %s", i.True, i.False) }

// Char returns a push of the char-sized literal v.
func Char(v int) Push {
	return Push{Operand: strconv.Itoa(v) + "c"}
}
