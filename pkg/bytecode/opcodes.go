package bytecode

import "fmt"

// Opcode identifies a stack bytecode operation.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Frame management (0x00-0x0F)
	// ========================================================================

	OpReserve   Opcode = 0x00 // Reserve a named frame slot: reserve <name> <size>
	OpUnreserve Opcode = 0x01 // Release a named frame slot: unreserve <name> <size>

	// ========================================================================
	// Stack transfer (0x10-0x1F)
	// ========================================================================

	OpPush Opcode = 0x10 // Push a sized literal: push <literal>
	OpPop  Opcode = 0x11 // Pop top of stack into a slot: pop <name>
	OpDup  Opcode = 0x12 // Duplicate top of stack

	// ========================================================================
	// Arithmetic (0x20-0x2F)
	// ========================================================================

	OpAddC Opcode = 0x20 // Pop two chars, push sum
	OpSubC Opcode = 0x21 // Pop two chars, push difference (a - b where b is TOS)

	// ========================================================================
	// Logical (0x30-0x3F)
	// ========================================================================

	OpNot Opcode = 0x30 // Push 1 if TOS is zero, else 0
	OpAnd Opcode = 0x31 // Pop two, push 1 if both nonzero
	OpOr  Opcode = 0x32 // Pop two, push 1 if either nonzero
	OpXor Opcode = 0x33 // Pop two, push 1 if exactly one nonzero
	OpEq  Opcode = 0x34 // Pop two, push 1 if equal

	// ========================================================================
	// I/O (0x40-0x4F)
	// ========================================================================

	OpOut Opcode = 0x40 // Pop and write one character
	OpIn  Opcode = 0x41 // Read one character and push it

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpLabel Opcode = 0x80 // Start of a basic block: label <name>
	OpJump  Opcode = 0x81 // Unconditional transfer: jump <label>
	OpCond  Opcode = 0x82 // Pop and branch: cond <true-label> <false-label>
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Mnemonic used by the text format
	StackPop  int    // How many expression stack cells are consumed
	StackPush int    // How many expression stack cells are produced
	Operands  int    // Number of textual operands
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpReserve:   {"reserve", 0, 0, 2},
	OpUnreserve: {"unreserve", 0, 0, 2},

	OpPush: {"push", 0, 1, 1},
	OpPop:  {"pop", 1, 0, 1},
	OpDup:  {"dup", 1, 2, 0},

	OpAddC: {"addc", 2, 1, 0},
	OpSubC: {"subc", 2, 1, 0},

	OpNot: {"not", 1, 1, 0},
	OpAnd: {"and", 2, 1, 0},
	OpOr:  {"or", 2, 1, 0},
	OpXor: {"xor", 2, 1, 0},
	OpEq:  {"eq", 2, 1, 0},

	OpOut: {"out", 1, 0, 0},
	OpIn:  {"in", 0, 1, 0},

	OpLabel: {"label", 0, 0, 1},
	OpJump:  {"jump", 0, 0, 1},
	OpCond:  {"cond", 1, 0, 2},
}

// opcodesByName is the reverse of opcodeInfoTable, used by the assembler.
var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode resolves a mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsControl returns true for opcodes resolved by the control-flow stage.
func (op Opcode) IsControl() bool {
	return op >= 0x80 && op <= 0x8F
}

// IsTerminator returns true for opcodes that end a basic block.
func (op Opcode) IsTerminator() bool {
	return op == OpJump || op == OpCond
}
