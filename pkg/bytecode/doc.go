// Package bytecode defines the linear stack bytecode consumed by the tape
// backend. A front-end walks its syntax tree and emits these instructions;
// the backend never mutates them.
//
// The instruction set is deliberately small:
//
//   - Frame management: reserve and unreserve lay named slots out on the tape
//     and release them again.
//
//   - Stack transfer: push places a sized literal on top of the expression
//     stack, pop stores the top into a named slot, dup duplicates it.
//
//   - Arithmetic and logic on char-sized cells: addc, subc, not, and, or,
//     xor, eq.
//
//   - I/O: out writes the top of stack as a character, in reads one.
//
//   - Control flow: label, jump and cond. These are opaque to straight-line
//     lowering and are resolved once the code has been partitioned into a
//     Program of basic blocks.
//
// # Instructions
//
// Instr is a closed sum type: every variant is a small struct in instr.go
// and reports its Opcode. OpcodeInfo describes the stack effect of each
// opcode for validation and listings.
//
// # Programs
//
// AddLabels, AddJumps and Partition turn a flat instruction list into a
// Program: an entry label plus a map from label to BasicBlock, where each
// block records its true and (for conditional blocks) false exit. Unique
// labels come from a Labeler owned by the caller.
//
// # Text format
//
// Parse and Format convert between instructions and a line-oriented text
// form used by the tapec driver and by tests.
package bytecode
