// Package compiler lowers stack bytecode to tape-relative macro-ops and
// drives the code generator.
//
// Straight-line code is lowered by Lower; control flow is left in place as
// bil.Control for a later stage. LowerProgram resolves control flow for the
// tape target by dispatching basic blocks from a program counter cell. Build,
// BuildProgram and Compile run lowering and code generation together.
package compiler
