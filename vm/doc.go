// Package vm implements the tape machine that runs generated code.
//
// This package contains:
//   - A fixed-capacity byte tape with a single pointer
//   - The eight-instruction interpreter with dynamic bracket matching
//   - Trace dumps bounded by the farthest nonzero cell
//   - A step hook and an instruction budget for debugging drivers
package vm
