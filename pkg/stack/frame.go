// Package stack models the compile-time layout of one function's tape frame:
// the named slots a function reserves and where each one sits relative to the
// frame base.
package stack

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/tapec/pkg/bytecode"
)

// ErrDuplicateSlot is returned when a slot name is registered twice.
var ErrDuplicateSlot = errors.New("duplicate slot")

// ErrInvalidSize is returned for slots whose size is not positive.
var ErrInvalidSize = errors.New("invalid slot size")

// SlotError reports a rejected slot registration.
type SlotError struct {
	Name string
	Size int
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %q (size %d): %v", e.Name, e.Size, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// Slot is one named region of a frame.
type Slot struct {
	Name   string
	Size   int
	Offset int // cumulative offset from the frame base
}

// Frame is an insertion-ordered mapping from slot name to size.
// A frame is built once per function and only read after it is handed to
// the lowering stage.
type Frame struct {
	names []string
	sizes map[string]int
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{sizes: make(map[string]int)}
}

// Add registers a slot. Names may not repeat.
func (f *Frame) Add(name string, size int) error {
	if size <= 0 {
		return &SlotError{Name: name, Size: size, Err: ErrInvalidSize}
	}
	if _, ok := f.sizes[name]; ok {
		return &SlotError{Name: name, Size: size, Err: ErrDuplicateSlot}
	}
	f.names = append(f.names, name)
	f.sizes[name] = size
	return nil
}

// Merge appends the slots of other after the slots of f. Any name present in
// both frames is rejected and f is left untouched.
func (f *Frame) Merge(other *Frame) error {
	for _, name := range other.names {
		if _, ok := f.sizes[name]; ok {
			return &SlotError{Name: name, Size: other.sizes[name], Err: ErrDuplicateSlot}
		}
	}
	for _, name := range other.names {
		f.names = append(f.names, name)
		f.sizes[name] = other.sizes[name]
	}
	return nil
}

// MergeOverwrite is Merge with later names winning: a conflicting slot keeps
// its position in f but takes the size from other.
func (f *Frame) MergeOverwrite(other *Frame) {
	for _, name := range other.names {
		if _, ok := f.sizes[name]; !ok {
			f.names = append(f.names, name)
		}
		f.sizes[name] = other.sizes[name]
	}
}

// Names returns slot names in insertion order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Len returns the number of slots.
func (f *Frame) Len() int {
	return len(f.names)
}

// Has reports whether name is a slot of the frame.
func (f *Frame) Has(name string) bool {
	_, ok := f.sizes[name]
	return ok
}

// Size returns the size of the named slot.
func (f *Frame) Size(name string) (int, bool) {
	size, ok := f.sizes[name]
	return size, ok
}

// Offset returns the cumulative offset of the named slot from the frame base.
func (f *Frame) Offset(name string) (int, bool) {
	off := 0
	for _, n := range f.names {
		if n == name {
			return off, true
		}
		off += f.sizes[n]
	}
	return 0, false
}

// Slots returns every slot with its offset, in insertion order.
func (f *Frame) Slots() []Slot {
	slots := make([]Slot, 0, len(f.names))
	off := 0
	for _, n := range f.names {
		slots = append(slots, Slot{Name: n, Size: f.sizes[n], Offset: off})
		off += f.sizes[n]
	}
	return slots
}

// TotalSize returns the sum of all slot sizes.
func (f *Frame) TotalSize() int {
	total := 0
	for _, size := range f.sizes {
		total += size
	}
	return total
}

// Reserves returns the reserve instructions that lay the frame out on entry.
func (f *Frame) Reserves() []bytecode.Instr {
	code := make([]bytecode.Instr, 0, len(f.names))
	for _, n := range f.names {
		code = append(code, bytecode.Reserve{Name: n, Size: f.sizes[n]})
	}
	return code
}

// Unreserves returns the matching unreserve instructions, innermost first.
func (f *Frame) Unreserves() []bytecode.Instr {
	code := make([]bytecode.Instr, 0, len(f.names))
	for i := len(f.names) - 1; i >= 0; i-- {
		n := f.names[i]
		code = append(code, bytecode.Unreserve{Name: n, Size: f.sizes[n]})
	}
	return code
}

// FromBytecode builds a frame from the reserve instructions in code.
func FromBytecode(code []bytecode.Instr) (*Frame, error) {
	f := NewFrame()
	for _, in := range code {
		r, ok := in.(bytecode.Reserve)
		if !ok {
			continue
		}
		if err := f.Add(r.Name, r.Size); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, n := range f.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %d", n, f.sizes[n])
	}
	sb.WriteByte('}')
	return sb.String()
}
