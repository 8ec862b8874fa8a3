package vm

import (
	"errors"
	"fmt"
)

// Machine faults. A fault halts execution immediately and is never retried.
var (
	ErrPointerUnderflow        = errors.New("pointer underflow")
	ErrPointerOverflow         = errors.New("pointer overflow")
	ErrUnbalancedLoop          = errors.New("unbalanced loop")
	ErrUnrecognizedInstruction = errors.New("unrecognized instruction")
)

// ErrStepLimit is returned when a run exhausts Options.MaxSteps.
var ErrStepLimit = errors.New("step limit reached")

// ErrAborted can be returned by a Stepper to stop a run early.
var ErrAborted = errors.New("aborted")

// Fault reports a machine fault with the state at the point of failure.
type Fault struct {
	Err     error // one of the Err* fault sentinels
	IP      int   // index of the faulting instruction
	Pointer int   // tape pointer when the fault occurred
	Instr   byte  // faulting instruction character, 0 at end of program
}

func (f *Fault) Error() string {
	if f.Instr == 0 {
		return fmt.Sprintf("vm: %v at end of program (pointer %d)", f.Err, f.Pointer)
	}
	return fmt.Sprintf("vm: %v at instruction %d %q (pointer %d)", f.Err, f.IP, f.Instr, f.Pointer)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsFault checks if an error is a machine fault.
func IsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
