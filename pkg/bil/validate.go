package bil

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAliasedCells is returned when operands that must be disjoint name
	// the same cell.
	ErrAliasedCells = errors.New("aliased operand cells")

	// ErrEmptyOperandList is returned for And/Or with no sources.
	ErrEmptyOperandList = errors.New("empty operand list")

	// ErrTooFewOperands is returned when a list operand is shorter than the
	// op requires.
	ErrTooFewOperands = errors.New("too few operands")

	// ErrBodyDisplacement is returned when a Cond, Loop or Branch body moves
	// the pointer.
	ErrBodyDisplacement = errors.New("body is not pointer-neutral")

	// ErrInvalidLiteral is returned for Literal text outside the instruction
	// alphabet.
	ErrInvalidLiteral = errors.New("invalid literal text")
)

// OperandError reports a macro-op whose operands break its contract.
type OperandError struct {
	Op  Op
	Err error
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperandError) Unwrap() error { return e.Err }

// Validate checks the operand contract of op, including the disjointness
// preconditions the code generator relies on but does not check itself.
// Bodies of Cond, Loop and Branch are validated recursively.
func Validate(op Op) error {
	if err := validate(op); err != nil {
		var oe *OperandError
		if errors.As(err, &oe) {
			return err
		}
		return &OperandError{Op: op, Err: err}
	}
	return nil
}

// ValidateAll validates every op in order and returns the first failure.
func ValidateAll(ops []Op) error {
	for _, o := range ops {
		if err := Validate(o); err != nil {
			return err
		}
	}
	return nil
}

func validate(op Op) error {
	switch o := op.(type) {
	case Go, Add, Zero, Control:
		return nil
	case Literal:
		if strings.Trim(o.Text, "><+-.,[] \t\r\n") != "" {
			return ErrInvalidLiteral
		}
		return nil
	case Move:
		return distinct(o.Dst, o.Src)
	case Unmove:
		return distinct(o.Dst, o.Src)
	case Copy:
		return distinct(o.Dst, o.Src, o.Work)
	case IsZero:
		if len(o.Preserve) != 0 && len(o.Preserve) != 2 {
			return fmt.Errorf("preserve needs 2 cells, got %d: %w", len(o.Preserve), ErrTooFewOperands)
		}
		return distinct(append([]int{o.Dst, o.Src}, o.Preserve...)...)
	case And:
		if len(o.Srcs) == 0 {
			return ErrEmptyOperandList
		}
		return distinct(append([]int{o.Dst, o.Work}, o.Srcs...)...)
	case Or:
		if len(o.Srcs) == 0 {
			return ErrEmptyOperandList
		}
		return distinct(append([]int{o.Dst}, o.Srcs...)...)
	case Xor:
		if len(o.Srcs) < 2 {
			return fmt.Errorf("xor needs at least 2 sources: %w", ErrTooFewOperands)
		}
		return distinct(append([]int{o.Dst, o.Work}, o.Srcs...)...)
	case IsEq:
		if len(o.Work) != 0 && len(o.Work) != 2 {
			return fmt.Errorf("iseq needs 0 or 2 work cells, got %d: %w", len(o.Work), ErrTooFewOperands)
		}
		return distinct(append([]int{o.Dst, o.First, o.Second}, o.Work...)...)
	case Cond:
		return validateBody(o.Body)
	case Loop:
		return validateBody(o.Body)
	case Branch:
		if err := distinct(o.Src, o.Work); err != nil {
			return err
		}
		if err := validateBody(o.Then); err != nil {
			return err
		}
		return validateBody(o.Else)
	}
	return fmt.Errorf("unknown macro-op %T", op)
}

func validateBody(body []Op) error {
	if d := Displacement(body...); d != 0 {
		return fmt.Errorf("net displacement %d: %w", d, ErrBodyDisplacement)
	}
	for _, o := range body {
		if err := Validate(o); err != nil {
			return err
		}
	}
	return nil
}

func distinct(cells ...int) error {
	seen := make(map[int]bool, len(cells))
	for _, c := range cells {
		if seen[c] {
			return fmt.Errorf("cell %d used twice: %w", c, ErrAliasedCells)
		}
		seen[c] = true
	}
	return nil
}
