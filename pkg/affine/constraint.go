package affine

import "fmt"

// Sense is a constraint relation against zero.
type Sense int

// Constraint senses
const (
	Eq Sense = iota
	Le
	Ge
)

func (s Sense) String() string {
	switch s {
	case Eq:
		return "=="
	case Le:
		return "<="
	case Ge:
		return ">="
	default:
		return "unknown"
	}
}

// Constraint is the element-wise relation Expr ⋈ 0.
type Constraint struct {
	Sense Sense
	Expr  *Matrix
}

// Compare builds the constraint a ⋈ b, cell by cell, with scalar broadcast.
func Compare(a, b *Matrix, sense Sense) (*Constraint, error) {
	diff, err := Sub(a, b)
	if err != nil {
		return nil, fmt.Errorf("comparison operands: %w", err)
	}

	return &Constraint{Sense: sense, Expr: diff}, nil
}

// ObjectiveSense is the optimization direction.
type ObjectiveSense int

// Objective directions
const (
	Minimize ObjectiveSense = iota
	Maximize
)

func (s ObjectiveSense) String() string {
	if s == Maximize {
		return "maximize"
	}

	return "minimize"
}

// Objective is a scalar expression with a direction.
type Objective struct {
	Sense ObjectiveSense
	Expr  *Matrix
}

// NewObjective wraps a scalar expression. Non-scalar expressions are
// collapsed with Sum first by callers; here they are an error.
func NewObjective(sense ObjectiveSense, expr *Matrix) (*Objective, error) {
	if !expr.IsScalar() {
		r, c := expr.Dims()
		return nil, fmt.Errorf("%w: objective has shape (%d, %d)", ErrNotScalar, r, c)
	}

	return &Objective{Sense: sense, Expr: expr}, nil
}
