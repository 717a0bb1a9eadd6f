package solver

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/affine"
)

// Solver errors
var (
	ErrNoObjective = errors.New("problem has no objective")
)

// Problem is one numerical problem ready for the backend: a scalar objective
// and element-wise constraints over a shared decision space.
type Problem struct {
	Objective   *affine.Objective
	Constraints []*affine.Constraint
}

// Result carries the backend outcome. Values maps decision space indices to
// their optimal value and is populated only for StatusOptimal.
type Result struct {
	Status    Status
	Objective float64
	Values    map[int]float64
	// Err describes a StatusError outcome. Infeasible and unbounded are
	// not errors.
	Err error
}

// Solver solves numerical problems.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Result, error)
}

// Option configures a solver.
type Option func(*options)

type options struct {
	tolerance float64
	verbose   bool
}

// WithTolerance overrides the backend's pivot tolerance. Zero keeps the
// backend default.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

// WithVerbose logs the lowered standard form before solving.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// NewSimplex builds the linear programming backend on gonum's simplex
// implementation. Affine problems are lowered to standard form: free
// variables split into positive and negative parts, inequalities closed with
// slack variables.
func NewSimplex(log logrus.FieldLogger, opts ...Option) Solver {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &simplex{
		log:  log.WithField("component", "solver"),
		opts: o,
	}
}
