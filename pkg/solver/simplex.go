package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/symopt/symopt/pkg/affine"
)

type simplex struct {
	log  logrus.FieldLogger
	opts options
}

// standardForm is the lowered problem: minimize c·y subject to A·y = b with
// y ≥ 0. Each decision index occupies two columns (positive and negative
// part); every inequality row appends one slack column.
type standardForm struct {
	// indices holds the decision space indices in column order.
	indices []int
	// column maps a decision index to its positive-part column. The
	// negative part sits at column+1.
	column map[int]int

	c      []float64
	a      *mat.Dense
	b      []float64
	nSlack int

	// negate restores the sign of the objective value for maximization.
	negate bool
	// offset is the objective's constant term, excluded from c.
	offset float64
}

func (s *simplex) Solve(ctx context.Context, p *Problem) (*Result, error) {
	if p.Objective == nil {
		return nil, ErrNoObjective
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	form, err := lower(p)
	if err != nil {
		return nil, fmt.Errorf("lowering problem: %w", err)
	}

	if s.opts.verbose {
		rows := 0
		if form.a != nil {
			rows, _ = form.a.Dims()
		}

		s.log.WithFields(logrus.Fields{
			"variables": len(form.indices),
			"rows":      rows,
			"columns":   len(form.c),
			"slack":     form.nSlack,
			"maximize":  form.negate,
		}).Debug("Lowered problem to standard form")
	}

	// No constraint rows: the optimum is the origin when the objective
	// has no variable terms, otherwise the problem is unbounded.
	if form.a == nil {
		return form.trivialResult(), nil
	}

	objective, solution, err := lp.Simplex(form.c, form.a, form.b, s.opts.tolerance, nil)

	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return &Result{Status: StatusInfeasible}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return &Result{Status: StatusUnbounded}, nil
	case err != nil:
		return &Result{Status: StatusError, Err: err}, nil
	}

	return form.result(objective, solution), nil
}

// lower translates the affine problem into standard form.
func lower(p *Problem) (*standardForm, error) {
	form := &standardForm{column: make(map[int]int)}

	seen := make(map[int]bool)
	collect := func(indices []int) {
		for _, idx := range indices {
			if !seen[idx] {
				seen[idx] = true

				form.indices = append(form.indices, idx)
			}
		}
	}

	collect(p.Objective.Expr.Indices())

	for _, con := range p.Constraints {
		collect(con.Expr.Indices())
	}

	sort.Ints(form.indices)

	for j, idx := range form.indices {
		form.column[idx] = 2 * j
	}

	nRows := 0

	for _, con := range p.Constraints {
		r, c := con.Expr.Dims()
		nRows += r * c

		if con.Sense != affine.Eq {
			form.nSlack += r * c
		}
	}

	nCols := 2*len(form.indices) + form.nSlack

	form.buildObjective(p.Objective, nCols)

	if nRows > 0 {
		form.buildRows(p.Constraints, nRows, nCols)
	}

	return form, nil
}

func (f *standardForm) buildObjective(obj *affine.Objective, nCols int) {
	f.c = make([]float64, nCols)

	constant, coeffs := obj.Expr.Coefficients(0, 0)
	f.offset = constant

	sign := 1.0
	if obj.Sense == affine.Maximize {
		sign = -1
		f.negate = true
	}

	for idx, coef := range coeffs {
		col := f.column[idx]
		f.c[col] = sign * coef
		f.c[col+1] = -sign * coef
	}
}

// buildRows emits one equality row per constraint cell. Greater-or-equal
// rows are negated into less-or-equal form before the slack is attached.
func (f *standardForm) buildRows(constraints []*affine.Constraint, nRows, nCols int) {
	a := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)

	row := 0
	slack := 2 * len(f.indices)

	for _, con := range constraints {
		rows, cols := con.Expr.Dims()

		rowSign := 1.0
		if con.Sense == affine.Ge {
			rowSign = -1
		}

		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				constant, coeffs := con.Expr.Coefficients(i, j)

				for idx, coef := range coeffs {
					col := f.column[idx]
					a.Set(row, col, rowSign*coef)
					a.Set(row, col+1, -rowSign*coef)
				}

				b[row] = -rowSign * constant

				if con.Sense != affine.Eq {
					a.Set(row, slack, 1)
					slack++
				}

				row++
			}
		}
	}

	f.a = a
	f.b = b
}

// trivialResult handles the unconstrained case without invoking the backend.
func (f *standardForm) trivialResult() *Result {
	for _, coef := range f.c {
		if coef != 0 {
			return &Result{Status: StatusUnbounded}
		}
	}

	values := make(map[int]float64, len(f.indices))
	for _, idx := range f.indices {
		values[idx] = 0
	}

	return &Result{Status: StatusOptimal, Objective: f.offset, Values: values}
}

func (f *standardForm) result(objective float64, solution []float64) *Result {
	values := make(map[int]float64, len(f.indices))

	for _, idx := range f.indices {
		col := f.column[idx]
		values[idx] = solution[col] - solution[col+1]
	}

	if f.negate {
		objective = -objective
	}

	return &Result{
		Status:    StatusOptimal,
		Objective: objective + f.offset,
		Values:    values,
	}
}
