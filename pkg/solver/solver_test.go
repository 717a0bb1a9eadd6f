package solver

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/symopt/symopt/pkg/affine"
)

func testSolver(t *testing.T) Solver {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return NewSimplex(log, WithVerbose(true))
}

func variable(t *testing.T, idx int) *affine.Matrix {
	t.Helper()

	m, err := affine.FromIndices([][]int{{idx}})
	require.NoError(t, err)

	return m
}

func constrain(t *testing.T, a, b *affine.Matrix, sense affine.Sense) *affine.Constraint {
	t.Helper()

	con, err := affine.Compare(a, b, sense)
	require.NoError(t, err)

	return con
}

func objective(t *testing.T, sense affine.ObjectiveSense, expr *affine.Matrix) *affine.Objective {
	t.Helper()

	obj, err := affine.NewObjective(sense, expr)
	require.NoError(t, err)

	return obj
}

func add(t *testing.T, a, b *affine.Matrix) *affine.Matrix {
	t.Helper()

	sum, err := affine.Add(a, b)
	require.NoError(t, err)

	return sum
}

func scale(t *testing.T, factor float64, m *affine.Matrix) *affine.Matrix {
	t.Helper()

	scaled, err := affine.Mul(affine.Scalar(factor), m)
	require.NoError(t, err)

	return scaled
}

// maximize 3x + 4y subject to x + 2y <= 14, 3x - y >= 0, x - y <= 2 and
// nonnegativity. The optimum sits at (6, 4) with objective 34.
func TestSimplex_Optimal(t *testing.T) {
	x, y := variable(t, 0), variable(t, 1)
	zero := affine.Scalar(0)

	p := &Problem{
		Objective: objective(t, affine.Maximize, add(t, scale(t, 3, x), scale(t, 4, y))),
		Constraints: []*affine.Constraint{
			constrain(t, add(t, x, scale(t, 2, y)), affine.Scalar(14), affine.Le),
			constrain(t, add(t, scale(t, 3, x), scale(t, -1, y)), zero, affine.Ge),
			constrain(t, add(t, x, scale(t, -1, y)), affine.Scalar(2), affine.Le),
			constrain(t, x, zero, affine.Ge),
			constrain(t, y, zero, affine.Ge),
		},
	}

	res, err := testSolver(t).Solve(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 34, res.Objective, 1e-9)
	assert.InDelta(t, 6, res.Values[0], 1e-9)
	assert.InDelta(t, 4, res.Values[1], 1e-9)
}

func TestSimplex_EqualityAndOffset(t *testing.T) {
	x := variable(t, 0)

	// minimize x + 10 subject to x == 5.
	expr := add(t, x, affine.Scalar(10))

	p := &Problem{
		Objective: objective(t, affine.Minimize, expr),
		Constraints: []*affine.Constraint{
			constrain(t, x, affine.Scalar(5), affine.Eq),
		},
	}

	res, err := testSolver(t).Solve(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 15, res.Objective, 1e-9)
	assert.InDelta(t, 5, res.Values[0], 1e-9)
}

func TestSimplex_VectorConstraint(t *testing.T) {
	// minimize x0 + x1 subject to [x0, x1] >= [3, 7] element-wise.
	vec, err := affine.FromIndices([][]int{{0}, {1}})
	require.NoError(t, err)

	bounds := affine.Constant(mat.NewDense(2, 1, []float64{3, 7}))

	p := &Problem{
		Objective: objective(t, affine.Minimize, affine.Sum(vec)),
		Constraints: []*affine.Constraint{
			constrain(t, vec, bounds, affine.Ge),
		},
	}

	res, err := testSolver(t).Solve(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 10, res.Objective, 1e-9)
	assert.InDelta(t, 3, res.Values[0], 1e-9)
	assert.InDelta(t, 7, res.Values[1], 1e-9)
}

func TestSimplex_Infeasible(t *testing.T) {
	x := variable(t, 0)

	p := &Problem{
		Objective: objective(t, affine.Minimize, x),
		Constraints: []*affine.Constraint{
			constrain(t, x, affine.Scalar(3), affine.Ge),
			constrain(t, x, affine.Scalar(1), affine.Le),
		},
	}

	res, err := testSolver(t).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, res.Status)
	assert.Nil(t, res.Values)
}

func TestSimplex_Unbounded(t *testing.T) {
	x := variable(t, 0)

	p := &Problem{
		Objective: objective(t, affine.Maximize, x),
		Constraints: []*affine.Constraint{
			constrain(t, x, affine.Scalar(0), affine.Ge),
		},
	}

	res, err := testSolver(t).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusUnbounded, res.Status)
}

func TestSimplex_NoConstraints(t *testing.T) {
	res, err := testSolver(t).Solve(context.Background(), &Problem{
		Objective: objective(t, affine.Minimize, affine.Scalar(7)),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 7, res.Objective, 1e-9)

	res, err = testSolver(t).Solve(context.Background(), &Problem{
		Objective: objective(t, affine.Minimize, variable(t, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUnbounded, res.Status)
}

func TestSimplex_NoObjective(t *testing.T) {
	_, err := testSolver(t).Solve(context.Background(), &Problem{})
	assert.ErrorIs(t, err, ErrNoObjective)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "unset", StatusUnset.String())
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "infeasible", StatusInfeasible.String())
	assert.Equal(t, "unbounded", StatusUnbounded.String())
	assert.Equal(t, "error", StatusError.String())
}
