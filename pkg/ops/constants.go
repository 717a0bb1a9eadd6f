// Package ops holds the fixed numerical vocabulary of the symbolic grammar:
// the catalog of named constant generators and the special operators
// (shift, annuity, weibull, power, matrix inverse) expressions can call.
package ops

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shape is a (rows, cols) pair resolved from a variable's coordinate sets.
type Shape struct {
	Rows int
	Cols int
}

// IsVector reports whether at least one dimension equals one.
func (s Shape) IsVector() bool {
	return s.Rows == 1 || s.Cols == 1
}

// Max returns the larger dimension.
func (s Shape) Max() int {
	if s.Rows > s.Cols {
		return s.Rows
	}

	return s.Cols
}

func (s Shape) validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrBadShape, s.Rows, s.Cols)
	}

	return nil
}

// Generator materializes a constant value for a resolved shape.
type Generator func(Shape) (*mat.Dense, error)

// generators is the fixed catalog of named constant generators available to
// variable declarations. Static mapping, resolved once at package init.
//
//nolint:gochecknoglobals // fixed grammar catalog
var generators = map[string]Generator{
	"sum_vector":       Ones,
	"identity":         Identity,
	"set_length":       SetLength,
	"arange_1":         func(s Shape) (*mat.Dense, error) { return Arange(s, 1) },
	"arange_0":         func(s Shape) (*mat.Dense, error) { return Arange(s, 0) },
	"lower_triangular": Tril,
}

// LookupGenerator resolves a constant generator by its grammar name.
func LookupGenerator(name string) (Generator, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (allowed: %v)", ErrUnknownGenerator, name, GeneratorNames())
	}

	return gen, nil
}

// GeneratorNames lists the catalog in stable order.
func GeneratorNames() []string {
	return []string{
		"arange_0", "arange_1", "identity",
		"lower_triangular", "set_length", "sum_vector",
	}
}

// Ones returns a matrix of ones with the given shape.
func Ones(s Shape) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	data := make([]float64, s.Rows*s.Cols)
	for i := range data {
		data[i] = 1
	}

	return mat.NewDense(s.Rows, s.Cols, data), nil
}

// Identity returns the identity matrix sized by the shape: for a vector shape
// the size is the larger dimension, otherwise the shape must be square.
func Identity(s Shape) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	n := s.Max()
	if !s.IsVector() && s.Rows != s.Cols {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrNotSquare, s.Rows, s.Cols)
	}

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}

	return out, nil
}

// SetLength returns the larger dimension of the shape as a 1x1 matrix.
func SetLength(s Shape) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	return mat.NewDense(1, 1, []float64{float64(s.Max())}), nil
}

// Arange returns the shape filled with the sequence startFrom, startFrom+1,
// ... in column-major order, matching the coordinate row enumeration.
func Arange(s Shape, startFrom int) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	out := mat.NewDense(s.Rows, s.Cols, nil)
	v := float64(startFrom)
	for c := 0; c < s.Cols; c++ {
		for r := 0; r < s.Rows; r++ {
			out.Set(r, c, v)
			v++
		}
	}

	return out, nil
}

// Tril returns a square lower-triangular matrix of ones (diagonal included)
// sized by the larger dimension. The shape must describe a vector.
func Tril(s Shape) (*mat.Dense, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	if !s.IsVector() {
		return nil, fmt.Errorf("%w: (%d, %d) does not describe a vector", ErrNotVector, s.Rows, s.Cols)
	}

	n := s.Max()
	out := mat.NewDense(n, n, nil)
	for r := 0; r < n; r++ {
		for c := 0; c <= r; c++ {
			out.Set(r, c, 1)
		}
	}

	return out, nil
}

// AsScalar extracts the single value of a 1x1 (or single-element) matrix.
func AsScalar(m *mat.Dense) (float64, error) {
	r, c := m.Dims()
	if r*c != 1 {
		return 0, fmt.Errorf("%w: shape (%d, %d)", ErrNotScalar, r, c)
	}

	v := m.At(0, 0)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonNumeric, v)
	}

	return v, nil
}

// AsVector extracts the values of a row or column vector.
func AsVector(m *mat.Dense) ([]float64, error) {
	r, c := m.Dims()
	if r != 1 && c != 1 {
		return nil, fmt.Errorf("%w: shape (%d, %d)", ErrNotVector, r, c)
	}

	out := make([]float64, r*c)
	for i := range out {
		if r == 1 {
			out[i] = m.At(0, i)
		} else {
			out[i] = m.At(i, 0)
		}
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("%w: %v", ErrNonNumeric, out[i])
		}
	}

	return out, nil
}
