package affine

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// form is one affine scalar: constant + sum of coeff*x over global indices.
type form struct {
	constant float64
	coeffs   map[int]float64
}

func (f form) isConstant() bool {
	return len(f.coeffs) == 0
}

func (f form) clone() form {
	out := form{constant: f.constant}
	if len(f.coeffs) > 0 {
		out.coeffs = make(map[int]float64, len(f.coeffs))
		for k, v := range f.coeffs {
			out.coeffs[k] = v
		}
	}

	return out
}

func (f form) scale(s float64) form {
	out := form{constant: f.constant * s}
	if s != 0 && len(f.coeffs) > 0 {
		out.coeffs = make(map[int]float64, len(f.coeffs))
		for k, v := range f.coeffs {
			out.coeffs[k] = v * s
		}
	}

	return out
}

func addForms(a, b form) form {
	out := a.clone()
	out.constant += b.constant
	for k, v := range b.coeffs {
		if out.coeffs == nil {
			out.coeffs = make(map[int]float64, len(b.coeffs))
		}
		out.coeffs[k] += v
	}

	return out
}

// Matrix is a rows x cols arrangement of affine forms.
type Matrix struct {
	rows, cols int
	cells      []form
}

func newMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, cells: make([]form, rows*cols)}
}

func (m *Matrix) at(r, c int) form {
	return m.cells[r*m.cols+c]
}

func (m *Matrix) set(r, c int, f form) {
	m.cells[r*m.cols+c] = f
}

// Constant wraps a numeric matrix as a constant expression.
func Constant(v *mat.Dense) *Matrix {
	rows, cols := v.Dims()
	out := newMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.set(r, c, form{constant: v.At(r, c)})
		}
	}

	return out
}

// Scalar wraps a number as a 1x1 constant expression.
func Scalar(v float64) *Matrix {
	out := newMatrix(1, 1)
	out.set(0, 0, form{constant: v})

	return out
}

// FromIndices builds a matrix whose cell (r, c) is the bare decision
// variable at global index indices[r][c].
func FromIndices(indices [][]int) (*Matrix, error) {
	rows := len(indices)
	if rows == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrShapeMismatch)
	}

	cols := len(indices[0])
	out := newMatrix(rows, cols)
	for r, row := range indices {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: ragged index rows", ErrShapeMismatch)
		}
		for c, idx := range row {
			out.set(r, c, form{coeffs: map[int]float64{idx: 1}})
		}
	}

	return out, nil
}

// Dims returns the matrix shape.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// IsScalar reports whether the matrix is 1x1.
func (m *Matrix) IsScalar() bool {
	return m.rows == 1 && m.cols == 1
}

// IsConstant reports whether no cell references a decision variable.
func (m *Matrix) IsConstant() bool {
	for _, f := range m.cells {
		if !f.isConstant() {
			return false
		}
	}

	return true
}

// ConstantValue extracts the numeric content of a constant expression.
func (m *Matrix) ConstantValue() (*mat.Dense, error) {
	if !m.IsConstant() {
		return nil, ErrNotConstant
	}

	out := mat.NewDense(m.rows, m.cols, nil)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			out.Set(r, c, m.at(r, c).constant)
		}
	}

	return out, nil
}

// Value evaluates the expression against the solved decision space.
func (m *Matrix) Value(space *Space) (*mat.Dense, error) {
	out := mat.NewDense(m.rows, m.cols, nil)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			f := m.at(r, c)
			v := f.constant
			for idx, coeff := range f.coeffs {
				xv, err := space.ValueAt(idx)
				if err != nil {
					return nil, err
				}
				v += coeff * xv
			}
			out.Set(r, c, v)
		}
	}

	return out, nil
}

// Add returns a + b. Shapes must match unless one side is scalar, which
// broadcasts.
func Add(a, b *Matrix) (*Matrix, error) {
	return zipBroadcast(a, b, addForms)
}

// Sub returns a - b with the same broadcast rules as Add.
func Sub(a, b *Matrix) (*Matrix, error) {
	return Add(a, Neg(b))
}

// Neg returns -a.
func Neg(a *Matrix) *Matrix {
	out := newMatrix(a.rows, a.cols)
	for i, f := range a.cells {
		out.cells[i] = f.scale(-1)
	}

	return out
}

// Mul returns the element-wise product. A scalar operand scales the other
// side; otherwise shapes must match. At least one operand must be constant
// cell-wise for the result to stay affine.
func Mul(a, b *Matrix) (*Matrix, error) {
	return zipBroadcast(a, b, nil)
}

// MatMul returns the matrix product a @ b. The inner dimensions must agree
// and at most one operand may reference decision variables.
func MatMul(a, b *Matrix) (*Matrix, error) {
	if a.IsScalar() || b.IsScalar() {
		return Mul(a, b)
	}

	if a.cols != b.rows {
		return nil, fmt.Errorf(
			"%w: (%d, %d) @ (%d, %d)",
			ErrShapeMismatch, a.rows, a.cols, b.rows, b.cols)
	}

	if !a.IsConstant() && !b.IsConstant() {
		return nil, ErrNonAffine
	}

	out := newMatrix(a.rows, b.cols)
	for r := 0; r < a.rows; r++ {
		for c := 0; c < b.cols; c++ {
			acc := form{}
			for k := 0; k < a.cols; k++ {
				term, err := mulForms(a.at(r, k), b.at(k, c))
				if err != nil {
					return nil, err
				}
				acc = addForms(acc, term)
			}
			out.set(r, c, acc)
		}
	}

	return out, nil
}

// Transpose returns the matrix transpose.
func Transpose(a *Matrix) *Matrix {
	out := newMatrix(a.cols, a.rows)
	for r := 0; r < a.rows; r++ {
		for c := 0; c < a.cols; c++ {
			out.set(c, r, a.at(r, c).clone())
		}
	}

	return out
}

// Diag maps a vector to the diagonal matrix carrying it, and a square matrix
// to the column vector of its diagonal.
func Diag(a *Matrix) (*Matrix, error) {
	if a.rows == 1 || a.cols == 1 {
		n := a.rows * a.cols
		out := newMatrix(n, n)
		for i := 0; i < n; i++ {
			var f form
			if a.rows == 1 {
				f = a.at(0, i)
			} else {
				f = a.at(i, 0)
			}
			out.set(i, i, f.clone())
		}
		return out, nil
	}

	if a.rows != a.cols {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrNotSquare, a.rows, a.cols)
	}

	out := newMatrix(a.rows, 1)
	for i := 0; i < a.rows; i++ {
		out.set(i, 0, a.at(i, i).clone())
	}

	return out, nil
}

// Sum collapses all cells into a 1x1 expression.
func Sum(a *Matrix) *Matrix {
	acc := form{}
	for _, f := range a.cells {
		acc = addForms(acc, f)
	}

	out := newMatrix(1, 1)
	out.set(0, 0, acc)

	return out
}

// Indices returns the sorted-unique set of global decision indices the
// expression references.
func (m *Matrix) Indices() []int {
	seen := make(map[int]bool)
	for _, f := range m.cells {
		for idx := range f.coeffs {
			seen[idx] = true
		}
	}

	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)

	return out
}

// Coefficients exposes cell (r, c) as its constant and linear terms, for
// lowering into solver form.
func (m *Matrix) Coefficients(r, c int) (constant float64, coeffs map[int]float64) {
	f := m.at(r, c)
	out := make(map[int]float64, len(f.coeffs))
	for k, v := range f.coeffs {
		out[k] = v
	}

	return f.constant, out
}

func mulForms(a, b form) (form, error) {
	switch {
	case a.isConstant():
		return b.scale(a.constant), nil
	case b.isConstant():
		return a.scale(b.constant), nil
	default:
		return form{}, ErrNonAffine
	}
}

func zipBroadcast(a, b *Matrix, combine func(x, y form) form) (*Matrix, error) {
	mul := combine == nil

	apply := func(x, y form) (form, error) {
		if mul {
			return mulForms(x, y)
		}
		return combine(x, y), nil
	}

	switch {
	case a.rows == b.rows && a.cols == b.cols:
		out := newMatrix(a.rows, a.cols)
		for r := 0; r < a.rows; r++ {
			for c := 0; c < a.cols; c++ {
				f, err := apply(a.at(r, c), b.at(r, c))
				if err != nil {
					return nil, err
				}
				out.set(r, c, f)
			}
		}
		return out, nil

	case a.IsScalar():
		out := newMatrix(b.rows, b.cols)
		for r := 0; r < b.rows; r++ {
			for c := 0; c < b.cols; c++ {
				f, err := apply(a.at(0, 0), b.at(r, c))
				if err != nil {
					return nil, err
				}
				out.set(r, c, f)
			}
		}
		return out, nil

	case b.IsScalar():
		out := newMatrix(a.rows, a.cols)
		for r := 0; r < a.rows; r++ {
			for c := 0; c < a.cols; c++ {
				f, err := apply(a.at(r, c), b.at(0, 0))
				if err != nil {
					return nil, err
				}
				out.set(r, c, f)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf(
			"%w: (%d, %d) vs (%d, %d)",
			ErrShapeMismatch, a.rows, a.cols, b.rows, b.cols)
	}
}
