package ops

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Shift builds an NxN matrix of zeros with ones on a diagonal displaced from
// the main diagonal. A positive offset shifts the diagonal downward (lag), a
// negative one upward (lead), zero yields the identity. Offsets may be a
// scalar, applied to every column, or a vector of per-column offsets. An
// offset moving a column entirely out of range yields an all-zero column.
func Shift(setLength, offsets *mat.Dense) (*mat.Dense, error) {
	nv, err := AsScalar(setLength)
	if err != nil {
		return nil, fmt.Errorf("shift set length: %w", err)
	}

	n := int(nv)
	if n <= 0 {
		return nil, fmt.Errorf("%w: set length %d", ErrBadShape, n)
	}

	ks, err := AsVector(offsets)
	if err != nil {
		return nil, fmt.Errorf("shift offsets: %w", err)
	}

	if len(ks) != 1 && len(ks) != n {
		return nil, fmt.Errorf("%w: %d offsets for set length %d", ErrShapeMismatch, len(ks), n)
	}

	out := mat.NewDense(n, n, nil)
	for col := 0; col < n; col++ {
		k := ks[0]
		if len(ks) == n {
			k = ks[col]
		}
		row := col + int(k)
		if row >= 0 && row < n {
			out.Set(row, col, 1)
		}
	}

	return out, nil
}

// Annuity builds the capital-recovery factor matrix over a planning horizon.
// Entry (t, v) carries r(1+r)^L / ((1+r)^L - 1) for every period t within L
// periods of the investment period v (and at or after it), where r is the
// interest rate of period v; a zero rate degenerates to 1/L. The rate may be
// omitted (nil), which is treated as all-zero.
func Annuity(periodLength, lifetime, interestRate *mat.Dense) (*mat.Dense, error) {
	plv, err := AsScalar(periodLength)
	if err != nil {
		return nil, fmt.Errorf("annuity period length: %w", err)
	}

	ltv, err := AsScalar(lifetime)
	if err != nil {
		return nil, fmt.Errorf("annuity lifetime: %w", err)
	}

	pl := int(plv)
	if pl <= 0 || ltv <= 0 {
		return nil, fmt.Errorf("%w: period length %d, lifetime %v", ErrBadShape, pl, ltv)
	}

	rates := make([]float64, pl)
	if interestRate != nil {
		rates, err = AsVector(interestRate)
		if err != nil {
			return nil, fmt.Errorf("annuity interest rate: %w", err)
		}
		if len(rates) != pl {
			return nil, fmt.Errorf(
				"%w: interest rate size %d, period length %d",
				ErrShapeMismatch, len(rates), pl)
		}
	}

	out := mat.NewDense(pl, pl, nil)
	for row := 0; row < pl; row++ {
		for col := 0; col <= row; col++ {
			if float64(row-col) >= ltv {
				continue
			}
			r := rates[col]
			if r == 0 {
				out.Set(row, col, 1/ltv)
			} else {
				g := math.Pow(1+r, ltv)
				out.Set(row, col, r*g/(g-1))
			}
		}
	}

	return out, nil
}

// WeibullRounding is the default number of decimals the discretized Weibull
// mass function is rounded to before renormalization.
const WeibullRounding = 2

// Weibull discretizes a Weibull probability density over the positive
// integers, rounds it, renormalizes it to sum to one, and truncates it to the
// length of the range vector. With dimensions=1 the result is a column
// vector; with dimensions=2 it is a matrix whose column i is the vector
// rolled down by i positions with zeros above, the per-vintage survival form.
func Weibull(scale, shape, rangeVector *mat.Dense, dimensions, rounding int) (*mat.Dense, error) {
	sc, err := AsScalar(scale)
	if err != nil {
		return nil, fmt.Errorf("weibull scale: %w", err)
	}

	sh, err := AsScalar(shape)
	if err != nil {
		return nil, fmt.Errorf("weibull shape: %w", err)
	}

	rx, err := AsVector(rangeVector)
	if err != nil {
		return nil, fmt.Errorf("weibull range: %w", err)
	}

	if sc <= 0 || sh <= 0 {
		return nil, fmt.Errorf("%w: scale %v, shape %v must be positive", ErrBadShape, sc, sh)
	}

	if dimensions != 1 && dimensions != 2 {
		return nil, fmt.Errorf("%w: weibull dimensions must be 1 or 2, got %d", ErrBadDimensions, dimensions)
	}

	if rounding < 0 {
		return nil, fmt.Errorf("%w: rounding %d", ErrBadDimensions, rounding)
	}

	n := len(rx)

	// the density is sampled over an extended horizon so the renormalized
	// truncation does not clip most of the mass
	horizon := int(sc) * 2
	if horizon < n {
		horizon = n
	}

	dist := distuv.Weibull{K: sh, Lambda: sc}
	pow := math.Pow(10, float64(rounding))

	density := make([]float64, horizon)
	total := 0.0
	for i := range density {
		density[i] = math.Round(dist.Prob(float64(i+1))*pow) / pow
		total += density[i]
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: weibull mass rounds to zero", ErrNonNumeric)
	}

	vector := make([]float64, n)
	for i := range vector {
		vector[i] = density[i] / total
	}

	if dimensions == 1 {
		return mat.NewDense(n, 1, vector), nil
	}

	out := mat.NewDense(n, n, nil)
	for col := 0; col < n; col++ {
		for row := col; row < n; row++ {
			out.Set(row, col, vector[row-col])
		}
	}

	return out, nil
}

// Power computes the element-wise power base^exponent. Shapes must match
// unless one operand is a scalar, which broadcasts.
func Power(base, exponent *mat.Dense) (*mat.Dense, error) {
	br, bc := base.Dims()
	er, ec := exponent.Dims()

	baseScalar := br*bc == 1
	expScalar := er*ec == 1

	if !baseScalar && !expScalar && (br != er || bc != ec) {
		return nil, fmt.Errorf(
			"%w: base (%d, %d), exponent (%d, %d)",
			ErrShapeMismatch, br, bc, er, ec)
	}

	rows, cols := br, bc
	if baseScalar && !expScalar {
		rows, cols = er, ec
	}

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b := base.At(0, 0)
			if !baseScalar {
				b = base.At(r, c)
			}
			e := exponent.At(0, 0)
			if !expScalar {
				e = exponent.At(r, c)
			}
			v := math.Pow(b, e)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %v^%v", ErrNonNumeric, b, e)
			}
			out.Set(r, c, v)
		}
	}

	return out, nil
}

// MatrixInverse inverts a square matrix, reporting singularity as a typed
// error instead of propagating gonum's condition panic.
func MatrixInverse(m *mat.Dense) (*mat.Dense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: shape (%d, %d)", ErrNotSquare, r, c)
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}

	return &inv, nil
}
