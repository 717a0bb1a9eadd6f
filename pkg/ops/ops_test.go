package ops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

func eye(n, k int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for c := 0; c < n; c++ {
		r := c - k
		if r >= 0 && r < n {
			out.Set(r, c, 1)
		}
	}

	return out
}

func TestShift_Scalar(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
	}{
		{name: "identity at zero", offset: 0},
		{name: "lag", offset: 1},
		{name: "longer lag", offset: 3},
		{name: "lead", offset: -2},
		{name: "lead beyond range", offset: -5},
		{name: "lag beyond range", offset: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Shift(scalar(10), scalar(tt.offset))
			require.NoError(t, err)

			// numpy equivalence: shift(N, k) == eye(N, k=-k)
			want := eye(10, -int(tt.offset))
			assert.True(t, mat.Equal(want, got), "offset %v", tt.offset)
		})
	}
}

func TestShift_VectorOffsets(t *testing.T) {
	offsets := mat.NewDense(1, 5, []float64{0, -1, 2, 0, -2})

	got, err := Shift(scalar(5), offsets)
	require.NoError(t, err)

	want := mat.NewDense(5, 5, []float64{
		1, 1, 0, 0, 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 1,
		0, 0, 0, 1, 0,
		0, 0, 1, 0, 0,
	})
	assert.True(t, mat.Equal(want, got))
}

func TestShift_Errors(t *testing.T) {
	_, err := Shift(mat.NewDense(1, 2, []float64{1, 2}), scalar(0))
	assert.ErrorIs(t, err, ErrNotScalar)

	_, err = Shift(scalar(4), mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Shift(scalar(0), scalar(1))
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestAnnuity(t *testing.T) {
	// zero rate degenerates to 1/L on the banded lower triangle
	got, err := Annuity(scalar(4), scalar(2), nil)
	require.NoError(t, err)

	want := mat.NewDense(4, 4, []float64{
		0.5, 0, 0, 0,
		0.5, 0.5, 0, 0,
		0, 0.5, 0.5, 0,
		0, 0, 0.5, 0.5,
	})
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// constant positive rate: capital recovery factor r(1+r)^L/((1+r)^L-1)
	rates := mat.NewDense(1, 3, []float64{0.05, 0.05, 0.05})
	got, err = Annuity(scalar(3), scalar(2), rates)
	require.NoError(t, err)

	crf := 0.05 * math.Pow(1.05, 2) / (math.Pow(1.05, 2) - 1)
	assert.InDelta(t, crf, got.At(0, 0), 1e-12)
	assert.InDelta(t, crf, got.At(1, 0), 1e-12)
	assert.InDelta(t, 0.0, got.At(2, 0), 1e-12) // outside lifetime band
	assert.InDelta(t, 0.0, got.At(0, 1), 1e-12) // strictly upper region

	// rate vector must match the period length
	_, err = Annuity(scalar(3), scalar(2), mat.NewDense(1, 2, []float64{0.05, 0.05}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestWeibull_Vector(t *testing.T) {
	rangeVec := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})

	got, err := Weibull(scalar(1.5), scalar(2.0), rangeVec, 1, WeibullRounding)
	require.NoError(t, err)

	r, c := got.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 1, c)

	sum := 0.0
	for i := 0; i < r; i++ {
		sum += got.At(i, 0)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	// matches the reference pdf k/λ (x/λ)^(k-1) exp(-(x/λ)^k) rounded to
	// the configured precision and renormalized
	ref := make([]float64, 6)
	total := 0.0
	for i := range ref {
		x := float64(i + 1)
		ref[i] = math.Round(2.0/1.5*math.Pow(x/1.5, 1)*math.Exp(-math.Pow(x/1.5, 2))*100) / 100
		total += ref[i]
	}
	for i := range ref {
		assert.InDelta(t, ref[i]/total, got.At(i, 0), 1e-12)
	}
}

func TestWeibull_Matrix(t *testing.T) {
	rangeVec := mat.NewDense(4, 1, []float64{0, 1, 2, 3})

	vector, err := Weibull(scalar(1.5), scalar(2.0), rangeVec, 1, WeibullRounding)
	require.NoError(t, err)

	got, err := Weibull(scalar(1.5), scalar(2.0), rangeVec, 2, WeibullRounding)
	require.NoError(t, err)

	// column i is the vector rolled down by i with zeros above the shift
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			if row < col {
				assert.Zero(t, got.At(row, col))
			} else {
				assert.InDelta(t, vector.At(row-col, 0), got.At(row, col), 1e-12)
			}
		}
	}

	_, err = Weibull(scalar(1.5), scalar(2.0), rangeVec, 3, WeibullRounding)
	assert.ErrorIs(t, err, ErrBadDimensions)
}

func TestPower(t *testing.T) {
	base := mat.NewDense(1, 3, []float64{1, 2, 3})

	got, err := Power(base, scalar(2))
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 3, []float64{1, 4, 9}), got))

	got, err = Power(scalar(2), mat.NewDense(1, 3, []float64{1, 2, 3}))
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 3, []float64{2, 4, 8}), got))

	got, err = Power(base, base)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 3, []float64{1, 4, 27}), got))

	_, err = Power(base, mat.NewDense(1, 2, []float64{1, 2}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMatrixInverse(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{4, 7, 2, 6})

	inv, err := MatrixInverse(m)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(mat.NewDense(2, 2, []float64{0.6, -0.7, -0.2, 0.4}), inv, 1e-12))

	_, err = MatrixInverse(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	assert.ErrorIs(t, err, ErrNotSquare)

	_, err = MatrixInverse(mat.NewDense(2, 2, []float64{1, 2, 2, 4}))
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestGenerators(t *testing.T) {
	ones, err := Ones(Shape{Rows: 2, Cols: 3})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1}), ones))

	ident, err := Identity(Shape{Rows: 3, Cols: 1})
	require.NoError(t, err)
	assert.True(t, mat.Equal(eye(3, 0), ident))

	length, err := SetLength(Shape{Rows: 1, Cols: 7})
	require.NoError(t, err)
	v, err := AsScalar(length)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	// column-major fill, starting from one
	seq, err := Arange(Shape{Rows: 2, Cols: 2}, 1)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 3, 2, 4}), seq))

	tril, err := Tril(Shape{Rows: 3, Cols: 1})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(3, 3, []float64{
		1, 0, 0,
		1, 1, 0,
		1, 1, 1,
	}), tril))

	_, err = Tril(Shape{Rows: 2, Cols: 2})
	assert.ErrorIs(t, err, ErrNotVector)

	_, err = LookupGenerator("no_such_generator")
	assert.ErrorIs(t, err, ErrUnknownGenerator)

	gen, err := LookupGenerator("sum_vector")
	require.NoError(t, err)
	m, err := gen(Shape{Rows: 2, Cols: 1})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 1, []float64{1, 1}), m))
}
