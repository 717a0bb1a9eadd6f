package ops

import "errors"

// Operator and constant-generator errors
var (
	ErrNotScalar        = errors.New("operand must be a scalar")
	ErrNotVector        = errors.New("operand must be a vector")
	ErrNotMatrix        = errors.New("operand must be a matrix")
	ErrNotSquare        = errors.New("operand must be a square matrix")
	ErrShapeMismatch    = errors.New("operands have mismatching shapes")
	ErrSingularMatrix   = errors.New("matrix is singular and cannot be inverted")
	ErrBadDimensions    = errors.New("invalid dimensions selector")
	ErrBadShape         = errors.New("invalid shape")
	ErrNonNumeric       = errors.New("operand contains non-numeric values")
	ErrUnknownGenerator = errors.New("unknown constant generator")
)
