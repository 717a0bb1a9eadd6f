// Package affine represents solver-ready expression values: matrices whose
// cells are affine forms (constant + linear terms) over a global space of
// decision variables, together with the constraints and objectives built
// from them.
package affine

import (
	"errors"
	"fmt"
	"math"
)

// Expression errors
var (
	ErrShapeMismatch = errors.New("operands have mismatching shapes")
	ErrNonAffine     = errors.New("product of two variable expressions is not affine")
	ErrNotConstant   = errors.New("expression is not constant")
	ErrNotScalar     = errors.New("expression is not scalar")
	ErrNotVector     = errors.New("expression is not a vector")
	ErrNotSquare     = errors.New("expression is not square")
	ErrNoValue       = errors.New("decision block has no solved value")
	ErrIndexRange    = errors.New("index out of block range")
)

// Space allocates global indices for decision-variable blocks. Every
// endogenous data table owns one block (or one per scenario group); all
// expressions over a model share one space, so a variable solved by one
// sub-problem is addressable by the next.
type Space struct {
	size   int
	blocks []*Block
}

// Block is a contiguous run of scalar decision variables backed by a data
// table's filtered coordinate rows. Values holds the solved assignment, NaN
// until a solve populates it.
type Block struct {
	Name    string
	Offset  int
	Len     int
	Integer bool
	Values  []float64
}

// NewSpace creates an empty decision space.
func NewSpace() *Space {
	return &Space{}
}

// NewBlock allocates a block of n decision variables.
func (s *Space) NewBlock(name string, n int, integer bool) *Block {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}

	block := &Block{
		Name:    name,
		Offset:  s.size,
		Len:     n,
		Integer: integer,
		Values:  values,
	}

	s.size += n
	s.blocks = append(s.blocks, block)

	return block
}

// Size returns the total number of allocated decision variables.
func (s *Space) Size() int {
	return s.size
}

// Blocks returns all allocated blocks in allocation order.
func (s *Space) Blocks() []*Block {
	return append([]*Block(nil), s.blocks...)
}

// ValueAt returns the solved value of global index idx.
func (s *Space) ValueAt(idx int) (float64, error) {
	for _, b := range s.blocks {
		if idx >= b.Offset && idx < b.Offset+b.Len {
			v := b.Values[idx-b.Offset]
			if math.IsNaN(v) {
				return 0, fmt.Errorf("%w: block '%s' index %d", ErrNoValue, b.Name, idx-b.Offset)
			}
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: %d", ErrIndexRange, idx)
}

// SetValue assigns a solved value to global index idx.
func (s *Space) SetValue(idx int, v float64) error {
	for _, b := range s.blocks {
		if idx >= b.Offset && idx < b.Offset+b.Len {
			b.Values[idx-b.Offset] = v
			return nil
		}
	}

	return fmt.Errorf("%w: %d", ErrIndexRange, idx)
}

// Index returns the global index of the block's i-th variable.
func (b *Block) Index(i int) (int, error) {
	if i < 0 || i >= b.Len {
		return 0, fmt.Errorf("%w: %d in block '%s' of length %d", ErrIndexRange, i, b.Name, b.Len)
	}

	return b.Offset + i, nil
}

// Solved reports whether every variable of the block has a value.
func (b *Block) Solved() bool {
	for _, v := range b.Values {
		if math.IsNaN(v) {
			return false
		}
	}

	return len(b.Values) > 0
}

// Reset clears the solved values back to NaN.
func (b *Block) Reset() {
	for i := range b.Values {
		b.Values[i] = math.NaN()
	}
}
