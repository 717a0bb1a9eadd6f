package problem

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/symopt/symopt/pkg/affine"
	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/ops"
)

// Slice is one realization of a variable within a scenario: the matrix the
// expression evaluator sees for a single replication coordinate.
type Slice struct {
	// Coords fixes the slice's replication and split set labels.
	Coords map[string]string
	// Block backs an endogenous slice's decision values. Nil otherwise.
	Block *affine.Block
	// Decision is the symbolic matrix over Block, laid out row-major.
	Decision *affine.Matrix
	// Data is the constant matrix of a constant or exogenous slice.
	// Exogenous data is nil until bound from the store.
	Data *affine.Matrix
	// frame maps matrix positions to full table coordinates, row-major,
	// for store reads and writes.
	frame *coords.Frame
}

// Frame exposes the slice's coordinate frame; row i*cols+j addresses matrix
// position (i, j).
func (s *Slice) Frame() *coords.Frame {
	return s.frame
}

// Realization is the full set of slices of one variable within one scenario.
type Realization struct {
	Variable *index.Variable
	Shape    ops.Shape
	// ReplSets are the variable's replication sets (everything that is
	// neither rows, cols nor a split set), in table coordinate order.
	ReplSets []string
	RowSet   string
	ColSet   string
	RowItems []string
	ColItems []string

	slices map[string]*Slice
	order  []string
}

// Slices returns the slices in replication frame order.
func (r *Realization) Slices() []*Slice {
	out := make([]*Slice, len(r.order))
	for i, key := range r.order {
		out[i] = r.slices[key]
	}

	return out
}

// SliceFor resolves the slice matching a replication row. The row may carry
// more columns than the variable uses; only ReplSets are keyed.
func (r *Realization) SliceFor(row map[string]string) (*Slice, error) {
	key := replKey(row, r.ReplSets)

	slice, ok := r.slices[key]
	if !ok {
		return nil, fmt.Errorf("variable %q has no slice for %v", r.Variable.Name, row)
	}

	return slice, nil
}

func replKey(row map[string]string, sets []string) string {
	parts := make([]string, len(sets))
	for i, set := range sets {
		parts[i] = row[set]
	}

	return strings.Join(parts, "\x1f")
}

// buildRealization materializes one variable for one scenario: its shape,
// replication frame and one slice per replication row.
func (w *Workspace) buildRealization(v *index.Variable, scenario index.Scenario) (*Realization, error) {
	shape, err := w.cat.VariableShape(v)
	if err != nil {
		return nil, err
	}

	real := &Realization{
		Variable: v,
		Shape:    shape,
		slices:   make(map[string]*Slice),
	}

	for _, set := range v.SetsByRole(index.DimRows, w.cat.IsSplitSet) {
		real.RowSet = set

		if real.RowItems, err = w.cat.ItemsFor(v, set); err != nil {
			return nil, err
		}
	}

	for _, set := range v.SetsByRole(index.DimCols, w.cat.IsSplitSet) {
		real.ColSet = set

		if real.ColItems, err = w.cat.ItemsFor(v, set); err != nil {
			return nil, err
		}
	}

	for _, set := range v.Coordinates() {
		if set != real.RowSet && set != real.ColSet && !w.cat.IsSplitSet(set) {
			real.ReplSets = append(real.ReplSets, set)
		}
	}

	replFrame, err := w.replicationFrame(v, real.ReplSets)
	if err != nil {
		return nil, err
	}

	var constantData *mat.Dense

	if uniform, ok := v.Type.UniformType(); ok && uniform == index.TypeConstant {
		gen, err := ops.LookupGenerator(v.Value)
		if err != nil {
			return nil, err
		}

		if constantData, err = gen(shape); err != nil {
			return nil, fmt.Errorf("generating %q for variable %q: %w", v.Value, v.Name, err)
		}
	}

	for i := 0; i < replFrame.Len(); i++ {
		row := replFrame.RowMap(i)

		slice, err := w.buildSlice(v, real, scenario, row, constantData)
		if err != nil {
			return nil, err
		}

		key := replKey(row, real.ReplSets)
		real.slices[key] = slice
		real.order = append(real.order, key)
	}

	return real, nil
}

// replicationFrame enumerates the variable's replication rows. Variables
// without replication sets get a single empty row.
func (w *Workspace) replicationFrame(v *index.Variable, replSets []string) (*coords.Frame, error) {
	if len(replSets) == 0 {
		frame := coords.NewFrame()
		if err := frame.Append(map[string]string{}); err != nil {
			return nil, err
		}

		return frame, nil
	}

	axes := make(map[string][]string, len(replSets))

	for _, set := range replSets {
		items, err := w.cat.ItemsFor(v, set)
		if err != nil {
			return nil, err
		}

		axes[set] = items
	}

	return coords.Product(axes, replSets)
}

func (w *Workspace) buildSlice(
	v *index.Variable,
	real *Realization,
	scenario index.Scenario,
	replRow map[string]string,
	constantData *mat.Dense,
) (*Slice, error) {
	fixed := make(map[string]string, len(replRow)+len(scenario.Coordinates))

	for set, label := range replRow {
		fixed[set] = label
	}

	for _, set := range v.Coordinates() {
		if label, ok := scenario.Coordinates[set]; ok && w.cat.IsSplitSet(set) {
			fixed[set] = label
		}
	}

	slice := &Slice{Coords: fixed}

	if err := slice.buildFrame(v, real, fixed); err != nil {
		return nil, err
	}

	if constantData != nil {
		slice.Data = affine.Constant(constantData)
	}

	if v.Type.AnyEndogenous() {
		name := blockName(v.Name, scenario, fixed)
		block := w.space.NewBlock(name, real.Shape.Rows*real.Shape.Cols, v.Integer)

		grid := make([][]int, real.Shape.Rows)
		for r := 0; r < real.Shape.Rows; r++ {
			grid[r] = make([]int, real.Shape.Cols)

			for c := 0; c < real.Shape.Cols; c++ {
				idx, err := block.Index(r*real.Shape.Cols + c)
				if err != nil {
					return nil, err
				}

				grid[r][c] = idx
			}
		}

		decision, err := affine.FromIndices(grid)
		if err != nil {
			return nil, err
		}

		slice.Block = block
		slice.Decision = decision
	}

	return slice, nil
}

// buildFrame lays out the slice's table coordinates row-major over the
// variable's matrix shape.
func (s *Slice) buildFrame(v *index.Variable, real *Realization, fixed map[string]string) error {
	frame := coords.NewFrame(v.Coordinates()...)

	rowItems := real.RowItems
	if len(rowItems) == 0 {
		rowItems = []string{""}
	}

	colItems := real.ColItems
	if len(colItems) == 0 {
		colItems = []string{""}
	}

	for _, rowItem := range rowItems {
		for _, colItem := range colItems {
			entry := make(map[string]string, len(v.Coordinates()))

			for _, set := range v.Coordinates() {
				switch set {
				case real.RowSet:
					entry[set] = rowItem
				case real.ColSet:
					entry[set] = colItem
				default:
					entry[set] = fixed[set]
				}
			}

			if err := frame.Append(entry); err != nil {
				return err
			}
		}
	}

	s.frame = frame

	return nil
}

func blockName(variable string, scenario index.Scenario, fixed map[string]string) string {
	if len(fixed) == 0 {
		return fmt.Sprintf("%s[s%d]", variable, scenario.Index)
	}

	parts := make([]string, 0, len(fixed))
	for _, part := range orderedPairs(fixed) {
		parts = append(parts, part)
	}

	return fmt.Sprintf("%s[s%d;%s]", variable, scenario.Index, strings.Join(parts, ","))
}

func orderedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	// Deterministic block names keep logs stable.
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + m[k]
	}

	return out
}
