package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct(t *testing.T) {
	axes := map[string][]string{
		"scenarios": {"base", "high"},
		"years":     {"2025", "2030", "2035"},
		"techs":     {"pv", "wind"},
	}

	frame, err := Product(axes, []string{"scenarios", "years", "techs"})
	require.NoError(t, err)

	// 2 * 3 * 2 combinations, no duplicates
	assert.Equal(t, 12, frame.Len())
	assert.Equal(t, []string{"scenarios", "years", "techs"}, frame.Columns())
	assert.Equal(t, frame.Len(), frame.Dedup().Len())

	// last axis varies fastest
	assert.Equal(t, []string{"base", "2025", "pv"}, frame.Row(0))
	assert.Equal(t, []string{"base", "2025", "wind"}, frame.Row(1))
	assert.Equal(t, []string{"base", "2030", "pv"}, frame.Row(2))
	assert.Equal(t, []string{"high", "2035", "wind"}, frame.Row(11))
}

func TestProduct_Errors(t *testing.T) {
	tests := []struct {
		name  string
		axes  map[string][]string
		order []string
		err   error
	}{
		{
			name:  "no axes",
			axes:  map[string][]string{},
			order: nil,
			err:   ErrNoAxes,
		},
		{
			name:  "empty axis",
			axes:  map[string][]string{"a": {}},
			order: []string{"a"},
			err:   ErrEmptyAxis,
		},
		{
			name:  "missing axis",
			axes:  map[string][]string{"a": {"x"}},
			order: []string{"a", "b"},
			err:   ErrEmptyAxis,
		},
		{
			name:  "duplicate axis",
			axes:  map[string][]string{"a": {"x"}},
			order: []string{"a", "a"},
			err:   ErrDuplicateAxis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Product(tt.axes, tt.order)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFilter(t *testing.T) {
	frame, err := Product(map[string][]string{
		"years": {"2025", "2030"},
		"techs": {"pv", "wind", "gas"},
	}, []string{"years", "techs"})
	require.NoError(t, err)

	filtered, err := frame.Filter(map[string][]string{"techs": {"pv", "gas"}})
	require.NoError(t, err)
	assert.Equal(t, 4, filtered.Len())

	for i := 0; i < filtered.Len(); i++ {
		v, valErr := filtered.Value(i, "techs")
		require.NoError(t, valErr)
		assert.Contains(t, []string{"pv", "gas"}, v)
	}

	// filter on a column the frame does not have
	_, err = frame.Filter(map[string][]string{"regions": {"north"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestInnerJoin(t *testing.T) {
	left, err := Product(map[string][]string{
		"years": {"2025", "2030", "2035"},
		"techs": {"pv", "wind"},
	}, []string{"years", "techs"})
	require.NoError(t, err)

	right := NewFrame("techs")
	require.NoError(t, right.Append(map[string]string{"techs": "pv"}))
	require.NoError(t, right.Append(map[string]string{"techs": "pv"}))

	joined, err := left.InnerJoin(right)
	require.NoError(t, err)

	// only pv rows survive, duplicates eliminated
	assert.Equal(t, 3, joined.Len())
	for i := 0; i < joined.Len(); i++ {
		v, valErr := joined.Value(i, "techs")
		require.NoError(t, valErr)
		assert.Equal(t, "pv", v)
	}

	// no shared columns is an error
	disjoint := NewFrame("regions")
	_, err = left.InnerJoin(disjoint)
	assert.ErrorIs(t, err, ErrColumnMismatch)
}

func TestReorder(t *testing.T) {
	frame, err := Product(map[string][]string{
		"a": {"1"},
		"b": {"x", "y"},
	}, []string{"a", "b"})
	require.NoError(t, err)

	reordered, err := frame.Reorder([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, reordered.Columns())
	assert.Equal(t, []string{"x", "1"}, reordered.Row(0))

	_, err = frame.Reorder([]string{"a"})
	assert.ErrorIs(t, err, ErrColumnMismatch)
}

func TestDedupAndConcat(t *testing.T) {
	a := NewFrame("years", "techs")
	require.NoError(t, a.Append(map[string]string{"years": "2025", "techs": "pv"}))

	b := NewFrame("techs", "years")
	require.NoError(t, b.Append(map[string]string{"years": "2025", "techs": "pv"}))
	require.NoError(t, b.Append(map[string]string{"years": "2030", "techs": "pv"}))

	merged, err := a.Concat(b)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Len())
	assert.Equal(t, 2, merged.Dedup().Len())
}

func TestSelect(t *testing.T) {
	frame, err := Product(map[string][]string{
		"years": {"2025", "2030"},
		"techs": {"pv", "wind"},
	}, []string{"years", "techs"})
	require.NoError(t, err)

	years, err := frame.Select("years")
	require.NoError(t, err)
	assert.Equal(t, 2, years.Len())
	assert.Equal(t, []string{"years"}, years.Columns())
}

func TestMerge(t *testing.T) {
	left, err := Product(map[string][]string{
		"years": {"2025", "2026"},
		"techs": {"pv", "wind"},
	}, []string{"years", "techs"})
	require.NoError(t, err)

	right, err := Product(map[string][]string{
		"years": {"2026", "2027"},
		"zones": {"north"},
	}, []string{"years", "zones"})
	require.NoError(t, err)

	// Shared column: rows combine only where years agree.
	joined, err := left.Merge(right)
	require.NoError(t, err)
	assert.Equal(t, []string{"years", "techs", "zones"}, joined.Columns())
	assert.Equal(t, 2, joined.Len())
	assert.Equal(t, []string{"2026", "pv", "north"}, joined.Row(0))

	// Disjoint columns: full cross product.
	zones := NewFrame("zones")
	require.NoError(t, zones.Append(map[string]string{"zones": "north"}))
	require.NoError(t, zones.Append(map[string]string{"zones": "south"}))

	crossed, err := left.Merge(zones)
	require.NoError(t, err)
	assert.Equal(t, 8, crossed.Len())
}
