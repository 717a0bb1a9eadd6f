package store

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/symopt/symopt/pkg/coords"
)

// Row is a single record of a data table: one coordinate combination and its
// value. Null marks a record that has not been filled yet.
type Row struct {
	ID     int64
	Coords map[string]string
	Value  float64
	Null   bool
}

// Describe renders the row's coordinates for log and error messages.
func (r Row) Describe() string {
	keys := make([]string, 0, len(r.Coords))
	for k := range r.Coords {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, r.Coords[k])
	}

	return strings.Join(parts, ", ")
}

// Table is an in-memory copy of a store table, in row id order.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Frame projects the table's coordinate columns into a frame, preserving row
// order.
func (t *Table) Frame() *coords.Frame {
	frame := coords.NewFrame(t.Columns...)

	for _, row := range t.Rows {
		// Row coords always cover the table columns.
		_ = frame.Append(row.Coords)
	}

	return frame
}

// Values returns the value column in row order, NaN for nulls.
func (t *Table) Values() []float64 {
	out := make([]float64, len(t.Rows))

	for i, row := range t.Rows {
		if row.Null {
			out[i] = math.NaN()

			continue
		}

		out[i] = row.Value
	}

	return out
}

// ValueByKey indexes the table by its coordinate labels, for
// order-independent lookup. Keys join the coordinate values of the given
// columns in order.
func (t *Table) ValueByKey(columns []string) map[string]float64 {
	out := make(map[string]float64, len(t.Rows))

	for _, row := range t.Rows {
		if row.Null {
			continue
		}

		parts := make([]string, len(columns))
		for i, col := range columns {
			parts[i] = row.Coords[col]
		}

		out[strings.Join(parts, "\x1f")] = row.Value
	}

	return out
}
