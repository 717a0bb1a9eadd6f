// Package coords implements the coordinate algebra: cartesian products of
// named index sets materialized as label frames, plus the filtering, joining
// and reordering operations the problem generator builds on.
package coords

import (
	"errors"
	"fmt"
	"strings"
)

// Coordinate algebra errors
var (
	ErrEmptyAxis      = errors.New("axis has no items")
	ErrNoAxes         = errors.New("no axes provided")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrColumnMismatch = errors.New("frames have mismatching columns")
	ErrDuplicateAxis  = errors.New("duplicate axis name")
)

// Frame is an ordered table of string labels. Columns are axis names, rows
// enumerate coordinate combinations. Row order is significant: any code that
// zips a frame against a flat numeric array relies on it.
type Frame struct {
	columns []string
	rows    [][]string
}

// NewFrame creates an empty frame with the given column order.
func NewFrame(columns ...string) *Frame {
	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Frame{columns: cols}
}

// Product computes the cartesian product of the named axes as a frame whose
// columns follow the given order. The last axis varies fastest, consistent
// with standard product iteration.
func Product(axes map[string][]string, order []string) (*Frame, error) {
	if len(order) == 0 {
		return nil, ErrNoAxes
	}

	seen := make(map[string]bool, len(order))

	for _, name := range order {
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAxis, name)
		}
		seen[name] = true

		items, ok := axes[name]
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyAxis, name)
		}
	}

	total := 1
	for _, name := range order {
		total *= len(axes[name])
	}

	frame := NewFrame(order...)
	frame.rows = make([][]string, 0, total)

	row := make([]string, len(order))
	var expand func(depth int)
	expand = func(depth int) {
		if depth == len(order) {
			frame.rows = append(frame.rows, append([]string(nil), row...))
			return
		}
		for _, item := range axes[order[depth]] {
			row[depth] = item
			expand(depth + 1)
		}
	}
	expand(0)

	return frame, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Row returns row i as a slice ordered by the frame's columns.
func (f *Frame) Row(i int) []string {
	return append([]string(nil), f.rows[i]...)
}

// Value returns the label at row i, column name.
func (f *Frame) Value(i int, column string) (string, error) {
	idx := f.columnIndex(column)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	return f.rows[i][idx], nil
}

// RowMap returns row i as a column -> label mapping.
func (f *Frame) RowMap(i int) map[string]string {
	m := make(map[string]string, len(f.columns))
	for c, name := range f.columns {
		m[name] = f.rows[i][c]
	}

	return m
}

// Append adds a row given as a column -> label mapping. Missing or extra
// columns are an error.
func (f *Frame) Append(row map[string]string) error {
	if len(row) != len(f.columns) {
		return fmt.Errorf("%w: expected %v", ErrColumnMismatch, f.columns)
	}

	values := make([]string, len(f.columns))
	for c, name := range f.columns {
		v, ok := row[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		values[c] = v
	}

	f.rows = append(f.rows, values)

	return nil
}

// Filter keeps only rows whose label for every filtered column is within the
// allowed items. Filtering on a column the frame does not have is an error.
func (f *Frame) Filter(allowed map[string][]string) (*Frame, error) {
	for column := range allowed {
		if f.columnIndex(column) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
	}

	sets := make(map[int]map[string]bool, len(allowed))
	for column, items := range allowed {
		set := make(map[string]bool, len(items))
		for _, item := range items {
			set[item] = true
		}
		sets[f.columnIndex(column)] = set
	}

	out := NewFrame(f.columns...)
	for _, row := range f.rows {
		keep := true
		for idx, set := range sets {
			if !set[row[idx]] {
				keep = false
				break
			}
		}
		if keep {
			out.rows = append(out.rows, append([]string(nil), row...))
		}
	}

	return out, nil
}

// InnerJoin keeps the rows of f whose labels on all shared columns appear in
// other, preserving f's row and column order. Rows are deduplicated.
func (f *Frame) InnerJoin(other *Frame) (*Frame, error) {
	shared := make([]string, 0, len(f.columns))
	for _, name := range f.columns {
		if other.columnIndex(name) >= 0 {
			shared = append(shared, name)
		}
	}

	if len(shared) == 0 {
		return nil, ErrColumnMismatch
	}

	keys := make(map[string]bool, other.Len())
	for i := range other.rows {
		keys[other.key(i, shared)] = true
	}

	out := NewFrame(f.columns...)
	seen := make(map[string]bool, f.Len())
	for i, row := range f.rows {
		k := f.key(i, shared)
		if !keys[k] {
			continue
		}
		full := strings.Join(row, "\x1f")
		if seen[full] {
			continue
		}
		seen[full] = true
		out.rows = append(out.rows, append([]string(nil), row...))
	}

	return out, nil
}

// Merge computes the natural join of two frames: rows agreeing on all shared
// columns are combined, with other's extra columns appended to f's. Frames
// without shared columns produce the full cross product. Rows are
// deduplicated, preserving f-major order.
func (f *Frame) Merge(other *Frame) (*Frame, error) {
	var shared, extra []string

	for _, name := range other.columns {
		if f.columnIndex(name) >= 0 {
			shared = append(shared, name)
		} else {
			extra = append(extra, name)
		}
	}

	extraIdx := make([]int, len(extra))
	for i, name := range extra {
		extraIdx[i] = other.columnIndex(name)
	}

	// Bucket other's rows by their shared-column key. With no shared
	// columns every row lands in the same bucket, yielding the cross
	// product.
	buckets := make(map[string][][]string, other.Len())
	for i, row := range other.rows {
		k := other.key(i, shared)
		buckets[k] = append(buckets[k], row)
	}

	out := NewFrame(append(f.Columns(), extra...)...)
	seen := make(map[string]bool)

	for i, row := range f.rows {
		for _, match := range buckets[f.key(i, shared)] {
			combined := make([]string, 0, len(row)+len(extra))
			combined = append(combined, row...)

			for _, idx := range extraIdx {
				combined = append(combined, match[idx])
			}

			k := strings.Join(combined, "\x1f")
			if seen[k] {
				continue
			}
			seen[k] = true
			out.rows = append(out.rows, combined)
		}
	}

	return out, nil
}

// Dedup removes duplicate rows, keeping the first occurrence.
func (f *Frame) Dedup() *Frame {
	out := NewFrame(f.columns...)
	seen := make(map[string]bool, f.Len())

	for _, row := range f.rows {
		k := strings.Join(row, "\x1f")
		if seen[k] {
			continue
		}
		seen[k] = true
		out.rows = append(out.rows, append([]string(nil), row...))
	}

	return out
}

// Reorder returns a frame with columns rearranged to the given order. Every
// existing column must be named exactly once.
func (f *Frame) Reorder(order []string) (*Frame, error) {
	if len(order) != len(f.columns) {
		return nil, fmt.Errorf("%w: expected %v", ErrColumnMismatch, f.columns)
	}

	indices := make([]int, len(order))
	for i, name := range order {
		idx := f.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		indices[i] = idx
	}

	out := NewFrame(order...)
	out.rows = make([][]string, 0, f.Len())
	for _, row := range f.rows {
		reordered := make([]string, len(indices))
		for i, idx := range indices {
			reordered[i] = row[idx]
		}
		out.rows = append(out.rows, reordered)
	}

	return out, nil
}

// Select returns a frame restricted to the given columns, rows deduplicated.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	indices := make([]int, len(columns))
	for i, name := range columns {
		idx := f.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		indices[i] = idx
	}

	out := NewFrame(columns...)
	for _, row := range f.rows {
		selected := make([]string, len(indices))
		for i, idx := range indices {
			selected[i] = row[idx]
		}
		out.rows = append(out.rows, selected)
	}

	return out.Dedup(), nil
}

// Concat appends the rows of other to f. Column sets must match exactly;
// other's rows are reordered to f's column order.
func (f *Frame) Concat(other *Frame) (*Frame, error) {
	if len(other.columns) != len(f.columns) {
		return nil, ErrColumnMismatch
	}

	aligned, err := other.Reorder(f.columns)
	if err != nil {
		return nil, err
	}

	out := NewFrame(f.columns...)
	out.rows = append(out.rows, f.rows...)
	out.rows = append(out.rows, aligned.rows...)

	return out, nil
}

// Equal reports whether two frames have identical columns and rows in order.
func (f *Frame) Equal(other *Frame) bool {
	if len(f.columns) != len(other.columns) || len(f.rows) != len(other.rows) {
		return false
	}
	for i, name := range f.columns {
		if other.columns[i] != name {
			return false
		}
	}
	for i, row := range f.rows {
		for c, v := range row {
			if other.rows[i][c] != v {
				return false
			}
		}
	}

	return true
}

// Key returns a stable identity for row i over the given columns, usable as
// a map key when matching rows across frames.
func (f *Frame) Key(i int, columns []string) (string, error) {
	for _, name := range columns {
		if f.columnIndex(name) < 0 {
			return "", fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
	}

	return f.key(i, columns), nil
}

func (f *Frame) key(i int, columns []string) string {
	parts := make([]string, len(columns))
	for c, name := range columns {
		parts[c] = f.rows[i][f.columnIndex(name)]
	}

	return strings.Join(parts, "\x1f")
}

func (f *Frame) columnIndex(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}

	return -1
}
