package problem

import (
	"context"
	"errors"
	"fmt"

	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/store"
)

// CheckCoherence verifies that every non-constant data table exists in the
// store with exactly the declared coordinate columns and coordinate
// combinations. All mismatches are collected into one CoherenceError.
func (w *Workspace) CheckCoherence(ctx context.Context) error {
	var mismatches []string

	for _, table := range w.cat.Tables() {
		if uniform, ok := table.Type.UniformType(); ok && uniform == index.TypeConstant {
			continue
		}

		found, err := w.checkTable(ctx, table)
		if err != nil {
			return err
		}

		mismatches = append(mismatches, found...)
	}

	if len(mismatches) > 0 {
		return &CoherenceError{Mismatches: mismatches}
	}

	w.checked = true

	w.log.Debug("Store is coherent with model declarations")

	return nil
}

func (w *Workspace) checkTable(ctx context.Context, table *index.DataTable) ([]string, error) {
	stored, err := w.store.ReadTable(ctx, table.Name, nil)

	switch {
	case errors.Is(err, store.ErrUnknownTable):
		return []string{fmt.Sprintf("table %q is missing from the store", table.Name)}, nil
	case err != nil:
		return nil, fmt.Errorf("reading table %q: %w", table.Name, err)
	}

	if !equalStrings(stored.Columns, table.Coordinates) {
		return []string{fmt.Sprintf(
			"table %q has columns %v, expected %v",
			table.Name, stored.Columns, table.Coordinates,
		)}, nil
	}

	expected, err := w.cat.TableFrame(table)
	if err != nil {
		return nil, err
	}

	if stored.Frame().Dedup().Len() != len(stored.Rows) {
		return []string{fmt.Sprintf("table %q has duplicate coordinate rows", table.Name)}, nil
	}

	if len(stored.Rows) != expected.Len() {
		return []string{fmt.Sprintf(
			"table %q has %d rows, expected %d",
			table.Name, len(stored.Rows), expected.Len(),
		)}, nil
	}

	// Row order in the store is free; compare coordinate sets.
	storedKeys := make(map[string]bool, len(stored.Rows))

	storedFrame := stored.Frame()
	for i := 0; i < storedFrame.Len(); i++ {
		key, err := storedFrame.Key(i, table.Coordinates)
		if err != nil {
			return nil, err
		}

		storedKeys[key] = true
	}

	var mismatches []string

	for i := 0; i < expected.Len(); i++ {
		key, err := expected.Key(i, table.Coordinates)
		if err != nil {
			return nil, err
		}

		if !storedKeys[key] {
			mismatches = append(mismatches, fmt.Sprintf(
				"table %q is missing coordinate row %v",
				table.Name, expected.Row(i),
			))
		}
	}

	return mismatches, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
