package store

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// diffDigits rounds relative differences, so convergence does not chase
// floating point noise.
const diffDigits = 5

// DiffTables compares the named tables between two database files and
// returns the maximum relative difference per table, rounded to five
// decimals. Values are matched by row id; a null on either side counts as no
// difference only when both sides are null.
func DiffTables(
	ctx context.Context,
	log logrus.FieldLogger,
	pathA, pathB string,
	names []string,
) (map[string]float64, error) {
	a, err := Open(log, pathA)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	b, err := Open(log, pathB)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	out := make(map[string]float64, len(names))

	for _, name := range names {
		diff, err := diffTable(ctx, a, b, name)
		if err != nil {
			return nil, err
		}

		out[name] = diff
	}

	return out, nil
}

func diffTable(ctx context.Context, a, b Store, name string) (float64, error) {
	tableA, err := a.ReadTable(ctx, name, nil)
	if err != nil {
		return 0, err
	}

	tableB, err := b.ReadTable(ctx, name, nil)
	if err != nil {
		return 0, err
	}

	if len(tableA.Rows) != len(tableB.Rows) {
		return 0, fmt.Errorf(
			"%w: table %s has %d rows vs %d",
			ErrLengthMismatch, name, len(tableA.Rows), len(tableB.Rows),
		)
	}

	maxDiff := 0.0

	for i := range tableA.Rows {
		rowA, rowB := tableA.Rows[i], tableB.Rows[i]

		if rowA.Null && rowB.Null {
			continue
		}

		diff := relativeDiff(rowA.Value, rowB.Value)
		if rowA.Null != rowB.Null {
			diff = math.Inf(1)
		}

		if diff > maxDiff {
			maxDiff = diff
		}
	}

	return roundTo(maxDiff, diffDigits), nil
}

// relativeDiff measures |a-b| scaled by |b|. Any nonzero delta over a zero
// reference is an infinite relative move.
func relativeDiff(a, b float64) float64 {
	delta := math.Abs(a - b)
	if b == 0 {
		if delta == 0 {
			return 0
		}

		return math.Inf(1)
	}

	return delta / math.Abs(b)
}

func roundTo(x float64, digits int) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}

	scale := math.Pow(10, float64(digits))

	return math.Round(x*scale) / scale
}
