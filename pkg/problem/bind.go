package problem

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/symopt/symopt/pkg/affine"
	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/index"
)

// BindExogenous loads store values into the constant matrices of every
// variable that is exogenous in at least one sub-problem, for one scenario.
// Missing values use the variable's blank fill when declared; tables that
// are endogenous elsewhere default missing values to zero, since they are
// only filled once their producing sub-problem has solved. Anything else
// missing is a MissingDataError.
func (w *Workspace) BindExogenous(ctx context.Context, scenario index.Scenario) error {
	if !w.initialized {
		return &OperationalError{Op: "bind exogenous data", Require: "initializing variables"}
	}

	for _, v := range w.cat.Variables() {
		if !exogenousAnywhere(v) {
			continue
		}

		if err := w.bindVariable(ctx, v, scenario); err != nil {
			return err
		}
	}

	w.bound[scenario.Index] = true

	return nil
}

func exogenousAnywhere(v *index.Variable) bool {
	if uniform, ok := v.Type.UniformType(); ok {
		return uniform == index.TypeExogenous
	}

	return len(v.Type.SubProblemsWith(index.TypeExogenous)) > 0
}

func (w *Workspace) bindVariable(ctx context.Context, v *index.Variable, scenario index.Scenario) error {
	filters, err := w.readFilters(v, scenario)
	if err != nil {
		return err
	}

	table, err := w.store.ReadTable(ctx, v.Table, filters)
	if err != nil {
		return fmt.Errorf("reading table %q: %w", v.Table, err)
	}

	byKey := table.ValueByKey(v.Coordinates())
	real := w.realizations[scenario.Index][v.Name]

	// Coupling tables start empty and are filled by another sub-problem's
	// solve, so their gaps are expected.
	coupled := v.Type.AnyEndogenous()

	var missing []string

	defaulted := 0

	for _, slice := range real.Slices() {
		data := mat.NewDense(real.Shape.Rows, real.Shape.Cols, nil)

		for r := 0; r < real.Shape.Rows; r++ {
			for c := 0; c < real.Shape.Cols; c++ {
				idx := r*real.Shape.Cols + c

				key, err := slice.frame.Key(idx, v.Coordinates())
				if err != nil {
					return err
				}

				value, ok := byKey[key]

				switch {
				case ok:
					data.Set(r, c, value)
				case v.BlankFill != nil:
					data.Set(r, c, *v.BlankFill)
				case coupled:
					defaulted++
				default:
					missing = append(missing, describeRow(slice.frame, idx, v.Coordinates()))
				}
			}
		}

		slice.Data = affine.Constant(data)
	}

	if len(missing) > 0 {
		return &MissingDataError{Table: v.Table, Records: missing}
	}

	if defaulted > 0 {
		w.log.WithFields(logrus.Fields{
			"variable": v.Name,
			"table":    v.Table,
			"records":  defaulted,
			"scenario": scenario.Info,
		}).Debug("Coupling values not available yet, defaulted to zero")
	}

	return nil
}

// readFilters narrows a store read to the scenario's split coordinates and
// the variable's admitted items.
func (w *Workspace) readFilters(v *index.Variable, scenario index.Scenario) (map[string][]string, error) {
	filters := make(map[string][]string)

	for _, set := range v.Coordinates() {
		if label, ok := scenario.Coordinates[set]; ok && w.cat.IsSplitSet(set) {
			filters[set] = []string{label}

			continue
		}

		if len(v.SetFilters(set)) == 0 {
			continue
		}

		items, err := w.cat.ItemsFor(v, set)
		if err != nil {
			return nil, err
		}

		filters[set] = items
	}

	return filters, nil
}

func describeRow(frame *coords.Frame, i int, columns []string) string {
	row := frame.RowMap(i)

	out := ""

	for _, col := range columns {
		if out != "" {
			out += ", "
		}

		out += col + "=" + row[col]
	}

	return out
}

// Writeback persists the solved decision values of every table endogenous in
// the given sub-problem, for one scenario. Variables whose decision space is
// not fully solved are logged and skipped rather than failing the run.
func (w *Workspace) Writeback(
	ctx context.Context,
	sub string,
	scenario index.Scenario,
	suppressWarnings bool,
) error {
	if !w.initialized {
		return &OperationalError{Op: "write back results", Require: "initializing variables"}
	}

	for _, tableName := range w.EndogenousTables(sub) {
		table, err := w.cat.TableByName(tableName)
		if err != nil {
			return err
		}

		for _, name := range table.VariableNames() {
			v := table.Variables[name]
			real := w.realizations[scenario.Index][v.Name]

			if err := w.writebackVariable(ctx, v, real, scenario, suppressWarnings); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Workspace) writebackVariable(
	ctx context.Context,
	v *index.Variable,
	real *Realization,
	scenario index.Scenario,
	suppressWarnings bool,
) error {
	for _, slice := range real.Slices() {
		if slice.Block == nil || !slice.Block.Solved() {
			if !suppressWarnings {
				w.log.WithFields(logrus.Fields{
					"variable": v.Name,
					"scenario": scenario.Info,
				}).Warn("Variable has unsolved values, skipping writeback")
			}

			return nil
		}

		values := make([]float64, real.Shape.Rows*real.Shape.Cols)

		for i := range values {
			idx, err := slice.Block.Index(i)
			if err != nil {
				return err
			}

			if values[i], err = w.space.ValueAt(idx); err != nil {
				return err
			}
		}

		if err := w.store.UpdateValues(ctx, v.Table, slice.frame, values, suppressWarnings); err != nil {
			return fmt.Errorf("writing back %q: %w", v.Table, err)
		}
	}

	return nil
}

// boundFor reports whether exogenous data has been bound for a scenario.
func (w *Workspace) boundFor(scenario index.Scenario) bool {
	return w.bound[scenario.Index]
}
