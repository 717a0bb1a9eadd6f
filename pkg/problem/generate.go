package problem

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/affine"
	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/expr"
	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/solver"
)

// Generate builds the scenario's numerical problems, one instance per
// sub-problem in declaration order. Regenerating an already generated
// scenario requires force; the integrated solve loop relies on that to
// rebuild instances after each data refresh.
func (w *Workspace) Generate(scenario index.Scenario, force bool) ([]*Instance, error) {
	if !w.boundFor(scenario) {
		return nil, &OperationalError{Op: "generate numerical problems", Require: "binding exogenous data"}
	}

	if len(w.instances[scenario.Index]) > 0 && !force {
		return nil, fmt.Errorf("%w: scenario %d", ErrAlreadyGenerated, scenario.Index)
	}

	instances := make([]*Instance, 0, len(w.cat.Problems()))

	for _, decl := range w.cat.Problems() {
		instance, err := w.buildInstance(decl, scenario)
		if err != nil {
			return nil, fmt.Errorf("generating problem %q: %w", decl.Name, err)
		}

		instances = append(instances, instance)
	}

	w.instances[scenario.Index] = instances

	w.log.WithFields(logrus.Fields{
		"scenario":  scenario.Info,
		"instances": len(instances),
	}).Debug("Generated numerical problems")

	return instances, nil
}

// GenerateAll builds the numerical problems of every scenario.
func (w *Workspace) GenerateAll(force bool) error {
	for _, scenario := range w.cat.Scenarios() {
		if _, err := w.Generate(scenario, force); err != nil {
			return err
		}
	}

	return nil
}

func (w *Workspace) buildInstance(decl *index.ProblemDecl, scenario index.Scenario) (*Instance, error) {
	objective, err := w.buildObjective(decl, scenario)
	if err != nil {
		return nil, err
	}

	var constraints []*affine.Constraint

	for i, text := range decl.Constraints {
		built, err := w.buildConstraints(decl.Name, text, scenario)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i+1, err)
		}

		constraints = append(constraints, built...)
	}

	return &Instance{
		SubProblem:  decl.Name,
		Scenario:    scenario,
		Objective:   objective,
		Constraints: constraints,
		Status:      solver.StatusUnset,
	}, nil
}

// buildObjective evaluates the objective once per replication row and sums
// the results into a single scalar objective.
func (w *Workspace) buildObjective(decl *index.ProblemDecl, scenario index.Scenario) (*affine.Objective, error) {
	results, err := w.evaluateReplicated(decl.Name, decl.Objective, scenario)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}

	var (
		total *affine.Matrix
		sense affine.ObjectiveSense
	)

	for _, res := range results {
		if res.Objective == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotObjective, decl.Objective)
		}

		if total == nil {
			total = res.Objective.Expr
			sense = res.Objective.Sense

			continue
		}

		if res.Objective.Sense != sense {
			return nil, fmt.Errorf("%w: mixed directions in %q", ErrNotObjective, decl.Objective)
		}

		if total, err = affine.Add(total, res.Objective.Expr); err != nil {
			return nil, err
		}
	}

	return affine.NewObjective(sense, total)
}

func (w *Workspace) buildConstraints(sub, text string, scenario index.Scenario) ([]*affine.Constraint, error) {
	results, err := w.evaluateReplicated(sub, text, scenario)
	if err != nil {
		return nil, err
	}

	constraints := make([]*affine.Constraint, 0, len(results))

	for _, res := range results {
		if res.Constraint == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotConstraint, text)
		}

		constraints = append(constraints, res.Constraint)
	}

	return constraints, nil
}

// evaluateReplicated parses an expression and evaluates it once per row of
// its replication frame: the natural join of the replication frames of every
// variable it references.
func (w *Workspace) evaluateReplicated(sub, text string, scenario index.Scenario) ([]*expr.Result, error) {
	node, err := expr.Parse(text)
	if err != nil {
		return nil, err
	}

	frame, err := w.expressionFrame(text, scenario)
	if err != nil {
		return nil, err
	}

	rows := frame.Len()
	if rows == 0 {
		rows = 1
	}

	results := make([]*expr.Result, 0, rows)

	for i := 0; i < rows; i++ {
		row := map[string]string{}
		if frame.Len() > 0 {
			row = frame.RowMap(i)
		}

		res, err := expr.Evaluate(node, w.environment(sub, scenario, row))
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	return results, nil
}

// expressionFrame joins the replication frames of the expression's
// variables. An expression over unreplicated variables yields an empty
// frame, meaning a single evaluation.
func (w *Workspace) expressionFrame(text string, scenario index.Scenario) (*coords.Frame, error) {
	var merged *coords.Frame

	for _, token := range expr.VariableTokens(text) {
		v, err := w.cat.VariableByName(token)
		if err != nil {
			return nil, err
		}

		real := w.realizations[scenario.Index][v.Name]
		if len(real.ReplSets) == 0 {
			continue
		}

		frame, err := w.replicationFrame(v, real.ReplSets)
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = frame

			continue
		}

		if merged, err = merged.Merge(frame); err != nil {
			return nil, err
		}
	}

	if merged == nil {
		return coords.NewFrame(), nil
	}

	return merged, nil
}

// environment resolves variable tokens to the matrices of one replication
// row: decision matrices where the variable is endogenous in the
// sub-problem, constant data matrices otherwise.
func (w *Workspace) environment(sub string, scenario index.Scenario, row map[string]string) expr.Environment {
	return expr.EnvironmentFunc(func(name string) (*affine.Matrix, error) {
		v, err := w.cat.VariableByName(name)
		if err != nil {
			return nil, err
		}

		vt, ok := v.Type.ForSubProblem(sub)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrNoRole, name, sub)
		}

		real := w.realizations[scenario.Index][v.Name]

		slice, err := real.SliceFor(row)
		if err != nil {
			return nil, err
		}

		if vt == index.TypeEndogenous {
			return slice.Decision, nil
		}

		if slice.Data == nil {
			return nil, &OperationalError{
				Op:      fmt.Sprintf("evaluate variable %q", name),
				Require: "binding exogenous data",
			}
		}

		return slice.Data, nil
	})
}
