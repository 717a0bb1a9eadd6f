package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/observability"
	"github.com/symopt/symopt/pkg/problem"
	"github.com/symopt/symopt/pkg/solver"
	"github.com/symopt/symopt/pkg/store"
)

// ScenarioState is the terminal state of one scenario's solve.
type ScenarioState int

// Scenario states
const (
	StateIdle ScenarioState = iota
	StateIterating
	StateConverged
	StateMaxIterations
	StateInfeasible
)

// String implements fmt.Stringer.
func (s ScenarioState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateMaxIterations:
		return "max-iterations"
	case StateInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// ScenarioResult summarizes one scenario's run.
type ScenarioResult struct {
	Scenario   index.Scenario
	State      ScenarioState
	Iterations int
	// Statuses holds the last solver outcome per sub-problem.
	Statuses map[string]solver.Status
	// Objectives holds the last optimal objective value per sub-problem.
	Objectives map[string]float64
	// Residuals holds the last relative table differences of the
	// convergence check. Nil for independent runs.
	Residuals map[string]float64
}

// RunResult summarizes a full model run.
type RunResult struct {
	// ID uniquely identifies this run in logs and metrics.
	ID        string
	Coupled   bool
	Scenarios []*ScenarioResult
	// ResultsPath locates the exported results database. Empty for
	// independent runs, which leave results in the working store.
	ResultsPath string
}

// SolveIndependent solves every sub-problem of every scenario exactly once,
// in declaration order, writing results into the working store. Suitable
// when no table couples the sub-problems.
func (m *Model) SolveIndependent(ctx context.Context) (*RunResult, error) {
	if !m.ready {
		return nil, &problem.OperationalError{Op: "solve", Require: "setup"}
	}

	result := &RunResult{ID: uuid.NewString()}

	m.log.WithFields(logrus.Fields{
		"run":       result.ID,
		"scenarios": len(m.cat.Scenarios()),
	}).Info("Starting independent solve")

	for _, scenario := range m.cat.Scenarios() {
		sr := newScenarioResult(scenario)
		result.Scenarios = append(result.Scenarios, sr)

		if err := m.prepareScenario(ctx, scenario); err != nil {
			return nil, err
		}

		allOptimal, err := m.solveSequence(ctx, scenario, sr, false)
		if err != nil {
			return nil, err
		}

		sr.Iterations = 1

		sr.State = StateConverged
		if !allOptimal {
			sr.State = StateInfeasible
		}

		observability.ScenariosTotal.WithLabelValues(sr.State.String()).Inc()
	}

	return result, nil
}

// SolveIntegrated solves coupled sub-problems by fixed-point iteration, one
// scenario at a time. The working store is snapshotted before the run and
// restored afterwards on every path; final results are exported to the
// configured results file after each scenario, so finished scenarios survive
// a later failure.
func (m *Model) SolveIntegrated(ctx context.Context) (*RunResult, error) {
	if !m.ready {
		return nil, &problem.OperationalError{Op: "solve", Require: "setup"}
	}

	coupling, err := m.ws.Coupling()
	if err != nil {
		return nil, err
	}

	working := m.cfg.Store.Path
	backup := working + ".backup"

	if err := store.CopyFile(working, backup); err != nil {
		return nil, err
	}

	result := &RunResult{
		ID:          uuid.NewString(),
		Coupled:     coupling.IsCoupled(),
		ResultsPath: m.cfg.ResultsPath(),
	}

	m.log.WithFields(logrus.Fields{
		"run":     result.ID,
		"coupled": result.Coupled,
	}).Info("Starting integrated solve")

	runErr := m.runScenarios(ctx, coupling.IsCoupled(), result)

	// The exogenous inputs must leave the run unchanged; anything else
	// indicates a writeback into an input table.
	m.verifyExogenousUnchanged(ctx, working, backup)

	// Restore the pre-run snapshot over the working store no matter how
	// the run ended. Results were already exported durably.
	if err := m.store.Close(); err != nil && runErr == nil {
		runErr = err
	}

	if err := store.ReplaceFile(backup, working); err != nil {
		if runErr == nil {
			runErr = err
		}
	}

	if err := m.reopen(); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil {
		return nil, runErr
	}

	return result, nil
}

func (m *Model) runScenarios(ctx context.Context, coupled bool, result *RunResult) error {
	for _, scenario := range m.cat.Scenarios() {
		sr, err := m.runScenario(ctx, scenario, coupled)
		if err != nil {
			return err
		}

		result.Scenarios = append(result.Scenarios, sr)

		observability.ScenariosTotal.WithLabelValues(sr.State.String()).Inc()
		observability.CouplingIterations.WithLabelValues(scenario.Info).Observe(float64(sr.Iterations))

		// Export what we have so far; a later scenario failing must not
		// lose this one's results.
		if err := store.CopyFile(m.cfg.Store.Path, result.ResultsPath); err != nil {
			return err
		}
	}

	return nil
}

func (m *Model) runScenario(
	ctx context.Context,
	scenario index.Scenario,
	coupled bool,
) (*ScenarioResult, error) {
	sr := newScenarioResult(scenario)
	sr.State = StateIterating

	working := m.cfg.Store.Path
	previous := fmt.Sprintf("%s.prev.s%d", working, scenario.Index)

	defer func() {
		if err := store.RemoveFile(previous); err != nil {
			m.log.WithError(err).Warn("Failed to remove iteration snapshot")
		}
	}()

	for iteration := 1; iteration <= m.cfg.Coupling.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sr.Iterations = iteration

		// Exogenous data is re-fetched every iteration so coupling
		// tables carry the other sub-problems' latest results.
		if err := m.prepareScenario(ctx, scenario); err != nil {
			return nil, err
		}

		// Snapshot the store before this iteration's writebacks; the
		// convergence check diffs against it.
		if err := store.CopyFile(working, previous); err != nil {
			return nil, err
		}

		allOptimal, err := m.solveSequence(ctx, scenario, sr, iteration > 1)
		if err != nil {
			return nil, err
		}

		if !allOptimal {
			sr.State = StateInfeasible

			return sr, nil
		}

		if !coupled {
			sr.State = StateConverged

			return sr, nil
		}

		// The first iteration has no meaningful baseline to diff
		// against.
		if iteration == 1 {
			continue
		}

		converged, err := m.checkConvergence(ctx, scenario, sr, working, previous)
		if err != nil {
			return nil, err
		}

		if converged {
			sr.State = StateConverged

			return sr, nil
		}
	}

	sr.State = StateMaxIterations

	m.log.WithFields(logrus.Fields{
		"scenario":   scenario.Info,
		"iterations": sr.Iterations,
	}).Warn("Scenario did not converge within the iteration limit")

	return sr, nil
}

// prepareScenario binds the scenario's exogenous data and (re)generates its
// numerical problems.
func (m *Model) prepareScenario(ctx context.Context, scenario index.Scenario) error {
	if err := m.ws.BindExogenous(ctx, scenario); err != nil {
		return err
	}

	if _, err := m.ws.Generate(scenario, true); err != nil {
		return err
	}

	return nil
}

// solveSequence solves the scenario's instances in declaration order,
// recording every status, then writes back only when all of them are
// optimal. An iteration with any failed sub-problem leaves the store
// untouched.
func (m *Model) solveSequence(
	ctx context.Context,
	scenario index.Scenario,
	sr *ScenarioResult,
	suppressWarnings bool,
) (bool, error) {
	instances := m.ws.InstancesFor(scenario)
	allOptimal := true

	for _, instance := range instances {
		started := time.Now()

		res, err := m.backend.Solve(ctx, &solver.Problem{
			Objective:   instance.Objective,
			Constraints: instance.Constraints,
		})
		if err != nil {
			return false, fmt.Errorf("solving %q: %w", instance.SubProblem, err)
		}

		observability.SolveDuration.WithLabelValues(instance.SubProblem).Observe(time.Since(started).Seconds())
		observability.SolvesTotal.WithLabelValues(instance.SubProblem, res.Status.String()).Inc()

		instance.Status = res.Status
		sr.Statuses[instance.SubProblem] = res.Status

		if res.Status != solver.StatusOptimal {
			m.log.WithFields(logrus.Fields{
				"problem":  instance.SubProblem,
				"scenario": scenario.Info,
				"status":   res.Status.String(),
			}).Warn("Sub-problem did not solve to optimality")

			if res.Err != nil {
				m.log.WithError(res.Err).Warn("Solver backend error")
			}

			allOptimal = false

			continue
		}

		sr.Objectives[instance.SubProblem] = res.Objective

		for idx, value := range res.Values {
			if err := m.ws.Space().SetValue(idx, value); err != nil {
				return false, err
			}
		}
	}

	if !allOptimal {
		return false, nil
	}

	for _, instance := range instances {
		if err := m.ws.Writeback(ctx, instance.SubProblem, scenario, suppressWarnings); err != nil {
			return false, err
		}

		for _, table := range m.ws.EndogenousTables(instance.SubProblem) {
			observability.StoreWrites.WithLabelValues(table).Inc()
		}
	}

	return true, nil
}

// checkConvergence diffs the coupling tables against the previous iteration
// snapshot.
func (m *Model) checkConvergence(
	ctx context.Context,
	scenario index.Scenario,
	sr *ScenarioResult,
	working, previous string,
) (bool, error) {
	diffs, err := store.DiffTables(ctx, m.log, working, previous, m.ws.AllEndogenousTables())
	if err != nil {
		return false, err
	}

	sr.Residuals = diffs

	converged := true

	for table, diff := range diffs {
		observability.ConvergenceResidual.WithLabelValues(scenario.Info, table).Set(diff)

		if diff > m.cfg.Coupling.Tolerance {
			converged = false
		}
	}

	m.log.WithFields(logrus.Fields{
		"scenario":  scenario.Info,
		"iteration": sr.Iterations,
		"residuals": diffs,
		"converged": converged,
	}).Info("Convergence check")

	return converged, nil
}

// verifyExogenousUnchanged warns when the run mutated pure input tables.
func (m *Model) verifyExogenousUnchanged(ctx context.Context, working, backup string) {
	var tables []string

	for _, table := range m.cat.Tables() {
		if uniform, ok := table.Type.UniformType(); ok && uniform == index.TypeExogenous {
			tables = append(tables, table.Name)
		}
	}

	if len(tables) == 0 {
		return
	}

	diffs, err := store.DiffTables(ctx, m.log, working, backup, tables)
	if err != nil {
		m.log.WithError(err).Warn("Failed to verify exogenous tables")

		return
	}

	for table, diff := range diffs {
		if diff != 0 {
			m.log.WithFields(logrus.Fields{
				"table": table,
				"diff":  diff,
			}).Warn("Exogenous table changed during the run")
		}
	}
}

// ResultsCheckTolerance is the default relative difference below which two
// result stores are considered to agree.
const ResultsCheckTolerance = 0.02

// EqualResults reports whether two result databases agree on every given
// table within the tolerance.
func EqualResults(
	ctx context.Context,
	log logrus.FieldLogger,
	pathA, pathB string,
	tables []string,
	tolerance float64,
) (bool, error) {
	diffs, err := store.DiffTables(ctx, log, pathA, pathB, tables)
	if err != nil {
		return false, err
	}

	for _, diff := range diffs {
		if diff > tolerance {
			return false, nil
		}
	}

	return true, nil
}

func newScenarioResult(scenario index.Scenario) *ScenarioResult {
	return &ScenarioResult{
		Scenario:   scenario,
		State:      StateIdle,
		Statuses:   make(map[string]solver.Status),
		Objectives: make(map[string]float64),
	}
}
