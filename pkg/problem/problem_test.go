package problem

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/solver"
	"github.com/symopt/symopt/pkg/store"
)

const problemTestDefinition = `
sets:
  - name: scenarios
    split_problem: true
    items:
      - name: base
      - name: high
  - name: years
    items:
      - name: "2025"
      - name: "2026"
  - name: techs
    items:
      - name: pv
      - name: wind

tables:
  - name: demand
    type: exogenous
    coordinates: [scenarios, years]
    variables:
      dem:
        dims: {years: rows}
  - name: capacity
    type: endogenous
    coordinates: [scenarios, years, techs]
    variables:
      cap:
        dims: {years: rows}
  - name: weights
    type: constant
    coordinates: [years]
    variables:
      w:
        dims: {years: rows}
        value: sum_vector

problems:
  - name: planning
    objective: "Minimize(sum(cap))"
    constraints:
      - "cap >= dem"
`

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func testCatalog(t *testing.T, definition string) *index.Catalog {
	t.Helper()

	def, err := index.LoadDefinition(strings.NewReader(definition))
	require.NoError(t, err)

	cat, err := index.NewCatalog(testLogger(), def)
	require.NoError(t, err)

	return cat
}

func testStore(t *testing.T, cat *index.Catalog) store.Store {
	t.Helper()

	s, err := store.Open(testLogger(), filepath.Join(t.TempDir(), "model.db"))
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Initialize(context.Background(), cat, false))

	return s
}

// fillDemand writes per-scenario demand values into the store.
func fillDemand(t *testing.T, s store.Store, scenario string, values map[string]float64) {
	t.Helper()

	frame := coords.NewFrame("scenarios", "years")
	flat := make([]float64, 0, len(values))

	for _, year := range []string{"2025", "2026"} {
		require.NoError(t, frame.Append(map[string]string{"scenarios": scenario, "years": year}))
		flat = append(flat, values[year])
	}

	require.NoError(t, s.UpdateValues(context.Background(), "demand", frame, flat, false))
}

func readyWorkspace(t *testing.T) (*Workspace, store.Store) {
	t.Helper()

	cat := testCatalog(t, problemTestDefinition)
	s := testStore(t, cat)

	fillDemand(t, s, "base", map[string]float64{"2025": 5, "2026": 7})
	fillDemand(t, s, "high", map[string]float64{"2025": 6, "2026": 8})

	w := NewWorkspace(testLogger(), cat, s)
	require.NoError(t, w.CheckCoherence(context.Background()))
	require.NoError(t, w.InitializeVariables())

	return w, s
}

func TestWorkspace_LifecycleGuards(t *testing.T) {
	cat := testCatalog(t, problemTestDefinition)
	s := testStore(t, cat)
	w := NewWorkspace(testLogger(), cat, s)

	scenario := cat.Scenarios()[0]

	assert.ErrorIs(t, w.InitializeVariables(), ErrOutOfSequence)
	assert.ErrorIs(t, w.BindExogenous(context.Background(), scenario), ErrOutOfSequence)

	_, err := w.Generate(scenario, false)
	assert.ErrorIs(t, err, ErrOutOfSequence)

	assert.ErrorIs(t, w.Writeback(context.Background(), "planning", scenario, false), ErrOutOfSequence)
}

func TestWorkspace_CheckCoherence(t *testing.T) {
	cat := testCatalog(t, problemTestDefinition)

	// An empty store is missing every table.
	empty, err := store.Open(testLogger(), filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)

	defer empty.Close()

	w := NewWorkspace(testLogger(), cat, empty)

	err = w.CheckCoherence(context.Background())
	require.ErrorIs(t, err, ErrNotCoherent)
	assert.Contains(t, err.Error(), `table "demand" is missing`)
	assert.Contains(t, err.Error(), `table "capacity" is missing`)

	// A blank-initialized store is coherent.
	w = NewWorkspace(testLogger(), cat, testStore(t, cat))
	assert.NoError(t, w.CheckCoherence(context.Background()))
}

func TestWorkspace_InitializeVariables(t *testing.T) {
	w, _ := readyWorkspace(t)

	scenario := w.Catalog().Scenarios()[0]

	cap, err := w.Realization(scenario, "cap")
	require.NoError(t, err)

	// years spans rows, techs replicates, scenarios splits.
	assert.Equal(t, 2, cap.Shape.Rows)
	assert.Equal(t, 1, cap.Shape.Cols)
	assert.Equal(t, []string{"techs"}, cap.ReplSets)
	require.Len(t, cap.Slices(), 2)

	for _, slice := range cap.Slices() {
		require.NotNil(t, slice.Block)
		require.NotNil(t, slice.Decision)
		assert.Equal(t, "base", slice.Coords["scenarios"])
	}

	// Two scenarios x two techs x two years of capacity, plus demand is
	// data only.
	assert.Equal(t, 2*2*2, w.Space().Size())

	// Constants carry their generated data from the start.
	weights, err := w.Realization(scenario, "w")
	require.NoError(t, err)

	require.Len(t, weights.Slices(), 1)
	require.NotNil(t, weights.Slices()[0].Data)

	value, err := weights.Slices()[0].Data.ConstantValue()
	require.NoError(t, err)
	assert.Equal(t, 1.0, value.At(0, 0))
	assert.Equal(t, 1.0, value.At(1, 0))
}

func TestWorkspace_BindExogenous(t *testing.T) {
	w, _ := readyWorkspace(t)

	scenarios := w.Catalog().Scenarios()
	require.NoError(t, w.BindExogenous(context.Background(), scenarios[1]))

	dem, err := w.Realization(scenarios[1], "dem")
	require.NoError(t, err)

	require.Len(t, dem.Slices(), 1)

	data, err := dem.Slices()[0].Data.ConstantValue()
	require.NoError(t, err)

	// Scenario "high" values, in years order.
	assert.Equal(t, 6.0, data.At(0, 0))
	assert.Equal(t, 8.0, data.At(1, 0))
}

func TestWorkspace_BindExogenous_MissingData(t *testing.T) {
	cat := testCatalog(t, problemTestDefinition)
	s := testStore(t, cat)

	// Only one of the two base-year demands is filled.
	frame := coords.NewFrame("scenarios", "years")
	require.NoError(t, frame.Append(map[string]string{"scenarios": "base", "years": "2025"}))
	require.NoError(t, s.UpdateValues(context.Background(), "demand", frame, []float64{5}, false))

	w := NewWorkspace(testLogger(), cat, s)
	require.NoError(t, w.CheckCoherence(context.Background()))
	require.NoError(t, w.InitializeVariables())

	err := w.BindExogenous(context.Background(), cat.Scenarios()[0])
	require.ErrorIs(t, err, ErrMissingData)

	var missing *MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "demand", missing.Table)
	require.Len(t, missing.Records, 1)
	assert.Contains(t, missing.Records[0], "years=2026")
}

func TestWorkspace_BindExogenous_BlankFill(t *testing.T) {
	def := strings.Replace(
		problemTestDefinition,
		"dims: {years: rows}\n  - name: capacity",
		"dims: {years: rows}\n        blank_fill: 9\n  - name: capacity",
		1,
	)

	cat := testCatalog(t, def)
	s := testStore(t, cat)

	w := NewWorkspace(testLogger(), cat, s)
	require.NoError(t, w.CheckCoherence(context.Background()))
	require.NoError(t, w.InitializeVariables())

	scenario := cat.Scenarios()[0]
	require.NoError(t, w.BindExogenous(context.Background(), scenario))

	dem, err := w.Realization(scenario, "dem")
	require.NoError(t, err)

	data, err := dem.Slices()[0].Data.ConstantValue()
	require.NoError(t, err)
	assert.Equal(t, 9.0, data.At(0, 0))
	assert.Equal(t, 9.0, data.At(1, 0))
}

func TestWorkspace_Generate(t *testing.T) {
	w, _ := readyWorkspace(t)

	scenario := w.Catalog().Scenarios()[0]
	require.NoError(t, w.BindExogenous(context.Background(), scenario))

	instances, err := w.Generate(scenario, false)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	instance := instances[0]
	assert.Equal(t, "planning", instance.SubProblem)
	assert.Equal(t, solver.StatusUnset, instance.Status)
	require.NotNil(t, instance.Objective)

	// cap >= dem replicates once per tech.
	assert.Len(t, instance.Constraints, 2)

	// Regeneration needs force.
	_, err = w.Generate(scenario, false)
	assert.ErrorIs(t, err, ErrAlreadyGenerated)

	_, err = w.Generate(scenario, true)
	assert.NoError(t, err)
}

func TestWorkspace_SolveAndWriteback(t *testing.T) {
	w, s := readyWorkspace(t)

	ctx := context.Background()
	scenario := w.Catalog().Scenarios()[0]

	require.NoError(t, w.BindExogenous(ctx, scenario))

	instances, err := w.Generate(scenario, false)
	require.NoError(t, err)

	res, err := solver.NewSimplex(testLogger()).Solve(ctx, &solver.Problem{
		Objective:   instances[0].Objective,
		Constraints: instances[0].Constraints,
	})
	require.NoError(t, err)
	require.Equal(t, solver.StatusOptimal, res.Status)

	// Minimal capacity meets demand exactly for each tech.
	assert.InDelta(t, 2*(5+7), res.Objective, 1e-9)

	for idx, value := range res.Values {
		require.NoError(t, w.Space().SetValue(idx, value))
	}

	require.NoError(t, w.Writeback(ctx, "planning", scenario, false))

	capacity, err := s.ReadTable(ctx, "capacity", map[string][]string{"scenarios": {"base"}})
	require.NoError(t, err)

	byKey := capacity.ValueByKey([]string{"years", "techs"})
	require.Len(t, byKey, 4)
	assert.InDelta(t, 5, byKey["2025\x1fpv"], 1e-9)
	assert.InDelta(t, 5, byKey["2025\x1fwind"], 1e-9)
	assert.InDelta(t, 7, byKey["2026\x1fpv"], 1e-9)
	assert.InDelta(t, 7, byKey["2026\x1fwind"], 1e-9)

	// The other scenario's records stay untouched.
	high, err := s.ReadTable(ctx, "capacity", map[string][]string{"scenarios": {"high"}})
	require.NoError(t, err)

	for _, row := range high.Rows {
		assert.True(t, row.Null)
	}
}

const couplingDefinition = `
sets:
  - name: years
    items:
      - name: "2025"

tables:
  - name: totals
    type:
      operation: endogenous
      planning: exogenous
    coordinates: [years]
    variables:
      tot:
        dims: {years: rows}
  - name: feedback
    type:
      planning: endogenous
      operation: exogenous
    coordinates: [years]
    variables:
      fb:
        dims: {years: rows}

problems:
  - name: planning
    objective: "Minimize(sum(fb))"
  - name: operation
    objective: "Minimize(sum(tot))"
`

func TestWorkspace_Coupling(t *testing.T) {
	cat := testCatalog(t, couplingDefinition)
	w := NewWorkspace(testLogger(), cat, testStore(t, cat))

	coupling, err := w.Coupling()
	require.NoError(t, err)

	assert.True(t, coupling.IsCoupled())
	assert.Equal(t, []string{"planning", "operation"}, coupling.Order())

	// Only the first declared direction of the cycle survives in the
	// graph: totals flows from operation to planning.
	assert.Equal(t, []string{"planning"}, coupling.Consumers("operation"))
	assert.Empty(t, coupling.Consumers("planning"))
}

func TestWorkspace_EndogenousTables(t *testing.T) {
	cat := testCatalog(t, couplingDefinition)
	w := NewWorkspace(testLogger(), cat, testStore(t, cat))

	assert.Equal(t, []string{"feedback"}, w.EndogenousTables("planning"))
	assert.Equal(t, []string{"totals"}, w.EndogenousTables("operation"))
	assert.Equal(t, []string{"totals", "feedback"}, w.AllEndogenousTables())
}
