package index

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefinition = `
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
      - name: "2027"
  - name: techs
    items:
      - name: pv
        categories: {kind: supply}
      - name: wind
        categories: {kind: supply}
      - name: storage
        categories: {kind: flex}
  - name: techs_alias
    copy_from: techs

tables:
  - name: capacity
    type: endogenous
    coordinates: [scenarios, years, techs]
    variables:
      cap:
        dims: {years: rows, techs: cols}
  - name: demand
    type: exogenous
    coordinates: [scenarios, years]
    variables:
      dem:
        dims: {years: rows}
        blank_fill: 0
  - name: totals
    type:
      operation: endogenous
      planning: exogenous
    coordinates: [scenarios, years]
    variables:
      tot:
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
    objective: "Minimize(sum(w @ cap))"
    constraints:
      - "cap >= dem"
  - name: operation
    objective: "Minimize(sum(tot))"
`

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	def, err := LoadDefinition(strings.NewReader(testDefinition))
	require.NoError(t, err)

	cat, err := NewCatalog(testLogger(), def)
	require.NoError(t, err)

	return cat
}

func TestNewCatalog(t *testing.T) {
	cat := loadTestCatalog(t)

	assert.Len(t, cat.Sets(), 4)
	assert.Len(t, cat.Tables(), 4)
	assert.Len(t, cat.Problems(), 2)
	assert.Equal(t, []string{"scenarios"}, cat.SplitSets())

	set, err := cat.SetByName("Techs")
	require.NoError(t, err)
	assert.Equal(t, []string{"pv", "wind", "storage"}, set.ItemNames())

	alias, err := cat.SetByName("techs_alias")
	require.NoError(t, err)
	assert.Equal(t, set.ItemNames(), alias.ItemNames())

	_, err = cat.SetByName("missing")
	assert.ErrorIs(t, err, ErrUnknownSet)
}

func TestCatalog_Scenarios(t *testing.T) {
	cat := loadTestCatalog(t)

	scenarios := cat.Scenarios()
	require.Len(t, scenarios, 2)

	assert.Equal(t, 0, scenarios[0].Index)
	assert.Equal(t, "base", scenarios[0].Coordinates["scenarios"])
	assert.Equal(t, "scenarios: base", scenarios[0].Info)
	assert.Equal(t, "high", scenarios[1].Coordinates["scenarios"])
}

func TestCatalog_NoSplitSetSingleScenario(t *testing.T) {
	def := strings.Replace(testDefinition, "split_problem: true", "split_problem: false", 1)

	parsed, err := LoadDefinition(strings.NewReader(def))
	require.NoError(t, err)

	cat, err := NewCatalog(testLogger(), parsed)
	require.NoError(t, err)

	scenarios := cat.Scenarios()
	require.Len(t, scenarios, 1)
	assert.Empty(t, scenarios[0].Coordinates)
}

func TestCatalog_TypeSpec(t *testing.T) {
	cat := loadTestCatalog(t)

	capacity, err := cat.TableByName("capacity")
	require.NoError(t, err)

	uniform, ok := capacity.Type.UniformType()
	require.True(t, ok)
	assert.Equal(t, TypeEndogenous, uniform)

	totals, err := cat.TableByName("totals")
	require.NoError(t, err)
	assert.True(t, totals.Type.IsPerSubProblem())

	vt, ok := totals.Type.ForSubProblem("operation")
	require.True(t, ok)
	assert.Equal(t, TypeEndogenous, vt)

	vt, ok = totals.Type.ForSubProblem("planning")
	require.True(t, ok)
	assert.Equal(t, TypeExogenous, vt)

	assert.True(t, totals.Type.AnyEndogenous())
	assert.Equal(t, []string{"operation"}, totals.Type.SubProblemsWith(TypeEndogenous))
}

func TestCatalog_VariableResolution(t *testing.T) {
	cat := loadTestCatalog(t)

	cap, err := cat.VariableByName("cap")
	require.NoError(t, err)

	assert.Equal(t, "capacity", cap.Table)
	assert.Equal(t, []string{"scenarios", "years", "techs"}, cap.Coordinates())

	assert.Equal(t, []string{"scenarios"}, cap.SetsByRole(DimInter, cat.IsSplitSet))
	assert.Equal(t, []string{"years"}, cap.SetsByRole(DimRows, cat.IsSplitSet))
	assert.Equal(t, []string{"techs"}, cap.SetsByRole(DimCols, cat.IsSplitSet))
	assert.Empty(t, cap.SetsByRole(DimIntra, cat.IsSplitSet))

	shape, err := cat.VariableShape(cap)
	require.NoError(t, err)
	assert.Equal(t, 3, shape.Rows)
	assert.Equal(t, 3, shape.Cols)

	frame, err := cat.VariableFrame(cap)
	require.NoError(t, err)
	assert.Equal(t, 2*3*3, frame.Len())
}

func TestCatalog_VariableFilters(t *testing.T) {
	def := strings.Replace(
		testDefinition,
		"dims: {years: rows, techs: cols}",
		"dims: {years: rows, techs: cols}\n        filters: {techs: {kind: [supply]}}",
		1,
	)

	parsed, err := LoadDefinition(strings.NewReader(def))
	require.NoError(t, err)

	cat, err := NewCatalog(testLogger(), parsed)
	require.NoError(t, err)

	cap, err := cat.VariableByName("cap")
	require.NoError(t, err)

	items, err := cat.ItemsFor(cap, "techs")
	require.NoError(t, err)
	assert.Equal(t, []string{"pv", "wind"}, items)

	shape, err := cat.VariableShape(cap)
	require.NoError(t, err)
	assert.Equal(t, 2, shape.Cols)
}

func TestNewCatalog_AggregatesViolations(t *testing.T) {
	def := &Definition{
		Sets: []*Set{
			{Name: "years", Items: []SetItem{{Name: "2025"}, {Name: "2025"}}},
			{Name: "years", Items: []SetItem{{Name: "x"}}},
			{Name: "empty"},
		},
		Tables: []*DataTable{
			{
				Name:        "capacity",
				Type:        UniformTypeSpec("bogus"),
				Coordinates: []string{"years", "missing"},
				Variables: map[string]*Variable{
					"cap": {Dims: map[string]Dim{"other": DimRows}},
				},
			},
		},
		Problems: []*ProblemDecl{
			{Name: "planning", Objective: "Minimize(sum(ghost))"},
		},
	}

	_, err := NewCatalog(testLogger(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettings)

	var settingsErr *SettingsError
	require.True(t, errors.As(err, &settingsErr))

	joined := settingsErr.Error()
	assert.Contains(t, joined, `duplicate item "2025"`)
	assert.Contains(t, joined, `duplicate set name "years"`)
	assert.Contains(t, joined, `set "empty" has no items`)
	assert.Contains(t, joined, `invalid type "bogus"`)
	assert.Contains(t, joined, `unknown set "missing"`)
	assert.Contains(t, joined, `outside its table coordinates`)
	assert.Contains(t, joined, `unknown variable "ghost"`)
}

func TestNewCatalog_ConstantValueChecks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "missing generator",
			mutate:  func(s string) string { return strings.Replace(s, "value: sum_vector\n", "", 1) },
			wantErr: "declares no value generator",
		},
		{
			name:    "unknown generator",
			mutate:  func(s string) string { return strings.Replace(s, "value: sum_vector", "value: bogus", 1) },
			wantErr: `unknown generator "bogus"`,
		},
		{
			name: "value on non-constant table",
			mutate: func(s string) string {
				return strings.Replace(s, "blank_fill: 0", "value: identity", 1)
			},
			wantErr: "is not constant",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parsed, err := LoadDefinition(strings.NewReader(test.mutate(testDefinition)))
			require.NoError(t, err)

			_, err = NewCatalog(testLogger(), parsed)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestNewCatalog_ExpressionChecks(t *testing.T) {
	def := strings.Replace(testDefinition, `objective: "Minimize(sum(tot))"`, `objective: "Minimize(sum(tot)"`, 1)

	parsed, err := LoadDefinition(strings.NewReader(def))
	require.NoError(t, err)

	_, err = NewCatalog(testLogger(), parsed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `problem "operation" objective`)
}

func TestLoadDefinition_UnknownField(t *testing.T) {
	_, err := LoadDefinition(strings.NewReader("nonsense: true\n"))
	assert.Error(t, err)
}
