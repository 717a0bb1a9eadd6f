package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/expr"
	"github.com/symopt/symopt/pkg/ops"
)

// Scenario is one independent instance of the model, identified by a
// coordinate of every problem-splitting set.
type Scenario struct {
	// Index orders scenarios by declaration order of the split set items.
	Index int
	// Coordinates maps split set name to the item selected for this
	// scenario. Empty when no set splits the problem.
	Coordinates map[string]string
	// Info is a human readable label used in logs and result exports.
	Info string
}

// Catalog is the validated index of sets, data tables, variables and
// sub-problem declarations. It is immutable after construction.
type Catalog struct {
	log logrus.FieldLogger

	sets     map[string]*Set
	setOrder []string

	tables     map[string]*DataTable
	tableOrder []string

	variables map[string]*Variable
	varOrder  []string

	problems     map[string]*ProblemDecl
	problemOrder []string

	splitSets []string
	scenarios []Scenario
}

// NewCatalog validates the raw definition and builds the catalog. Every
// structural violation is collected before returning, so a failing result
// reports all of them at once as a SettingsError.
func NewCatalog(log logrus.FieldLogger, def *Definition) (*Catalog, error) {
	c := &Catalog{
		log:       log.WithField("component", "catalog"),
		sets:      make(map[string]*Set),
		tables:    make(map[string]*DataTable),
		variables: make(map[string]*Variable),
		problems:  make(map[string]*ProblemDecl),
	}

	var violations []string

	violations = append(violations, c.indexSets(def.Sets)...)
	violations = append(violations, c.resolveCopies()...)
	violations = append(violations, c.indexProblems(def.Problems)...)
	violations = append(violations, c.indexTables(def.Tables)...)
	violations = append(violations, c.checkExpressions()...)

	if len(violations) > 0 {
		return nil, &SettingsError{Violations: violations}
	}

	c.buildScenarios()

	c.log.WithFields(logrus.Fields{
		"sets":      len(c.setOrder),
		"tables":    len(c.tableOrder),
		"variables": len(c.varOrder),
		"problems":  len(c.problemOrder),
		"scenarios": len(c.scenarios),
	}).Info("Catalog built")

	return c, nil
}

func (c *Catalog) indexSets(sets []*Set) []string {
	var violations []string

	if len(sets) == 0 {
		violations = append(violations, "no sets declared")
	}

	for _, set := range sets {
		if set.Name == "" {
			violations = append(violations, "set with empty name")

			continue
		}

		key := strings.ToLower(set.Name)
		if _, dup := c.sets[key]; dup {
			violations = append(violations, fmt.Sprintf("duplicate set name %q", set.Name))

			continue
		}

		c.sets[key] = set
		c.setOrder = append(c.setOrder, set.Name)

		if set.SplitProblem {
			c.splitSets = append(c.splitSets, set.Name)
		}

		seen := make(map[string]bool, len(set.Items))

		for _, item := range set.Items {
			if item.Name == "" {
				violations = append(violations, fmt.Sprintf("set %q has an item with empty name", set.Name))

				continue
			}

			if seen[item.Name] {
				violations = append(violations, fmt.Sprintf("set %q has duplicate item %q", set.Name, item.Name))
			}

			seen[item.Name] = true
		}
	}

	return violations
}

// resolveCopies materializes copy_from item inheritance. The source set must
// exist, declare its own items, and the copying set must not declare any.
func (c *Catalog) resolveCopies() []string {
	var violations []string

	for _, name := range c.setOrder {
		set := c.sets[strings.ToLower(name)]
		if set.CopyFrom == "" {
			continue
		}

		src, ok := c.sets[strings.ToLower(set.CopyFrom)]

		switch {
		case !ok:
			violations = append(violations, fmt.Sprintf("set %q copies from unknown set %q", set.Name, set.CopyFrom))
		case src.CopyFrom != "":
			violations = append(violations, fmt.Sprintf("set %q copies from %q which itself copies", set.Name, set.CopyFrom))
		case len(set.Items) > 0:
			violations = append(violations, fmt.Sprintf("set %q declares both items and copy_from", set.Name))
		default:
			set.Items = append([]SetItem(nil), src.Items...)
		}
	}

	for _, name := range c.setOrder {
		if set := c.sets[strings.ToLower(name)]; len(set.Items) == 0 {
			violations = append(violations, fmt.Sprintf("set %q has no items", set.Name))
		}
	}

	return violations
}

func (c *Catalog) indexProblems(problems []*ProblemDecl) []string {
	var violations []string

	if len(problems) == 0 {
		violations = append(violations, "no problems declared")
	}

	for _, p := range problems {
		if p.Name == "" {
			violations = append(violations, "problem with empty name")

			continue
		}

		key := strings.ToLower(p.Name)
		if _, dup := c.problems[key]; dup {
			violations = append(violations, fmt.Sprintf("duplicate problem name %q", p.Name))

			continue
		}

		c.problems[key] = p
		c.problemOrder = append(c.problemOrder, p.Name)

		if strings.TrimSpace(p.Objective) == "" {
			violations = append(violations, fmt.Sprintf("problem %q has no objective", p.Name))
		}
	}

	return violations
}

func (c *Catalog) indexTables(tables []*DataTable) []string {
	var violations []string

	if len(tables) == 0 {
		violations = append(violations, "no data tables declared")
	}

	for _, table := range tables {
		if table.Name == "" {
			violations = append(violations, "data table with empty name")

			continue
		}

		key := strings.ToLower(table.Name)
		if _, dup := c.tables[key]; dup {
			violations = append(violations, fmt.Sprintf("duplicate data table name %q", table.Name))

			continue
		}

		c.tables[key] = table
		c.tableOrder = append(c.tableOrder, table.Name)

		violations = append(violations, c.checkTableType(table)...)
		violations = append(violations, c.checkTableCoordinates(table)...)
		violations = append(violations, c.indexTableVariables(table)...)
	}

	return violations
}

func (c *Catalog) checkTableType(table *DataTable) []string {
	var violations []string

	table.Type.each(func(sub string, vt VarType) {
		if !vt.valid() {
			violations = append(violations, fmt.Sprintf("data table %q has invalid type %q", table.Name, vt))
		}

		if sub != "" {
			if _, ok := c.problems[strings.ToLower(sub)]; !ok {
				violations = append(violations, fmt.Sprintf("data table %q assigns a type for unknown problem %q", table.Name, sub))
			}
		}
	})

	return violations
}

func (c *Catalog) checkTableCoordinates(table *DataTable) []string {
	var violations []string

	if len(table.Coordinates) == 0 {
		violations = append(violations, fmt.Sprintf("data table %q has no coordinates", table.Name))
	}

	seen := make(map[string]bool, len(table.Coordinates))

	for _, set := range table.Coordinates {
		key := strings.ToLower(set)

		if _, ok := c.sets[key]; !ok {
			violations = append(violations, fmt.Sprintf("data table %q references unknown set %q", table.Name, set))
		}

		if seen[key] {
			violations = append(violations, fmt.Sprintf("data table %q repeats coordinate %q", table.Name, set))
		}

		seen[key] = true
	}

	return violations
}

func (c *Catalog) indexTableVariables(table *DataTable) []string {
	var violations []string

	if len(table.Variables) == 0 {
		violations = append(violations, fmt.Sprintf("data table %q has no variables", table.Name))
	}

	names := make([]string, 0, len(table.Variables))
	for name := range table.Variables {
		names = append(names, name)
	}

	sort.Strings(names)
	table.variableOrder = names

	for _, name := range names {
		v := table.Variables[name]
		if v == nil {
			v = &Variable{}
			table.Variables[name] = v
		}

		v.Name = name
		v.Table = table.Name
		v.Type = table.Type
		v.coordinates = table.Coordinates

		key := strings.ToLower(name)
		if _, dup := c.variables[key]; dup {
			violations = append(violations, fmt.Sprintf("duplicate variable name %q", name))

			continue
		}

		c.variables[key] = v
		c.varOrder = append(c.varOrder, name)

		violations = append(violations, c.checkVariable(table, v)...)
	}

	return violations
}

func (c *Catalog) checkVariable(table *DataTable, v *Variable) []string {
	var violations []string

	inTable := make(map[string]bool, len(table.Coordinates))
	for _, set := range table.Coordinates {
		inTable[strings.ToLower(set)] = true
	}

	rows, cols := 0, 0

	for set, dim := range v.Dims {
		if !inTable[strings.ToLower(set)] {
			violations = append(violations, fmt.Sprintf("variable %q assigns a role to set %q outside its table coordinates", v.Name, set))

			continue
		}

		if !dim.valid() {
			violations = append(violations, fmt.Sprintf("variable %q has invalid role %q for set %q", v.Name, dim, set))

			continue
		}

		if c.IsSplitSet(set) && dim != DimInter {
			violations = append(violations, fmt.Sprintf("variable %q assigns role %q to problem-splitting set %q", v.Name, dim, set))
		}

		switch dim {
		case DimRows:
			rows++
		case DimCols:
			cols++
		}
	}

	if rows > 1 {
		violations = append(violations, fmt.Sprintf("variable %q assigns rows to more than one set", v.Name))
	}

	if cols > 1 {
		violations = append(violations, fmt.Sprintf("variable %q assigns cols to more than one set", v.Name))
	}

	violations = append(violations, c.checkVariableFilters(v)...)
	violations = append(violations, c.checkVariableValue(table, v)...)

	return violations
}

func (c *Catalog) checkVariableFilters(v *Variable) []string {
	var violations []string

	for setName, filters := range v.Filters {
		set, ok := c.sets[strings.ToLower(setName)]
		if !ok {
			violations = append(violations, fmt.Sprintf("variable %q filters unknown set %q", v.Name, setName))

			continue
		}

		keys := set.categoryKeys()

		for key := range filters {
			if !keys[key] {
				violations = append(violations, fmt.Sprintf("variable %q filters set %q on unknown category %q", v.Name, setName, key))
			}
		}
	}

	return violations
}

func (c *Catalog) checkVariableValue(table *DataTable, v *Variable) []string {
	var violations []string

	uniform, isUniform := table.Type.UniformType()
	isConstant := isUniform && uniform == TypeConstant

	switch {
	case isConstant && v.Value == "":
		violations = append(violations, fmt.Sprintf("constant variable %q declares no value generator", v.Name))
	case isConstant:
		if _, err := ops.LookupGenerator(v.Value); err != nil {
			violations = append(violations, fmt.Sprintf("constant variable %q uses unknown generator %q", v.Name, v.Value))
		}
	case v.Value != "":
		violations = append(violations, fmt.Sprintf("variable %q declares a value generator but its table is not constant", v.Name))
	}

	return violations
}

// checkExpressions parses every declared expression and resolves its
// variable tokens against the catalog.
func (c *Catalog) checkExpressions() []string {
	var violations []string

	for _, name := range c.problemOrder {
		p := c.problems[strings.ToLower(name)]

		for i, text := range p.Expressions() {
			label := "objective"
			if i > 0 {
				label = fmt.Sprintf("constraint %d", i)
			}

			if strings.TrimSpace(text) == "" {
				continue
			}

			if _, err := expr.Parse(text); err != nil {
				violations = append(violations, fmt.Sprintf("problem %q %s: %v", p.Name, label, err))

				continue
			}

			for _, token := range expr.VariableTokens(text) {
				if _, ok := c.variables[strings.ToLower(token)]; !ok {
					violations = append(violations, fmt.Sprintf("problem %q %s references unknown variable %q", p.Name, label, token))
				}
			}
		}
	}

	return violations
}

// buildScenarios enumerates the cartesian product of the split sets' items.
// With no split set the model has a single scenario.
func (c *Catalog) buildScenarios() {
	if len(c.splitSets) == 0 {
		c.scenarios = []Scenario{{Index: 0, Coordinates: map[string]string{}, Info: "all"}}

		return
	}

	axes := make(map[string][]string, len(c.splitSets))
	for _, name := range c.splitSets {
		axes[name] = c.sets[strings.ToLower(name)].ItemNames()
	}

	frame, err := coords.Product(axes, c.splitSets)
	if err != nil {
		// Split sets were validated non-empty already.
		c.scenarios = nil

		return
	}

	c.scenarios = make([]Scenario, frame.Len())

	for i := 0; i < frame.Len(); i++ {
		row := frame.RowMap(i)

		parts := make([]string, len(c.splitSets))
		for j, name := range c.splitSets {
			parts[j] = fmt.Sprintf("%s: %s", name, row[name])
		}

		c.scenarios[i] = Scenario{
			Index:       i,
			Coordinates: row,
			Info:        strings.Join(parts, ", "),
		}
	}
}

// Sets returns the declared sets in declaration order.
func (c *Catalog) Sets() []*Set {
	out := make([]*Set, len(c.setOrder))
	for i, name := range c.setOrder {
		out[i] = c.sets[strings.ToLower(name)]
	}

	return out
}

// SetByName resolves a set case-insensitively.
func (c *Catalog) SetByName(name string) (*Set, error) {
	set, ok := c.sets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSet, name)
	}

	return set, nil
}

// Tables returns the declared data tables in declaration order.
func (c *Catalog) Tables() []*DataTable {
	out := make([]*DataTable, len(c.tableOrder))
	for i, name := range c.tableOrder {
		out[i] = c.tables[strings.ToLower(name)]
	}

	return out
}

// TableByName resolves a data table case-insensitively.
func (c *Catalog) TableByName(name string) (*DataTable, error) {
	table, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	return table, nil
}

// Variables returns every variable across all tables, ordered by table then
// variable name.
func (c *Catalog) Variables() []*Variable {
	out := make([]*Variable, 0, len(c.varOrder))

	for _, tname := range c.tableOrder {
		table := c.tables[strings.ToLower(tname)]
		for _, vname := range table.variableOrder {
			out = append(out, table.Variables[vname])
		}
	}

	return out
}

// VariableByName resolves a variable case-insensitively.
func (c *Catalog) VariableByName(name string) (*Variable, error) {
	v, ok := c.variables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}

	return v, nil
}

// Problems returns the sub-problem declarations in declaration order.
func (c *Catalog) Problems() []*ProblemDecl {
	out := make([]*ProblemDecl, len(c.problemOrder))
	for i, name := range c.problemOrder {
		out[i] = c.problems[strings.ToLower(name)]
	}

	return out
}

// ProblemByName resolves a sub-problem declaration case-insensitively.
func (c *Catalog) ProblemByName(name string) (*ProblemDecl, bool) {
	p, ok := c.problems[strings.ToLower(name)]

	return p, ok
}

// SplitSets lists the problem-splitting sets in declaration order.
func (c *Catalog) SplitSets() []string {
	return c.splitSets
}

// IsSplitSet reports whether the named set splits the problem.
func (c *Catalog) IsSplitSet(name string) bool {
	set, ok := c.sets[strings.ToLower(name)]

	return ok && set.SplitProblem
}

// Scenarios returns the model's scenario table in index order.
func (c *Catalog) Scenarios() []Scenario {
	return c.scenarios
}

// ItemsFor returns the filtered item labels of one of the variable's
// coordinate sets.
func (c *Catalog) ItemsFor(v *Variable, setName string) ([]string, error) {
	set, err := c.SetByName(setName)
	if err != nil {
		return nil, err
	}

	return set.FilteredItems(v.SetFilters(setName)), nil
}

// VariableFrame builds the variable's full coordinate frame: the cartesian
// product of its filtered coordinate sets in table order.
func (c *Catalog) VariableFrame(v *Variable) (*coords.Frame, error) {
	axes := make(map[string][]string, len(v.coordinates))

	for _, setName := range v.coordinates {
		items, err := c.ItemsFor(v, setName)
		if err != nil {
			return nil, err
		}

		axes[setName] = items
	}

	return coords.Product(axes, v.coordinates)
}

// TableFrame builds the table's unfiltered coordinate frame.
func (c *Catalog) TableFrame(t *DataTable) (*coords.Frame, error) {
	axes := make(map[string][]string, len(t.Coordinates))

	for _, setName := range t.Coordinates {
		set, err := c.SetByName(setName)
		if err != nil {
			return nil, err
		}

		axes[setName] = set.ItemNames()
	}

	return coords.Product(axes, t.Coordinates)
}

// VariableShape resolves the variable's per-problem matrix shape from its
// rows and cols sets. Missing roles yield size one.
func (c *Catalog) VariableShape(v *Variable) (ops.Shape, error) {
	shape := ops.Shape{Rows: 1, Cols: 1}

	for _, setName := range v.SetsByRole(DimRows, c.IsSplitSet) {
		items, err := c.ItemsFor(v, setName)
		if err != nil {
			return shape, err
		}

		shape.Rows = len(items)
	}

	for _, setName := range v.SetsByRole(DimCols, c.IsSplitSet) {
		items, err := c.ItemsFor(v, setName)
		if err != nil {
			return shape, err
		}

		shape.Cols = len(items)
	}

	return shape, nil
}
