// Package problem turns the symbolic model declarations into numerical
// problems: it realizes variables over their coordinate spaces, binds store
// data into constant matrices, evaluates the declared expressions and writes
// solved decision values back to the store.
package problem

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/affine"
	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/solver"
	"github.com/symopt/symopt/pkg/store"
)

// Instance is one numerical problem: a sub-problem realized for a scenario.
type Instance struct {
	SubProblem  string
	Scenario    index.Scenario
	Objective   *affine.Objective
	Constraints []*affine.Constraint
	// Status tracks the last solve outcome; StatusUnset until solved.
	Status solver.Status
}

// Workspace drives the model lifecycle for a catalog and a store. Methods
// must be called in order: CheckCoherence, InitializeVariables, then per
// scenario BindExogenous and Generate. Out-of-sequence calls return an
// OperationalError.
type Workspace struct {
	log   logrus.FieldLogger
	cat   *index.Catalog
	store store.Store
	space *affine.Space

	// realizations, by scenario index then variable name.
	realizations []map[string]*Realization
	instances    map[int][]*Instance
	bound        map[int]bool

	checked     bool
	initialized bool
}

// NewWorkspace builds an idle workspace.
func NewWorkspace(log logrus.FieldLogger, cat *index.Catalog, st store.Store) *Workspace {
	return &Workspace{
		log:       log.WithField("component", "problem"),
		cat:       cat,
		store:     st,
		instances: make(map[int][]*Instance),
		bound:     make(map[int]bool),
	}
}

// Space exposes the decision space shared by all instances. Nil before
// InitializeVariables.
func (w *Workspace) Space() *affine.Space {
	return w.space
}

// Catalog exposes the underlying model declarations.
func (w *Workspace) Catalog() *index.Catalog {
	return w.cat
}

// Realization returns a variable's realization within a scenario.
func (w *Workspace) Realization(scenario index.Scenario, variable string) (*Realization, error) {
	if !w.initialized {
		return nil, &OperationalError{Op: "access realizations", Require: "initializing variables"}
	}

	v, err := w.cat.VariableByName(variable)
	if err != nil {
		return nil, err
	}

	real, ok := w.realizations[scenario.Index][v.Name]
	if !ok {
		return nil, fmt.Errorf("variable %q has no realization in scenario %d", variable, scenario.Index)
	}

	return real, nil
}

// InitializeVariables allocates the decision space and realizes every
// variable for every scenario.
func (w *Workspace) InitializeVariables() error {
	if !w.checked {
		return &OperationalError{Op: "initialize variables", Require: "checking coherence"}
	}

	w.space = affine.NewSpace()
	w.realizations = make([]map[string]*Realization, len(w.cat.Scenarios()))
	w.instances = make(map[int][]*Instance)
	w.bound = make(map[int]bool)

	for _, scenario := range w.cat.Scenarios() {
		byVariable := make(map[string]*Realization)

		for _, v := range w.cat.Variables() {
			real, err := w.buildRealization(v, scenario)
			if err != nil {
				return fmt.Errorf("realizing variable %q: %w", v.Name, err)
			}

			byVariable[v.Name] = real
		}

		w.realizations[scenario.Index] = byVariable
	}

	w.initialized = true

	w.log.WithFields(logrus.Fields{
		"scenarios": len(w.cat.Scenarios()),
		"variables": len(w.cat.Variables()),
		"space":     w.space.Size(),
	}).Info("Initialized variables")

	return nil
}

// Instances returns every generated instance, scenarios outermost, then
// sub-problems in declaration order.
func (w *Workspace) Instances() []*Instance {
	var out []*Instance

	for _, scenario := range w.cat.Scenarios() {
		out = append(out, w.instances[scenario.Index]...)
	}

	return out
}

// InstancesFor returns the scenario's instances in sub-problem declaration
// order.
func (w *Workspace) InstancesFor(scenario index.Scenario) []*Instance {
	return w.instances[scenario.Index]
}

// EndogenousTables lists the tables holding decision results for one
// sub-problem, in declaration order.
func (w *Workspace) EndogenousTables(sub string) []string {
	var out []string

	for _, table := range w.cat.Tables() {
		if vt, ok := table.Type.ForSubProblem(sub); ok && vt == index.TypeEndogenous {
			out = append(out, table.Name)
		}
	}

	return out
}

// AllEndogenousTables lists every table that is endogenous in at least one
// sub-problem, in declaration order.
func (w *Workspace) AllEndogenousTables() []string {
	var out []string

	for _, table := range w.cat.Tables() {
		if table.Type.AnyEndogenous() {
			out = append(out, table.Name)
		}
	}

	return out
}
