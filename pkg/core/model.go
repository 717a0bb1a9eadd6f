package core

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/symopt/symopt/pkg/index"
	"github.com/symopt/symopt/pkg/observability"
	"github.com/symopt/symopt/pkg/problem"
	"github.com/symopt/symopt/pkg/solver"
	"github.com/symopt/symopt/pkg/store"
)

// Model bundles a validated catalog, its store and a solver backend into a
// runnable whole.
type Model struct {
	log logrus.FieldLogger
	cfg *Config

	cat     *index.Catalog
	store   store.Store
	ws      *problem.Workspace
	backend solver.Solver

	ready bool
}

// New loads the model definition, opens the store and wires the solver
// backend. The configuration must have been validated.
func New(log logrus.FieldLogger, cfg *Config) (*Model, error) {
	def, err := index.LoadDefinitionFile(cfg.Definition)
	if err != nil {
		return nil, err
	}

	cat, err := index.NewCatalog(log, def)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(log, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	return &Model{
		log:   log.WithField("component", "core"),
		cfg:   cfg,
		cat:   cat,
		store: st,
		ws:    problem.NewWorkspace(log, cat, st),
		backend: solver.NewSimplex(
			log,
			solver.WithTolerance(cfg.Solver.Tolerance),
			solver.WithVerbose(cfg.Solver.Verbose),
		),
	}, nil
}

// Catalog exposes the model declarations.
func (m *Model) Catalog() *index.Catalog {
	return m.cat
}

// Workspace exposes the problem workspace, mainly for tests and inspection
// tooling.
func (m *Model) Workspace() *problem.Workspace {
	return m.ws
}

// Store exposes the working store.
func (m *Model) Store() store.Store {
	return m.store
}

// InitializeBlankStore creates the blank data structure of every
// non-constant table, ready for the user to fill. Populated tables are
// preserved unless force is set.
func (m *Model) InitializeBlankStore(ctx context.Context, force bool) error {
	return m.store.Initialize(ctx, m.cat, force)
}

// Setup verifies store coherence, checks that the exogenous inputs are
// filled and realizes the model's variables. It must run before any solve.
func (m *Model) Setup(ctx context.Context) error {
	if err := m.ws.CheckCoherence(ctx); err != nil {
		return err
	}

	if err := m.CheckExogenousData(ctx); err != nil {
		return err
	}

	if err := m.ws.InitializeVariables(); err != nil {
		return err
	}

	for _, scenario := range m.cat.Scenarios() {
		observability.ProblemVariables.WithLabelValues(scenario.Info).Set(float64(m.ws.Space().Size()))
	}

	m.ready = true

	return nil
}

// CheckExogenousData sweeps every purely exogenous table for records whose
// value is missing or not numeric, aggregating all offending tables before
// failing. Tables whose variables all declare blank_fill are exempt: their
// nulls are substituted at binding time.
func (m *Model) CheckExogenousData(ctx context.Context) error {
	var errs []error

	for _, table := range m.cat.Tables() {
		uniform, ok := table.Type.UniformType()
		if !ok || uniform != index.TypeExogenous {
			continue
		}

		if blankFilled(table) {
			continue
		}

		records, err := m.store.FindNulls(ctx, table.Name)
		if err != nil {
			return err
		}

		if len(records) > 0 {
			errs = append(errs, &problem.MissingDataError{Table: table.Name, Records: records})
		}
	}

	return errors.Join(errs...)
}

func blankFilled(table *index.DataTable) bool {
	for _, v := range table.Variables {
		if v.BlankFill == nil {
			return false
		}
	}

	return true
}

// reopen swaps the store handle after the working file was replaced on
// disk; the old handle must already be closed. The workspace is rebuilt
// since its realizations may reference stale data; callers must run Setup
// again before solving.
func (m *Model) reopen() error {
	st, err := store.Open(m.log, m.cfg.Store.Path)
	if err != nil {
		return err
	}

	m.store = st
	m.ws = problem.NewWorkspace(m.log, m.cat, st)
	m.ready = false

	return nil
}

// Close releases the store handle.
func (m *Model) Close() error {
	return m.store.Close()
}
