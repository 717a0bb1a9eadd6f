package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// SolvesTotal counts solved numerical problems by outcome
	SolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symopt_solves_total",
			Help: "Total number of numerical problems solved",
		},
		[]string{"problem", "status"}, // status: optimal, infeasible, unbounded, error
	)

	// SolveDuration measures backend solve duration in seconds
	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "symopt_solve_duration_seconds",
			Help:    "Backend solve duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"problem"},
	)

	// CouplingIterations records the iterations each scenario needed to
	// converge
	CouplingIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "symopt_coupling_iterations",
			Help:    "Fixed-point iterations per scenario",
			Buckets: prometheus.LinearBuckets(1, 1, 20),
		},
		[]string{"scenario"},
	)

	// ConvergenceResidual tracks the latest maximum relative table
	// difference per scenario
	ConvergenceResidual = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "symopt_convergence_residual",
			Help: "Maximum relative difference of coupling tables between iterations",
		},
		[]string{"scenario", "table"},
	)

	// ScenariosTotal counts finished scenarios by terminal state
	ScenariosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symopt_scenarios_total",
			Help: "Total number of scenarios run, by terminal state",
		},
		[]string{"state"},
	)

	// ProblemVariables tracks the decision space size per scenario
	ProblemVariables = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "symopt_problem_variables",
			Help: "Number of decision variables in the model's space",
		},
		[]string{"scenario"},
	)

	// StoreWrites counts value writebacks to the store
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symopt_store_writes_total",
			Help: "Total number of table writebacks",
		},
		[]string{"table"},
	)
)
