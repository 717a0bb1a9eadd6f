package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symopt/symopt/pkg/core"
	"github.com/symopt/symopt/pkg/observability"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	runIndependent bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Solve every scenario of the model",
	Long: `Binds the model's exogenous data, generates the numerical problems
and solves them scenario by scenario. When sub-problems exchange data through
shared tables the run iterates them to a fixed point; otherwise each
sub-problem is solved once.`,
	RunE: runModel,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runIndependent, "independent", false, "solve each sub-problem once, skipping fixed-point iteration")
}

func runModel(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := core.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		return err
	}

	if config.MetricsAddr != "" {
		observability.StartMetricsServer(logger, config.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := core.New(logger, config)
	if err != nil {
		return err
	}

	defer model.Close()

	if err := model.Setup(ctx); err != nil {
		return err
	}

	result, err := solve(ctx, model)
	if err != nil {
		return err
	}

	for _, sr := range result.Scenarios {
		logger.WithFields(logrus.Fields{
			"scenario":   sr.Scenario.Info,
			"state":      sr.State.String(),
			"iterations": sr.Iterations,
			"objectives": sr.Objectives,
		}).Info("Scenario finished")
	}

	if result.ResultsPath != "" {
		logger.WithField("results", result.ResultsPath).Info("Results exported")
	}

	return nil
}

func solve(ctx context.Context, model *core.Model) (*core.RunResult, error) {
	if runIndependent {
		return model.SolveIndependent(ctx)
	}

	return model.SolveIntegrated(ctx)
}
