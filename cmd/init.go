package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/symopt/symopt/pkg/core"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	initForce bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the blank data store for a model",
	Long: `Creates one SQLite table per non-constant data table of the model,
with a row for every coordinate combination and a null value, ready to be
filled with input data. Existing data is preserved unless --force is given.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "drop and recreate populated tables")
}

func runInit(cmd *cobra.Command, _ []string) error {
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

	model, err := core.New(logger, config)
	if err != nil {
		return err
	}

	defer model.Close()

	if err := model.InitializeBlankStore(context.Background(), initForce); err != nil {
		return err
	}

	logger.WithField("store", config.Store.Path).Info("Blank data store ready")

	return nil
}
