package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symopt/symopt/pkg/core"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the model definition and its data store",
	Long: `Loads and cross-checks the model definition, then verifies that the
data store's structure matches it table by table.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
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

	if err := model.Setup(context.Background()); err != nil {
		return err
	}

	cat := model.Catalog()

	logger.WithFields(logrus.Fields{
		"sets":      len(cat.Sets()),
		"tables":    len(cat.Tables()),
		"variables": len(cat.Variables()),
		"problems":  len(cat.Problems()),
		"scenarios": len(cat.Scenarios()),
	}).Info("Model definition and data store are coherent")

	return nil
}
