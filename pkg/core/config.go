// Package core orchestrates full model runs: setup, the independent and
// integrated solve loops, store backups and result exports.
package core

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

var (
	// ErrDefinitionRequired is returned when no model definition path is provided
	ErrDefinitionRequired = errors.New("model definition path is required")
	// ErrStorePathRequired is returned when no store path is provided
	ErrStorePathRequired = errors.New("store path is required")
	// ErrBadTolerance is returned for a non-positive convergence tolerance
	ErrBadTolerance = errors.New("coupling tolerance must be positive")
	// ErrBadIterations is returned for a non-positive iteration limit
	ErrBadIterations = errors.New("coupling max iterations must be positive")
)

// Config represents the complete run configuration
type Config struct {
	// Logging level
	Logging string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`

	// MetricsAddr exposes Prometheus metrics when set
	MetricsAddr string `yaml:"metricsAddr"`

	// Definition is the path of the YAML model declaration
	Definition string `yaml:"definition"`

	// Store configuration
	Store StoreConfig `yaml:"store"`

	// Solver backend configuration
	Solver SolverConfig `yaml:"solver"`

	// Coupling controls the integrated fixed-point loop
	Coupling CouplingConfig `yaml:"coupling"`
}

// StoreConfig locates the working database and the exported results
type StoreConfig struct {
	Path string `yaml:"path"`
	// Results is where the integrated run exports its final state before
	// the working store is restored. Defaults to Path + ".results.db".
	Results string `yaml:"results"`
}

// SolverConfig configures the linear programming backend
type SolverConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Verbose   bool    `yaml:"verbose"`
}

// CouplingConfig bounds the integrated solve loop
type CouplingConfig struct {
	Tolerance     float64 `yaml:"tolerance" default:"0.01"`
	MaxIterations int     `yaml:"maxIterations" default:"20"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Definition == "" {
		return ErrDefinitionRequired
	}

	if c.Store.Path == "" {
		return ErrStorePathRequired
	}

	if c.Coupling.Tolerance <= 0 {
		return fmt.Errorf("%w: %v", ErrBadTolerance, c.Coupling.Tolerance)
	}

	if c.Coupling.MaxIterations <= 0 {
		return fmt.Errorf("%w: %d", ErrBadIterations, c.Coupling.MaxIterations)
	}

	return nil
}

// ResultsPath resolves the results export location.
func (c *Config) ResultsPath() string {
	if c.Store.Results != "" {
		return c.Store.Results
	}

	return c.Store.Path + ".results.db"
}

// LoadConfig loads a run configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
