package index

import (
	"errors"
	"fmt"
	"strings"
)

// Catalog errors
var (
	// ErrSettings marks structural or declarative invalid input. Always
	// fatal, never retried.
	ErrSettings = errors.New("invalid model settings")

	ErrUnknownSet      = errors.New("unknown set")
	ErrUnknownTable    = errors.New("unknown data table")
	ErrUnknownVariable = errors.New("unknown variable")
)

// SettingsError aggregates every structural violation found while validating
// the model declarations, so one run surfaces all of them at once.
type SettingsError struct {
	Violations []string
}

// Error implements the error interface.
func (e *SettingsError) Error() string {
	return fmt.Sprintf(
		"invalid model settings (%d violations):\n  - %s",
		len(e.Violations),
		strings.Join(e.Violations, "\n  - "),
	)
}

// Unwrap lets callers match with errors.Is(err, ErrSettings).
func (e *SettingsError) Unwrap() error {
	return ErrSettings
}

// NewSettingsError builds a SettingsError from a single violation.
func NewSettingsError(format string, args ...any) *SettingsError {
	return &SettingsError{Violations: []string{fmt.Sprintf(format, args...)}}
}
