package problem

import (
	"errors"
	"fmt"
	"strings"
)

// Problem generation errors
var (
	// ErrOutOfSequence marks a lifecycle method called before its
	// prerequisites.
	ErrOutOfSequence = errors.New("operation out of sequence")
	// ErrMissingData marks exogenous records without a value.
	ErrMissingData = errors.New("missing input data")
	// ErrNotCoherent marks a store whose tables do not match the model
	// declarations.
	ErrNotCoherent = errors.New("store does not match model declarations")
	// ErrAlreadyGenerated guards against silently rebuilding numerical
	// problems.
	ErrAlreadyGenerated = errors.New("numerical problems already generated")
	// ErrNoRole marks an expression referencing a variable that plays no
	// part in the sub-problem.
	ErrNoRole = errors.New("variable has no role in sub-problem")
	// ErrNotConstraint marks a constraint expression that evaluates to a
	// plain value.
	ErrNotConstraint = errors.New("expression is not a constraint")
	// ErrNotObjective marks an objective expression without a direction.
	ErrNotObjective = errors.New("expression is not an objective")
)

// OperationalError reports a lifecycle method invoked out of sequence, with
// the prerequisite that is still missing.
type OperationalError struct {
	Op      string
	Require string
}

func (e *OperationalError) Error() string {
	return fmt.Sprintf("cannot %s before %s", e.Op, e.Require)
}

func (e *OperationalError) Unwrap() error {
	return ErrOutOfSequence
}

// maxMissingShown caps the records listed in a missing data message.
const maxMissingShown = 5

// MissingDataError reports exogenous records with no value, listing the
// first few coordinate combinations.
type MissingDataError struct {
	Table   string
	Records []string
}

func (e *MissingDataError) Error() string {
	shown := e.Records
	if len(shown) > maxMissingShown {
		shown = shown[:maxMissingShown]
	}

	return fmt.Sprintf(
		"%d records of table %q have no value (%s)",
		len(e.Records), e.Table, strings.Join(shown, "; "),
	)
}

func (e *MissingDataError) Unwrap() error {
	return ErrMissingData
}

// CoherenceError aggregates every mismatch between the store and the model
// declarations.
type CoherenceError struct {
	Mismatches []string
}

func (e *CoherenceError) Error() string {
	return fmt.Sprintf(
		"store does not match model declarations (%d mismatches):\n  - %s",
		len(e.Mismatches), strings.Join(e.Mismatches, "\n  - "),
	)
}

func (e *CoherenceError) Unwrap() error {
	return ErrNotCoherent
}
