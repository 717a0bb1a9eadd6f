package solver

// Status is the outcome of solving one numerical problem. Outcomes are data,
// not errors: an infeasible problem is a valid result the caller inspects.
type Status int

// Problem statuses
const (
	// StatusUnset marks a problem that has not been solved yet.
	StatusUnset Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	// StatusError covers numerical failures inside the backend.
	StatusError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
