package smc

import (
	"errors"
	"fmt"
)

// Domain errors for sampler operations.
var (
	// ErrMissingHistory indicates an operation that needs the stored history
	// was requested on a sampler running without one (or with nothing stored).
	ErrMissingHistory = errors.New("smc: history not stored")

	// ErrInvariantViolation indicates the population size drifted from N
	// outside an adaptive growth window. It is raised with panic.
	ErrInvariantViolation = errors.New("smc: population invariant violated")

	// ErrDegenerateWeights indicates every weight is zero, or a weight is NaN
	// or +Inf, so the effective sample size is undefined.
	ErrDegenerateWeights = errors.New("smc: degenerate particle weights")

	// ErrPopulationCapExceeded indicates adaptive growth stopped at the
	// population cap before reaching the ESS threshold. The generation still
	// completes.
	ErrPopulationCapExceeded = errors.New("smc: population cap reached before ESS threshold")

	// ErrNotInitialised indicates iteration before Initialise.
	ErrNotInitialised = errors.New("smc: sampler not initialised")

	// ErrInvalidConfig indicates a rejected configuration value.
	ErrInvalidConfig = errors.New("smc: invalid configuration")
)

// IterationError wraps an error with the generation and step it came from.
type IterationError struct {
	Generation int
	Op         string
	Err        error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("generation %d (%s): %v", e.Generation, e.Op, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

func invariant(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...))
}
