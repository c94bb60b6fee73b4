package coordinator

import (
	"errors"
	"fmt"

	"dietagent"
)

var (
	// ErrGenerator means the plan generator failed or returned a malformed plan.
	// It is never retried by the loop.
	ErrGenerator = errors.New("plan generator failed")

	// ErrValidationExhausted means every attempt was rejected by reconciliation.
	ErrValidationExhausted = errors.New("plan did not reconcile within the correction budget")

	// ErrCancelled means the caller's context ended before the run finished.
	ErrCancelled = errors.New("plan generation cancelled")
)

// FatalError is returned by GenerateValidatedPlan for every non-accepted run.
// It matches one of ErrGenerator, ErrValidationExhausted, ErrCancelled or
// dietagent.ErrInvalidTargets with errors.Is, and also unwraps to its cause.
type FatalError struct {
	RunID    string
	Attempts int
	Reason   error

	// LastRejection is set when the run ended on a reconciliation failure.
	LastRejection *dietagent.Rejection

	Err error
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("run %s failed after %d attempt(s): %v", e.RunID, e.Attempts, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FatalError) Unwrap() []error {
	errs := []error{e.Reason}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// reasonLabel is the metric/span label for a fatal reason.
func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrGenerator):
		return "generator_error"
	case errors.Is(reason, ErrValidationExhausted):
		return "validation_exhausted"
	case errors.Is(reason, ErrCancelled):
		return "cancelled"
	case errors.Is(reason, dietagent.ErrInvalidTargets):
		return "invalid_targets"
	default:
		return "unknown"
	}
}
