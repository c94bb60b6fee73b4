package coordinator

import (
	"context"
	"time"

	"dietagent"
)

// State is a step of the generate/validate/correct loop.
type State string

const (
	StateInit       State = "init"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateCorrecting State = "correcting"
	StateAccepted   State = "accepted"
	StateFatal      State = "fatal"
)

// IsTerminal reports whether the loop stops in s.
func (s State) IsTerminal() bool {
	return s == StateAccepted || s == StateFatal
}

func (s State) String() string {
	return string(s)
}

// LoopState is owned by a single GenerateValidatedPlan call and discarded when it returns.
type LoopState struct {
	RunID   string
	Targets dietagent.NutritionTargets
	State   State

	// CorrectionCount is the number of generation attempts made so far,
	// including the first one.
	CorrectionCount int
	CurrentPlan     *dietagent.CandidatePlan
	LastRejection   *dietagent.Rejection

	// directive is the rejection handed to the generator on the current attempt.
	directive       *dietagent.Rejection
	attemptStarted  time.Time
	attemptDuration time.Duration
	fatal           *FatalError
}

func newLoopState(runID string, targets dietagent.NutritionTargets) *LoopState {
	return &LoopState{
		RunID:   runID,
		Targets: targets,
		State:   StateInit,
	}
}

type runIDKey struct{}

// ContextWithRunID makes GenerateValidatedPlan use id instead of a fresh UUID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID set by ContextWithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
