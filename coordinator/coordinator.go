package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dietagent"
	"dietagent/reconcile"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxCorrections is the number of corrective attempts after the first
// candidate, giving at most three generator calls per run. LoopState.CorrectionCount
// includes the first attempt, so a rejection is corrected while it is <= the bound.
const DefaultMaxCorrections = 2

// Coordinator drives a PlanGenerator through generate, validate and correct
// until a candidate reconciles with the targets or the attempt budget runs out.
// A Coordinator holds no per-run state and may serve concurrent runs.
type Coordinator struct {
	generator      dietagent.PlanGenerator
	maxCorrections int
	logger         dietagent.CoordinationLogger
	tracer         trace.Tracer
	metrics        *metrics
	newRunID       func() string
}

// NewCoordinator initializes a new coordinator. Nil providers fall back to the
// global OpenTelemetry providers; a negative maxCorrections is treated as zero.
func NewCoordinator(generator dietagent.PlanGenerator, maxCorrections int, logger dietagent.CoordinationLogger, tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) *Coordinator {
	if maxCorrections < 0 {
		maxCorrections = 0
	}
	if logger == nil {
		logger = dietagent.NewNoOpCoordinationLogger()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	return &Coordinator{
		generator:      generator,
		maxCorrections: maxCorrections,
		logger:         logger,
		tracer:         tracerProvider.Tracer(dietagent.TracerNameCoordinator),
		metrics:        newMetrics(meterProvider.Meter(dietagent.MeterName)),
		newRunID:       uuid.NewString,
	}
}

// GenerateValidatedPlan returns an accepted plan, or a *FatalError describing
// why none was reached. Nothing is persisted here; callers commit the plan
// only after a nil error.
func (c *Coordinator) GenerateValidatedPlan(ctx context.Context, targets dietagent.NutritionTargets) (dietagent.CandidatePlan, error) {
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = c.newRunID()
	}
	st := newLoopState(runID, targets)

	ctx, span := c.tracer.Start(ctx, "Coordinator.GenerateValidatedPlan", trace.WithAttributes(
		attribute.String("run.id", st.RunID),
		attribute.Int("targets.calories", targets.Calories),
		attribute.Float64("targets.protein", targets.Protein),
		attribute.Float64("targets.carbs", targets.Carbs),
		attribute.Float64("targets.fat", targets.Fat),
		attribute.Int("targets.meals_per_day", targets.MealsPerDay),
		attribute.Int("max_corrections", c.maxCorrections),
	))
	defer span.End()

	slog.Info("COORDINATOR: Starting run",
		"run_id", st.RunID,
		"calories", targets.Calories,
		"protein", targets.Protein,
		"carbs", targets.Carbs,
		"fat", targets.Fat,
		"meals_per_day", targets.MealsPerDay,
		"max_corrections", c.maxCorrections,
	)

	for !st.State.IsTerminal() {
		switch st.State {
		case StateInit:
			c.initialize(st)
		case StateGenerating:
			c.generate(ctx, st)
		case StateValidating:
			c.validate(ctx, st)
		case StateCorrecting:
			slog.Info("COORDINATOR: Requesting corrected plan",
				"run_id", st.RunID,
				"attempt", st.CorrectionCount,
				"diff_calories", st.LastRejection.Diffs.Calories,
				"diff_protein", st.LastRejection.Diffs.Protein,
				"diff_carbs", st.LastRejection.Diffs.Carbs,
				"diff_fat", st.LastRejection.Diffs.Fat,
			)
			st.State = StateGenerating
		default:
			st.fail(ErrGenerator, fmt.Errorf("unknown state %q", st.State))
		}
	}

	c.metrics.attemptsInRun.Record(ctx, int64(st.CorrectionCount))

	if st.State == StateFatal {
		label := reasonLabel(st.fatal.Reason)
		c.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", label)))
		span.SetAttributes(attribute.String("outcome", label), attribute.Int("attempts", st.CorrectionCount))
		span.RecordError(st.fatal)
		span.SetStatus(codes.Error, label)
		slog.Error("COORDINATOR: Run failed", "run_id", st.RunID, "attempts", st.CorrectionCount, "reason", label, "error", st.fatal)
		return dietagent.CandidatePlan{}, st.fatal
	}

	c.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "accepted")))
	span.SetAttributes(attribute.String("outcome", "accepted"), attribute.Int("attempts", st.CorrectionCount))
	slog.Info("COORDINATOR: Plan accepted", "run_id", st.RunID, "attempts", st.CorrectionCount, "meals", len(st.CurrentPlan.Meals))
	return *st.CurrentPlan, nil
}

func (c *Coordinator) initialize(st *LoopState) {
	if err := st.Targets.Validate(); err != nil {
		st.fail(dietagent.ErrInvalidTargets, err)
		return
	}
	st.State = StateGenerating
}

func (c *Coordinator) generate(ctx context.Context, st *LoopState) {
	if err := ctx.Err(); err != nil {
		st.fail(ErrCancelled, err)
		return
	}

	st.directive = nil
	if st.CorrectionCount > 0 {
		st.directive = st.LastRejection
	}
	st.CorrectionCount++

	ctx, span := c.tracer.Start(ctx, "Coordinator.Generate", trace.WithAttributes(
		attribute.String("run.id", st.RunID),
		attribute.Int("attempt", st.CorrectionCount),
		attribute.Bool("correction", st.directive != nil),
	))
	defer span.End()

	slog.Info("COORDINATOR: Invoking plan generator",
		"run_id", st.RunID,
		"attempt", st.CorrectionCount,
		"correction", st.directive != nil,
	)

	c.metrics.attempts.Add(ctx, 1)
	st.attemptStarted = time.Now()
	plan, err := c.generator.Generate(ctx, st.Targets, st.directive)
	st.attemptDuration = time.Since(st.attemptStarted)
	c.metrics.generation.Record(ctx, st.attemptDuration.Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		// A result that arrives after cancellation is dropped.
		st.fail(ErrCancelled, ctxErr)
		c.logFailedAttempt(st, ctxErr)
		span.SetStatus(codes.Error, "cancelled")
		return
	}
	if err == nil {
		err = plan.ValidateMeals()
	}
	if err != nil {
		err = fmt.Errorf("attempt %d: %w", st.CorrectionCount, err)
		st.fail(ErrGenerator, err)
		c.logFailedAttempt(st, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generator failed")
		return
	}

	span.SetAttributes(attribute.Int("plan.meals", len(plan.Meals)))
	slog.Info("COORDINATOR: Candidate plan received",
		"run_id", st.RunID,
		"attempt", st.CorrectionCount,
		"meals", len(plan.Meals),
		"duration_ms", st.attemptDuration.Milliseconds(),
	)

	st.CurrentPlan = &plan
	st.State = StateValidating
}

func (c *Coordinator) validate(ctx context.Context, st *LoopState) {
	_, span := c.tracer.Start(ctx, "Coordinator.Validate", trace.WithAttributes(
		attribute.String("run.id", st.RunID),
		attribute.Int("attempt", st.CorrectionCount),
	))
	defer span.End()

	rej := reconcile.Plan(st.Targets, *st.CurrentPlan)
	st.LastRejection = rej

	switch {
	case rej == nil:
		st.State = StateAccepted
	case st.CorrectionCount <= c.maxCorrections:
		st.State = StateCorrecting
	default:
		st.fail(ErrValidationExhausted, nil)
		st.fatal.LastRejection = rej
	}

	if rej != nil {
		c.metrics.rejections.Add(ctx, 1)
		span.SetAttributes(
			attribute.Float64("diff.calories", rej.Diffs.Calories),
			attribute.Float64("diff.protein", rej.Diffs.Protein),
			attribute.Float64("diff.carbs", rej.Diffs.Carbs),
			attribute.Float64("diff.fat", rej.Diffs.Fat),
		)
		slog.Warn("COORDINATOR: Candidate plan rejected",
			"run_id", st.RunID,
			"attempt", st.CorrectionCount,
			"meals", len(st.CurrentPlan.Meals),
			"diff_calories", rej.Diffs.Calories,
			"diff_protein", rej.Diffs.Protein,
			"diff_carbs", rej.Diffs.Carbs,
			"diff_fat", rej.Diffs.Fat,
			"next_state", st.State,
		)
	}
	span.SetAttributes(attribute.String("next_state", st.State.String()))

	totals := st.CurrentPlan.Totals()
	c.logAttempt(dietagent.AttemptLog{
		RunID:      st.RunID,
		Attempt:    st.CorrectionCount,
		Timestamp:  st.attemptStarted,
		Duration:   st.attemptDuration,
		Correction: st.directive,
		Plan:       st.CurrentPlan,
		Totals:     &totals,
		Rejection:  rej,
		State:      st.State.String(),
	})
}

func (c *Coordinator) logFailedAttempt(st *LoopState, err error) {
	c.logAttempt(dietagent.AttemptLog{
		RunID:      st.RunID,
		Attempt:    st.CorrectionCount,
		Timestamp:  st.attemptStarted,
		Duration:   st.attemptDuration,
		Correction: st.directive,
		State:      st.State.String(),
		Error:      err.Error(),
	})
}

// logAttempt hands the attempt to the coordination logger; failures are only reported.
func (c *Coordinator) logAttempt(attempt dietagent.AttemptLog) {
	if err := c.logger.LogAttempt(attempt); err != nil {
		slog.Error("Failed to log coordination attempt", "error", err, "run_id", attempt.RunID, "attempt", attempt.Attempt)
	}
}

// fail moves the loop to StateFatal.
func (st *LoopState) fail(reason, err error) {
	st.State = StateFatal
	st.fatal = &FatalError{
		RunID:    st.RunID,
		Attempts: st.CorrectionCount,
		Reason:   reason,
		Err:      err,
	}
}
