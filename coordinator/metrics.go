package coordinator

import (
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	runs          metric.Int64Counter
	attempts      metric.Int64Counter
	rejections    metric.Int64Counter
	generation    metric.Float64Histogram
	attemptsInRun metric.Int64Histogram
}

// newMetrics registers the coordinator instruments. Registration errors fall
// back to no-op instruments from the SDK, so they are ignored here.
func newMetrics(meter metric.Meter) *metrics {
	runs, _ := meter.Int64Counter("dietagent_runs_total",
		metric.WithDescription("Plan generation runs by outcome"))
	attempts, _ := meter.Int64Counter("dietagent_generation_attempts_total",
		metric.WithDescription("Calls made to the plan generator"))
	rejections, _ := meter.Int64Counter("dietagent_rejections_total",
		metric.WithDescription("Candidate plans rejected by reconciliation"))
	generation, _ := meter.Float64Histogram("dietagent_generation_duration_seconds",
		metric.WithDescription("Time spent in a single plan generator call"),
		metric.WithUnit("s"))
	attemptsInRun, _ := meter.Int64Histogram("dietagent_attempts_per_run",
		metric.WithDescription("Generation attempts used by a finished run"))

	return &metrics{
		runs:          runs,
		attempts:      attempts,
		rejections:    rejections,
		generation:    generation,
		attemptsInRun: attemptsInRun,
	}
}
