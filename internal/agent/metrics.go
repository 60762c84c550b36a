package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/helpdesk/internal/agent"

// Run outcomes recorded on helpdesk.agent.runs_total.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCanceled  = "canceled"
)

type engineMetrics struct {
	runs        metric.Int64Counter
	attempts    metric.Int64Histogram
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

func newEngineMetrics(meter metric.Meter, logger *zap.Logger) *engineMetrics {
	m := &engineMetrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"helpdesk.agent.runs_total",
		metric.WithDescription("Agent runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create runs counter", zap.Error(err))
	}

	m.attempts, err = meter.Int64Histogram(
		"helpdesk.agent.subtask_attempts",
		metric.WithDescription("Attempts used per finished subtask"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		logger.Warn("failed to create attempts histogram", zap.Error(err))
	}

	m.invocations, err = meter.Int64Counter(
		"helpdesk.agent.tool_invocations_total",
		metric.WithDescription("Tool invocations by tool"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create tool invocations counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"helpdesk.agent.run_duration_seconds",
		metric.WithDescription("End-to-end run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 2.5, 5, 10, 20, 30, 60, 120, 300),
	)
	if err != nil {
		logger.Warn("failed to create run duration histogram", zap.Error(err))
	}
	return m
}

func (m *engineMetrics) recordRun(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *engineMetrics) recordSubtask(ctx context.Context, r SubtaskResult) {
	if m.attempts != nil {
		m.attempts.Record(ctx, int64(r.AttemptCount),
			metric.WithAttributes(attribute.Bool("completed", r.IsCompleted)))
	}
}

func (m *engineMetrics) recordInvocation(ctx context.Context, tool string) {
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}
