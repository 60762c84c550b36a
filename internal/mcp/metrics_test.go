package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
)

func TestMetrics_RecordInvocation(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordInvocation(ctx, askToolName, 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, askToolName, 50*time.Millisecond, tools.ErrInvalidArguments)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	sums := map[string]int64{}
	var reasons []string
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sums[md.Name] += dp.Value
				if r, ok := dp.Attributes.Value("reason"); ok {
					reasons = append(reasons, r.AsString())
				}
			}
		}
	}

	assert.Equal(t, int64(2), sums["helpdesk.mcp.tool.invocations_total"])
	assert.Equal(t, int64(1), sums["helpdesk.mcp.tool.errors_total"])
	assert.Equal(t, []string{"validation_error"}, reasons)
}

func TestMetrics_ActiveRequests(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.IncrementActive(ctx, askToolName)
	m.IncrementActive(ctx, askToolName)
	m.DecrementActive(ctx, askToolName)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	var active int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "helpdesk.mcp.tool.active_requests" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				active += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), active)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"bad arguments", fmt.Errorf("%w: keywords", tools.ErrInvalidArguments), "validation_error"},
		{"empty question", errEmptyQuestion, "validation_error"},
		{"planning", fmt.Errorf("%w: %w", agent.ErrPlanningFailure, errors.New("x")), "planning_error"},
		{"no tool", &agent.SubtaskError{Err: agent.ErrNoToolSelected}, "subtask_error"},
		{"unknown tool", agent.ErrUnknownTool, "subtask_error"},
		{"reflection", agent.ErrReflectionParse, "subtask_error"},
		{"generic error", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
