// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug) for prompt and transcript dumps
//   - stdout/stderr output plus an optional OpenTelemetry log bridge
//   - automatic correlation fields (trace_id, run.id, subtask.index, request.id)
//   - key- and pattern-based redaction of credentials
//   - sampling below error level
//
// Log with context:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSubtask(ctx, 1)
//	logger.Info(ctx, "reflection verdict", zap.Bool("completed", true))
//
// Tests use TestLogger:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "plan generated", zap.Int("subtasks", 2))
//	tl.AssertField(t, "plan generated", "subtasks", int64(2))
package logging
