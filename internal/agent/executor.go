package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Executor runs the select/execute/draft/reflect loop for one subtask at a
// time. It holds no per-subtask state and is safe for concurrent use.
type Executor struct {
	client      llm.Client
	registry    *tools.Registry
	reflector   *Reflector
	prompts     *Prompts
	maxAttempts int
	logger      *logging.Logger
	tracer      trace.Tracer
	metrics     *engineMetrics
	progress    ProgressFunc
}

// Execute solves plan[index]. The returned result has
// 1 <= AttemptCount <= maxAttempts; an exhausted subtask carries the
// fallback answer.
func (e *Executor) Execute(ctx context.Context, runID, question string, plan Plan, index int) (SubtaskResult, error) {
	ctx = logging.WithSubtask(ctx, index)
	ctx, span := e.tracer.Start(ctx, "agent.subtask", trace.WithAttributes(
		attribute.Int("subtask.index", index),
		attribute.String("subtask.name", plan[index]),
	))
	defer span.End()

	st := newSubtaskState(question, plan, index)
	start := time.Now()
	e.emit(Event{Kind: EventSubtaskStarted, RunID: runID, SubtaskIndex: index, Subtask: st.subtask})
	e.logger.Info(ctx, "subtask started", zap.String("subtask", st.subtask))

	for {
		if err := ctx.Err(); err != nil {
			return SubtaskResult{}, err
		}
		if err := e.attempt(ctx, st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "subtask failed")
			return SubtaskResult{}, &SubtaskError{Index: index, Subtask: st.subtask, Err: err}
		}

		verdict := st.reflections[len(st.reflections)-1]
		e.emit(Event{
			Kind:         EventSubtaskAttempt,
			RunID:        runID,
			SubtaskIndex: index,
			Subtask:      st.subtask,
			Attempt:      st.attempts,
			Completed:    st.completed,
			Observation:  verdict.Observation,
		})
		e.logger.Debug(ctx, "subtask attempt reflected",
			zap.Int("attempt", st.attempts),
			zap.Bool("completed", st.completed),
			zap.String("observation", verdict.Observation),
		)

		if st.completed || st.attempts >= e.maxAttempts {
			break
		}
	}

	res := st.result()
	span.SetAttributes(
		attribute.Int("subtask.attempts", res.AttemptCount),
		attribute.Bool("subtask.completed", res.IsCompleted),
	)
	e.metrics.recordSubtask(ctx, res)
	e.emit(Event{
		Kind:         EventSubtaskFinished,
		RunID:        runID,
		SubtaskIndex: index,
		Subtask:      st.subtask,
		Attempt:      res.AttemptCount,
		Completed:    res.IsCompleted,
		Answer:       res.Answer,
		Duration:     time.Since(start),
	})
	if res.Exhausted() {
		e.logger.Warn(ctx, "subtask attempt budget exhausted", zap.Int("attempts", res.AttemptCount))
	} else {
		e.logger.Info(ctx, "subtask completed", zap.Int("attempts", res.AttemptCount))
	}
	return res, nil
}

func (e *Executor) attempt(ctx context.Context, st *subtaskState) error {
	if err := e.selectTools(ctx, st); err != nil {
		return err
	}
	if err := e.executeTools(ctx, st); err != nil {
		return err
	}
	if err := e.draftAnswer(ctx, st); err != nil {
		return err
	}
	return e.reflect(ctx, st)
}

// selectTools builds or prunes the transcript and records the model's tool
// calls. Retries keep assistant entries, drop tool results and append the
// retry instruction.
func (e *Executor) selectTools(ctx context.Context, st *subtaskState) error {
	data := promptData{Question: st.question, Plan: st.plan, Subtask: st.subtask}
	if st.attempts == 0 {
		st.transcript = transcript.New(
			transcript.SystemEntry{Content: e.prompts.render(promptSubtaskSystem, data)},
			transcript.UserEntry{Content: e.prompts.render(promptSubtaskUser, data)},
		)
	} else {
		st.transcript = st.transcript.WithoutToolResults()
		st.transcript.Append(transcript.UserEntry{Content: e.prompts.render(promptRetry, data)})
	}

	calls, err := e.client.SelectTools(ctx, st.transcript, e.registry.Specs())
	if err != nil {
		return fmt.Errorf("selecting tools: %w", err)
	}
	if len(calls) == 0 {
		return ErrNoToolSelected
	}

	st.transcript.Append(transcript.AssistantToolCallEntry{Calls: calls})
	return nil
}

// executeTools invokes every call of the latest tool-call entry in order.
func (e *Executor) executeTools(ctx context.Context, st *subtaskState) error {
	last, ok := st.transcript.LastToolCall()
	if !ok {
		return ErrNoToolSelected
	}

	batch := make([]ToolInvocationRecord, 0, len(last.Calls))
	for _, call := range last.Calls {
		e.logger.Debug(ctx, "invoking tool",
			zap.String("tool", call.Name),
			zap.ByteString("arguments", call.Arguments),
		)
		hits, err := e.registry.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			return fmt.Errorf("tool %s: %w", call.Name, err)
		}
		e.metrics.recordInvocation(ctx, call.Name)

		if hits == nil {
			hits = []tools.Hit{}
		}
		content, err := json.Marshal(hits)
		if err != nil {
			return fmt.Errorf("encoding %s results: %w", call.Name, err)
		}

		st.transcript.Append(transcript.ToolResultEntry{
			CallID:  call.ID,
			Name:    call.Name,
			Content: string(content),
		})
		batch = append(batch, ToolInvocationRecord{
			Attempt:   st.attempts + 1,
			CallID:    call.ID,
			ToolName:  call.Name,
			Arguments: call.Arguments,
			Results:   hits,
		})
	}
	st.toolResults = append(st.toolResults, batch)
	return nil
}

func (e *Executor) draftAnswer(ctx context.Context, st *subtaskState) error {
	answer, err := e.client.Complete(ctx, st.transcript)
	if err != nil {
		return fmt.Errorf("drafting answer: %w", err)
	}
	st.transcript.Append(transcript.AssistantTextEntry{Content: answer})
	st.answer = answer
	return nil
}

func (e *Executor) reflect(ctx context.Context, st *subtaskState) error {
	data := promptData{Question: st.question, Plan: st.plan, Subtask: st.subtask}
	st.transcript.Append(transcript.UserEntry{Content: e.prompts.render(promptReflection, data)})

	verdict, err := e.reflector.Reflect(ctx, st.transcript)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	st.transcript.Append(transcript.AssistantTextEntry{Content: string(encoded)})
	st.reflections = append(st.reflections, verdict)
	st.attempts++
	st.completed = verdict.IsCompleted

	if st.attempts >= e.maxAttempts && !st.completed {
		st.answer = fallbackAnswer(st.subtask)
	}
	return nil
}

func (e *Executor) emit(ev Event) {
	if e.progress == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.progress(ev)
}
