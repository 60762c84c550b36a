package agent

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Composer merges subtask answers into the final answer.
type Composer struct {
	client  llm.Client
	prompts *Prompts
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewComposer creates a Composer.
func NewComposer(client llm.Client, prompts *Prompts, logger *logging.Logger, tracer trace.Tracer) *Composer {
	return &Composer{client: client, prompts: prompts, logger: logger, tracer: tracer}
}

// ComposeAnswer makes one free-form completion over the (task, answer)
// pairs in plan order. It is not retried.
func (c *Composer) ComposeAnswer(ctx context.Context, question string, plan Plan, results []SubtaskResult) (string, error) {
	ctx, span := c.tracer.Start(ctx, "agent.compose")
	defer span.End()

	answers := make([]SubtaskAnswer, len(results))
	for i, r := range results {
		answers[i] = SubtaskAnswer{Task: r.TaskName, Answer: r.Answer}
	}
	data := promptData{Question: question, Plan: plan, Results: answers}

	t := transcript.New(
		transcript.SystemEntry{Content: c.prompts.render(promptComposerSystem, data)},
		transcript.UserEntry{Content: c.prompts.render(promptComposerUser, data)},
	)

	answer, err := c.client.Complete(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		return "", fmt.Errorf("composing answer: %w", err)
	}
	c.logger.Info(ctx, "final answer composed", zap.Int("length", len(answer)))
	return answer, nil
}
