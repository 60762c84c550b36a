package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type planOutput struct {
	Subtasks []string `json:"subtasks" jsonschema:"Ordered subtasks that together answer the question"`
}

var planSchema = schema.MustFor[planOutput]("plan")

// Planner turns a question into a Plan.
type Planner struct {
	client  llm.Client
	prompts *Prompts
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewPlanner creates a Planner.
func NewPlanner(client llm.Client, prompts *Prompts, logger *logging.Logger, tracer trace.Tracer) *Planner {
	return &Planner{client: client, prompts: prompts, logger: logger, tracer: tracer}
}

// GeneratePlan asks the model for a schema-constrained list of subtasks.
// Any failure, including an empty list, wraps ErrPlanningFailure.
func (p *Planner) GeneratePlan(ctx context.Context, question string) (Plan, error) {
	ctx, span := p.tracer.Start(ctx, "agent.plan")
	defer span.End()

	data := promptData{Question: question}
	t := transcript.New(
		transcript.SystemEntry{Content: p.prompts.render(promptPlannerSystem, data)},
		transcript.UserEntry{Content: p.prompts.render(promptPlannerUser, data)},
	)

	p.logger.Info(ctx, "generating plan")

	var out planOutput
	if err := p.client.CompleteStructured(ctx, t, planSchema, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}

	plan := make(Plan, 0, len(out.Subtasks))
	for _, s := range out.Subtasks {
		if s = strings.TrimSpace(s); s != "" {
			plan = append(plan, s)
		}
	}
	if len(plan) == 0 {
		span.SetStatus(codes.Error, "empty plan")
		return nil, fmt.Errorf("%w: model returned no subtasks", ErrPlanningFailure)
	}

	span.SetAttributes(attribute.Int("plan.subtasks", len(plan)))
	p.logger.Info(ctx, "plan generated", zap.Int("subtasks", len(plan)), zap.Strings("plan", plan))
	return plan, nil
}
