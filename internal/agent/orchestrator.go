package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Orchestrator sequences planning, fan-out execution and composition.
// It is immutable after New and safe for concurrent runs.
type Orchestrator struct {
	planner     *Planner
	executor    *Executor
	composer    *Composer
	concurrency int
	logger      *logging.Logger
	tracer      trace.Tracer
	metrics     *engineMetrics
	progress    ProgressFunc
}

type options struct {
	prompts     *Prompts
	maxAttempts int
	concurrency int
	logger      *logging.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	progress    []ProgressFunc
}

// Option configures an Orchestrator.
type Option func(*options)

// WithPrompts replaces the built-in prompts.
func WithPrompts(p *Prompts) Option {
	return func(o *options) { o.prompts = p }
}

// WithMaxAttempts bounds the per-subtask loop. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithConcurrency bounds concurrently executing subtasks. 1 runs them
// sequentially; values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithAgentConfig applies the agent section of the configuration.
func WithAgentConfig(cfg config.AgentConfig) Option {
	return func(o *options) {
		WithMaxAttempts(cfg.MaxAttempts)(o)
		WithConcurrency(cfg.Concurrency)(o)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for engine spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeter sets the meter used for engine metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithProgress adds a progress listener. It may be given more than once.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = append(o.progress, fn) }
}

// New creates an Orchestrator around an LM client and an immutable tool
// registry.
func New(client llm.Client, registry *tools.Registry, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if registry == nil || len(registry.Names()) == 0 {
		return nil, errors.New("tool registry must hold at least one tool")
	}

	o := options{
		maxAttempts: DefaultMaxAttempts,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prompts == nil {
		o.prompts = DefaultPrompts()
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.meter == nil {
		o.meter = otel.Meter(instrumentationName)
	}

	metrics := newEngineMetrics(o.meter, o.logger.Underlying())
	progress := MultiProgress(o.progress...)

	return &Orchestrator{
		planner:  NewPlanner(client, o.prompts, o.logger, o.tracer),
		composer: NewComposer(client, o.prompts, o.logger, o.tracer),
		executor: &Executor{
			client:      client,
			registry:    registry,
			reflector:   NewReflector(client),
			prompts:     o.prompts,
			maxAttempts: o.maxAttempts,
			logger:      o.logger,
			tracer:      o.tracer,
			metrics:     metrics,
			progress:    progress,
		},
		concurrency: o.concurrency,
		logger:      o.logger,
		tracer:      o.tracer,
		metrics:     metrics,
		progress:    progress,
	}, nil
}

// Run answers question. On any fatal error the run is aborted, in-flight
// subtasks are cancelled and no result is returned. A cancelled ctx yields
// ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, question string) (*AgentRunResult, error) {
	runID := uuid.NewString()
	start := time.Now()

	ctx = logging.WithRunID(ctx, runID)
	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	defer span.End()

	o.emit(Event{Kind: EventRunStarted, RunID: runID, Question: question})
	o.logger.Info(ctx, "run started", zap.String("question", question))

	res, err := o.run(ctx, runID, question)
	d := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		outcome := outcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = outcomeCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		o.metrics.recordRun(ctx, outcome, d)
		o.emit(Event{Kind: EventRunFailed, RunID: runID, Error: err.Error(), Duration: d})
		o.logger.Error(ctx, "run failed", zap.Error(err), zap.Duration("duration", d))
		return nil, err
	}

	res.RunID = runID
	res.StartedAt = start
	res.Duration = d

	span.SetAttributes(attribute.Int("plan.subtasks", len(res.Plan)))
	o.metrics.recordRun(ctx, outcomeCompleted, d)
	o.emit(Event{Kind: EventRunFinished, RunID: runID, Answer: res.FinalAnswer, Duration: d})
	o.logger.Info(ctx, "run finished", zap.Duration("duration", d))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, runID, question string) (*AgentRunResult, error) {
	plan, err := o.planner.GeneratePlan(ctx, question)
	if err != nil {
		return nil, err
	}
	o.emit(Event{Kind: EventPlanCreated, RunID: runID, Plan: plan})

	results, err := dispatch(ctx, len(plan), o.concurrency, func(ctx context.Context, i int) (SubtaskResult, error) {
		return o.executor.Execute(ctx, runID, question, plan, i)
	})
	if err != nil {
		return nil, err
	}
	if len(results) != len(plan) {
		return nil, fmt.Errorf("collected %d results for %d subtasks", len(results), len(plan))
	}

	answer, err := o.composer.ComposeAnswer(ctx, question, plan, results)
	if err != nil {
		return nil, err
	}

	return &AgentRunResult{
		Question:       question,
		Plan:           plan,
		SubtaskResults: results,
		FinalAnswer:    answer,
	}, nil
}

func (o *Orchestrator) emit(ev Event) {
	if o.progress == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.progress(ev)
}
