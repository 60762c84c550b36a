package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultModel       = "gpt-4o-2024-08-06"
	defaultTimeout     = 60 * time.Second
	defaultRateLimit   = 50.0 / 60.0
	defaultBurst       = 5
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
)

// Options configures a ChatClient.
type Options struct {
	Model       string
	Temperature float64
	Seed        int

	// RequestsPerMinute and Burst bound the call rate across all subtasks.
	RequestsPerMinute float64
	Burst             int

	Logger *logging.Logger
	Tracer trace.Tracer
}

// ChatClient implements Client on any langchaingo chat model.
type ChatClient struct {
	model   llms.Model
	opts    Options
	limiter *rate.Limiter
	metrics *Metrics
}

// NewOpenAI creates a ChatClient for the OpenAI chat completions API (or
// any compatible endpoint set by cfg.BaseURL).
func NewOpenAI(cfg config.LLMConfig, logger *logging.Logger) (*ChatClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("llm.api_key (or OPENAI_API_KEY) is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: newRetryTransport(http.DefaultTransport, maxRetries, defaultBaseBackoff),
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	return NewChatClient(model, Options{
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		Seed:              cfg.Seed,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		Logger:            logger,
	}), nil
}

// NewChatClient wraps model.
func NewChatClient(model llms.Model, opts Options) *ChatClient {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("helpdesk.llm")
	}
	limit := rate.Limit(defaultRateLimit)
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(opts.RequestsPerMinute / 60)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &ChatClient{
		model:   model,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		metrics: NewMetrics(nil, opts.Logger.Underlying()),
	}
}

// WithMetrics replaces the client's metrics.
func (c *ChatClient) WithMetrics(m *Metrics) *ChatClient {
	c.metrics = m
	return c
}

func (c *ChatClient) generate(ctx context.Context, op string, t transcript.Transcript, extra ...llms.CallOption) (*llms.ContentChoice, error) {
	ctx, span := c.opts.Tracer.Start(ctx, "llm."+op, trace.WithAttributes(
		attribute.String("llm.model", c.opts.Model),
		attribute.Int("llm.messages", t.Len()),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	callOpts := append([]llms.CallOption{
		llms.WithTemperature(c.opts.Temperature),
		llms.WithSeed(c.opts.Seed),
	}, extra...)

	c.opts.Logger.Trace(ctx, "llm request", zap.String("op", op), zap.Stringer("transcript", t))

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, toMessages(t), callOpts...)
	c.metrics.RecordCall(ctx, op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("llm %s: %w", op, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, fmt.Errorf("llm %s: %w", op, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	span.SetAttributes(attribute.Int("llm.tool_calls", len(choice.ToolCalls)))
	c.opts.Logger.Debug(ctx, "llm response",
		zap.String("op", op),
		zap.Int("content_length", len(choice.Content)),
		zap.Int("tool_calls", len(choice.ToolCalls)),
		zap.Duration("duration", time.Since(start)),
	)
	return choice, nil
}

// Complete implements Client.
func (c *ChatClient) Complete(ctx context.Context, t transcript.Transcript) (string, error) {
	choice, err := c.generate(ctx, "complete", t)
	if err != nil {
		return "", err
	}
	return choice.Content, nil
}

// CompleteStructured implements Client. The schema is appended as a final
// system instruction, JSON mode is requested and the reply is validated
// before decoding.
func (c *ChatClient) CompleteStructured(ctx context.Context, t transcript.Transcript, s *schema.Schema, out any) error {
	req := t.Clone()
	req.Append(transcript.SystemEntry{Content: fmt.Sprintf(
		"Respond only with a JSON object named %q that conforms to this JSON Schema:\n%s",
		s.Name(), string(s.Raw()),
	)})

	choice, err := c.generate(ctx, "structured", req, llms.WithJSONMode())
	if err != nil {
		return err
	}

	body := stripFences(choice.Content)
	if body == "" {
		return fmt.Errorf("%w: %s: empty reply", ErrParse, s.Name())
	}
	if err := s.Decode([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// SelectTools implements Client.
func (c *ChatClient) SelectTools(ctx context.Context, t transcript.Transcript, specs []tools.Spec) ([]transcript.ToolCall, error) {
	choice, err := c.generate(ctx, "select_tools", t, llms.WithTools(toTools(specs)))
	if err != nil {
		return nil, err
	}

	calls := make([]transcript.ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		args := tc.FunctionCall.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, transcript.ToolCall{
			ID:        id,
			Name:      tc.FunctionCall.Name,
			Arguments: []byte(args),
		})
	}
	return calls, nil
}

var _ Client = (*ChatClient)(nil)
