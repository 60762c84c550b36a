package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
)

var reflectionSchema = schema.MustFor[ReflectionVerdict]("reflection")

// Reflector critiques a drafted subtask answer.
type Reflector struct {
	client llm.Client
}

// NewReflector creates a Reflector.
func NewReflector(client llm.Client) *Reflector {
	return &Reflector{client: client}
}

// Reflect asks for a verdict over t, which must already end with the
// reflection instruction. A missing or malformed verdict wraps
// ErrReflectionParse.
func (r *Reflector) Reflect(ctx context.Context, t transcript.Transcript) (ReflectionVerdict, error) {
	var v ReflectionVerdict
	err := r.client.CompleteStructured(ctx, t, reflectionSchema, &v)
	if errors.Is(err, llm.ErrParse) {
		return ReflectionVerdict{}, fmt.Errorf("%w: %w", ErrReflectionParse, err)
	}
	if err != nil {
		return ReflectionVerdict{}, fmt.Errorf("reflecting: %w", err)
	}
	return v, nil
}
