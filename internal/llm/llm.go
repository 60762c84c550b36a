// Package llm adapts a chat model to the three calls the agent makes:
// free-form completion, schema-constrained completion and tool selection.
package llm

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
)

var (
	// ErrParse is wrapped when structured output is missing, is not JSON
	// or does not match the requested schema.
	ErrParse = errors.New("structured output parse failure")

	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Client is the language-model collaborator.
type Client interface {
	// Complete returns the model's free-form reply to t.
	Complete(ctx context.Context, t transcript.Transcript) (string, error)

	// CompleteStructured asks for a JSON reply matching s and decodes it
	// into out.
	CompleteStructured(ctx context.Context, t transcript.Transcript, s *schema.Schema, out any) error

	// SelectTools offers specs to the model and returns the calls it made.
	// An empty slice means the model answered without calling a tool.
	SelectTools(ctx context.Context, t transcript.Transcript, specs []tools.Spec) ([]transcript.ToolCall, error)
}
