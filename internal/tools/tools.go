// Package tools defines the retrieval tools the agent can call and the
// immutable registry that resolves them by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/helpdesk/internal/schema"
)

var (
	// ErrUnknownTool is returned when a name is not in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrDuplicateTool is returned by NewRegistry for repeated names.
	ErrDuplicateTool = errors.New("duplicate tool name")
)

// Spec describes a tool to the language model.
type Spec struct {
	Name        string
	Description string
	Parameters  *schema.Schema
}

// Hit is one retrieval result.
type Hit struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Score   *float64 `json:"score,omitempty"`
	Source  string   `json:"source,omitempty"`
}

// Tool is a callable retrieval collaborator.
type Tool interface {
	Spec() Spec
	Invoke(ctx context.Context, args json.RawMessage) ([]Hit, error)
}

// Registry maps names to tools. It cannot be modified after NewRegistry,
// so one instance is shared by every concurrent subtask.
type Registry struct {
	tools map[string]Tool
	specs []Spec
}

// NewRegistry builds a registry. Specs are reported in name order so the
// tool list sent to the model is stable between runs.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		spec := t.Spec()
		if spec.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if _, dup := r.tools[spec.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
		}
		r.tools[spec.Name] = t
		r.specs = append(r.specs, spec)
	}
	sort.Slice(r.specs, func(i, j int) bool { return r.specs[i].Name < r.specs[j].Name })
	return r, nil
}

// Specs returns every tool's Spec.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the tool registered as name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Invoke validates args against the tool's parameter schema and calls it.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) ([]Hit, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if params := t.Spec().Parameters; params != nil {
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if err := params.Validate(args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}
	return t.Invoke(ctx, args)
}

func score(v float64) *float64 {
	return &v
}
