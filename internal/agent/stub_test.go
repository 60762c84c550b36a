package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
)

const composedAnswer = "E100 indicates a water supply error. Open the tap and check the hose."

// stubClient is a deterministic llm.Client. It recognises the stage of a
// call from the transcript shape and the requested schema.
type stubClient struct {
	plan    []string
	planErr error

	// completes reports whether subtask is accepted at attempt (1-based).
	completes func(subtask string, attempt int) bool
	// calls returns the tool calls for subtask at attempt. nil selects
	// the default manual search.
	calls func(subtask string, attempt int) []transcript.ToolCall

	badReflection bool
	composeErr    error

	mu              sync.Mutex
	selections      map[string][]transcript.Transcript
	composerPrompts []string
	nextID          atomic.Int64
}

func (s *stubClient) CompleteStructured(ctx context.Context, t transcript.Transcript, sch *schema.Schema, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var v any
	switch sch.Name() {
	case "plan":
		if s.planErr != nil {
			return s.planErr
		}
		v = planOutput{Subtasks: s.plan}
	case "reflection":
		if s.badReflection {
			return fmt.Errorf("%w: reflection: missing is_completed", llm.ErrParse)
		}
		subtask, attempt := subtaskOf(t), attemptOf(t)
		done := s.completes != nil && s.completes(subtask, attempt)
		v = ReflectionVerdict{Observation: fmt.Sprintf("attempt %d for %s", attempt, subtask), IsCompleted: done}
	default:
		return fmt.Errorf("unexpected schema %s", sch.Name())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sch.Decode(raw, out)
}

func (s *stubClient) Complete(ctx context.Context, t transcript.Transcript) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if attemptOf(t) > 0 {
		return fmt.Sprintf("draft for %s (attempt %d)", subtaskOf(t), attemptOf(t)), nil
	}
	if s.composeErr != nil {
		return "", s.composeErr
	}
	s.mu.Lock()
	s.composerPrompts = append(s.composerPrompts, userContent(t))
	s.mu.Unlock()
	return composedAnswer, nil
}

func (s *stubClient) SelectTools(ctx context.Context, t transcript.Transcript, _ []tools.Spec) ([]transcript.ToolCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subtask, attempt := subtaskOf(t), attemptOf(t)+1

	s.mu.Lock()
	if s.selections == nil {
		s.selections = make(map[string][]transcript.Transcript)
	}
	s.selections[subtask] = append(s.selections[subtask], t.Clone())
	s.mu.Unlock()

	if s.calls != nil {
		return s.calls(subtask, attempt), nil
	}
	return []transcript.ToolCall{s.call(tools.ManualToolName, `{"keywords":"E100"}`)}, nil
}

func (s *stubClient) call(name, args string) transcript.ToolCall {
	return transcript.ToolCall{
		ID:        fmt.Sprintf("call_%d", s.nextID.Add(1)),
		Name:      name,
		Arguments: json.RawMessage(args),
	}
}

func (s *stubClient) selectionsFor(subtask string) []transcript.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections[subtask]
}

// subtaskOf reads the subtask from the first user entry.
func subtaskOf(t transcript.Transcript) string {
	for _, e := range t.Entries() {
		if u, ok := e.(transcript.UserEntry); ok {
			if i := strings.LastIndex(u.Content, "Subtask: "); i >= 0 {
				return strings.TrimSpace(u.Content[i+len("Subtask: "):])
			}
			return ""
		}
	}
	return ""
}

// attemptOf counts tool-call entries, which are never pruned.
func attemptOf(t transcript.Transcript) int {
	n := 0
	for _, e := range t.Entries() {
		if _, ok := e.(transcript.AssistantToolCallEntry); ok {
			n++
		}
	}
	return n
}

func userContent(t transcript.Transcript) string {
	for _, e := range t.Entries() {
		if u, ok := e.(transcript.UserEntry); ok {
			return u.Content
		}
	}
	return ""
}

// fakeTool returns fixed hits, or blocks until cancelled when block is set.
type fakeTool struct {
	name      string
	hits      []tools.Hit
	block     bool
	started   chan struct{}
	cancelled *atomic.Int32
}

func (f *fakeTool) Spec() tools.Spec {
	return tools.Spec{Name: f.name, Description: "fake " + f.name}
}

func (f *fakeTool) Invoke(ctx context.Context, _ json.RawMessage) ([]tools.Hit, error) {
	if !f.block {
		return f.hits, nil
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	<-ctx.Done()
	if f.cancelled != nil {
		f.cancelled.Add(1)
	}
	return nil, ctx.Err()
}

func manualHits() []tools.Hit {
	s := 1.5
	return []tools.Hit{{ID: "m1", Content: "E100: water supply error", Score: &s, Source: "manual.pdf"}}
}

func newTestRegistry(extra ...tools.Tool) *tools.Registry {
	all := append([]tools.Tool{
		&fakeTool{name: tools.ManualToolName, hits: manualHits()},
		&fakeTool{name: tools.QAToolName},
	}, extra...)
	r, err := tools.NewRegistry(all...)
	if err != nil {
		panic(err)
	}
	return r
}

func always(string, int) bool { return true }
func never(string, int) bool  { return false }

var errBoom = errors.New("boom")
