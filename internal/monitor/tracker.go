package monitor

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
)

// Tracker drives a Model from agent progress events.
type Tracker struct {
	program *tea.Program
}

// NewTracker creates a tracker for question. Pass tea options such as
// tea.WithOutput to redirect the view.
func NewTracker(question string, maxAttempts int, opts ...tea.ProgramOption) *Tracker {
	return &Tracker{program: tea.NewProgram(NewModel(question, maxAttempts), opts...)}
}

// Progress returns a ProgressFunc that forwards events to the view. It is
// safe for concurrent use.
func (t *Tracker) Progress() agent.ProgressFunc {
	return func(e agent.Event) {
		t.program.Send(eventMsg(e))
	}
}

// Run shows the view while fn runs and returns fn's outcome. Quitting the
// view cancels fn's context.
func (t *Tracker) Run(ctx context.Context, fn func(context.Context) (*agent.AgentRunResult, error)) (*agent.AgentRunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *agent.AgentRunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx)
		done <- outcome{res, err}
		t.program.Send(doneMsg{result: res, err: err})
	}()

	if _, err := t.program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("running progress view: %w", err)
	}

	// The view may exit early on q; the run then finishes canceled.
	cancel()
	out := <-done
	return out.result, out.err
}
