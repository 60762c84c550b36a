package agent

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/tools"
)

var (
	// ErrPlanningFailure is wrapped when the plan cannot be produced.
	ErrPlanningFailure = errors.New("planning failure")

	// ErrNoToolSelected is wrapped when the model makes no tool call.
	ErrNoToolSelected = errors.New("no tool selected")

	// ErrUnknownTool is wrapped when the model calls a tool the registry
	// does not hold.
	ErrUnknownTool = tools.ErrUnknownTool

	// ErrReflectionParse is wrapped when the reflection verdict is missing
	// or does not match its schema.
	ErrReflectionParse = errors.New("reflection parse failure")
)

// SubtaskError carries the plan position of a failed subtask.
type SubtaskError struct {
	Index   int
	Subtask string
	Err     error
}

func (e *SubtaskError) Error() string {
	return fmt.Sprintf("subtask %d (%q): %v", e.Index, e.Subtask, e.Err)
}

func (e *SubtaskError) Unwrap() error {
	return e.Err
}
