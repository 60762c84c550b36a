package agent

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
)

// DefaultMaxAttempts bounds the select/execute/draft/reflect loop.
const DefaultMaxAttempts = 3

// DefaultConcurrency is the number of subtasks executed at once.
const DefaultConcurrency = 4

// Plan is the ordered list of subtask descriptions for one question.
type Plan []string

// ToolInvocationRecord is the outcome of one tool call.
type ToolInvocationRecord struct {
	Attempt   int             `json:"attempt"`
	CallID    string          `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Results   []tools.Hit     `json:"results"`
}

// ReflectionVerdict is the critique of one drafted subtask answer.
type ReflectionVerdict struct {
	Observation string `json:"observation" jsonschema:"Objective assessment of the drafted answer against the retrieved information, followed by what to search for next if it is insufficient"`
	IsCompleted bool   `json:"is_completed" jsonschema:"True when the answer satisfies the subtask at a minimum level, even if it could be improved"`
}

// SubtaskResult is the immutable outcome of one executed subtask.
type SubtaskResult struct {
	TaskName          string                 `json:"task_name"`
	ToolResults       []ToolInvocationRecord `json:"tool_results"`
	ReflectionResults []ReflectionVerdict    `json:"reflection_results"`
	IsCompleted       bool                   `json:"is_completed"`
	Answer            string                 `json:"subtask_answer"`
	AttemptCount      int                    `json:"attempt_count"`
}

// Exhausted reports whether the subtask stopped because its attempt budget
// ran out rather than because the reflector accepted the answer.
func (r SubtaskResult) Exhausted() bool {
	return r.AttemptCount > 0 && !r.IsCompleted
}

// AgentRunResult is the outcome of a successful run.
// len(SubtaskResults) == len(Plan) and SubtaskResults[i].TaskName == Plan[i].
type AgentRunResult struct {
	RunID          string          `json:"run_id"`
	Question       string          `json:"question"`
	Plan           Plan            `json:"plan"`
	SubtaskResults []SubtaskResult `json:"subtask_results"`
	FinalAnswer    string          `json:"final_answer"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
}

// fallbackAnswer replaces the draft of a subtask that never completed.
func fallbackAnswer(subtask string) string {
	return "Could not find an answer for: " + subtask + "."
}

// subtaskState is owned by exactly one executor for the lifetime of a
// subtask.
type subtaskState struct {
	index    int
	question string
	plan     Plan
	subtask  string

	completed   bool
	transcript  transcript.Transcript
	attempts    int
	toolResults [][]ToolInvocationRecord
	reflections []ReflectionVerdict
	answer      string
}

func newSubtaskState(question string, plan Plan, index int) *subtaskState {
	return &subtaskState{
		index:    index,
		question: question,
		plan:     plan,
		subtask:  plan[index],
	}
}

func (s *subtaskState) result() SubtaskResult {
	var flat []ToolInvocationRecord
	for _, batch := range s.toolResults {
		flat = append(flat, batch...)
	}
	reflections := make([]ReflectionVerdict, len(s.reflections))
	copy(reflections, s.reflections)
	return SubtaskResult{
		TaskName:          s.subtask,
		ToolResults:       flat,
		ReflectionResults: reflections,
		IsCompleted:       s.completed,
		Answer:            s.answer,
		AttemptCount:      s.attempts,
	}
}
