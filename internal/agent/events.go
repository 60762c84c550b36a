package agent

import "time"

// EventKind names a progress event.
type EventKind string

const (
	EventRunStarted      EventKind = "run.started"
	EventPlanCreated     EventKind = "plan.created"
	EventSubtaskStarted  EventKind = "subtask.started"
	EventSubtaskAttempt  EventKind = "subtask.attempt"
	EventSubtaskFinished EventKind = "subtask.finished"
	EventRunFinished     EventKind = "run.finished"
	EventRunFailed       EventKind = "run.failed"
)

// Event reports run progress. Fields not relevant to Kind are zero.
type Event struct {
	Kind         EventKind     `json:"kind"`
	RunID        string        `json:"run_id"`
	Time         time.Time     `json:"time"`
	Question     string        `json:"question,omitempty"`
	Plan         Plan          `json:"plan,omitempty"`
	SubtaskIndex int           `json:"subtask_index"`
	Subtask      string        `json:"subtask,omitempty"`
	Attempt      int           `json:"attempt,omitempty"`
	Completed    bool          `json:"completed,omitempty"`
	Observation  string        `json:"observation,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// ProgressFunc receives events. Subtask events arrive from concurrent
// executors, so implementations must be safe for concurrent use and should
// not block.
type ProgressFunc func(Event)

// MultiProgress fans an event out to every non-nil fn.
func MultiProgress(fns ...ProgressFunc) ProgressFunc {
	var live []ProgressFunc
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	return func(e Event) {
		for _, fn := range live {
			fn(e)
		}
	}
}
