// Package transcript models the role-tagged conversation sent to the
// language model for one subtask.
//
// Entries form a closed set: SystemEntry, UserEntry, AssistantToolCallEntry,
// ToolResultEntry and AssistantTextEntry. Consumers switch over the concrete
// types; the unexported marker method keeps other packages from adding kinds.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags an entry for the language model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Entry is one transcript element.
type Entry interface {
	Role() Role
	entry()
}

// SystemEntry carries system instructions.
type SystemEntry struct {
	Content string
}

// UserEntry carries a user-authored prompt or instruction.
type UserEntry struct {
	Content string
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// AssistantToolCallEntry records the model's tool selection.
type AssistantToolCallEntry struct {
	Content string
	Calls   []ToolCall
}

// ToolResultEntry carries the output of one tool call, correlated by CallID.
type ToolResultEntry struct {
	CallID  string
	Name    string
	Content string
}

// AssistantTextEntry carries free-form model output.
type AssistantTextEntry struct {
	Content string
}

func (SystemEntry) Role() Role            { return RoleSystem }
func (UserEntry) Role() Role              { return RoleUser }
func (AssistantToolCallEntry) Role() Role { return RoleAssistant }
func (ToolResultEntry) Role() Role        { return RoleTool }
func (AssistantTextEntry) Role() Role     { return RoleAssistant }

func (SystemEntry) entry()            {}
func (UserEntry) entry()              {}
func (AssistantToolCallEntry) entry() {}
func (ToolResultEntry) entry()        {}
func (AssistantTextEntry) entry()     {}

// Transcript is an ordered, append-only sequence of entries.
// The zero value is an empty transcript ready for use.
type Transcript struct {
	entries []Entry
}

// New returns a transcript seeded with entries.
func New(entries ...Entry) Transcript {
	t := Transcript{}
	for _, e := range entries {
		t.Append(e)
	}
	return t
}

// Append adds an entry to the end of the transcript.
func (t *Transcript) Append(e Entry) {
	if e == nil {
		return
	}
	t.entries = append(t.entries, e)
}

// Len returns the number of entries.
func (t Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in order.
func (t Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// At returns the entry at index i.
func (t Transcript) At(i int) Entry {
	return t.entries[i]
}

// Clone returns an independent copy; appends to either side are not shared.
func (t Transcript) Clone() Transcript {
	return Transcript{entries: t.Entries()}
}

// WithoutToolResults returns a copy with every ToolResultEntry removed.
// Assistant entries, including tool-call entries, are kept.
func (t Transcript) WithoutToolResults() Transcript {
	out := Transcript{entries: make([]Entry, 0, len(t.entries))}
	for _, e := range t.entries {
		if _, ok := e.(ToolResultEntry); ok {
			continue
		}
		out.entries = append(out.entries, e)
	}
	return out
}

// LastToolCall returns the most recent tool-call entry.
func (t Transcript) LastToolCall() (AssistantToolCallEntry, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if tc, ok := t.entries[i].(AssistantToolCallEntry); ok {
			return tc, true
		}
	}
	return AssistantToolCallEntry{}, false
}

// Count returns how many entries have the given role.
func (t Transcript) Count(role Role) int {
	n := 0
	for _, e := range t.entries {
		if e.Role() == role {
			n++
		}
	}
	return n
}

// wireEntry is the JSON form of an entry.
type wireEntry struct {
	Kind      string     `json:"kind"`
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CallID    string     `json:"call_id,omitempty"`
	Name      string     `json:"name,omitempty"`
}

const (
	kindSystem   = "system"
	kindUser     = "user"
	kindToolCall = "assistant_tool_call"
	kindResult   = "tool_result"
	kindText     = "assistant_text"
)

func toWire(e Entry) wireEntry {
	switch v := e.(type) {
	case SystemEntry:
		return wireEntry{Kind: kindSystem, Role: v.Role(), Content: v.Content}
	case UserEntry:
		return wireEntry{Kind: kindUser, Role: v.Role(), Content: v.Content}
	case AssistantToolCallEntry:
		return wireEntry{Kind: kindToolCall, Role: v.Role(), Content: v.Content, ToolCalls: v.Calls}
	case ToolResultEntry:
		return wireEntry{Kind: kindResult, Role: v.Role(), Content: v.Content, CallID: v.CallID, Name: v.Name}
	case AssistantTextEntry:
		return wireEntry{Kind: kindText, Role: v.Role(), Content: v.Content}
	default:
		panic(fmt.Sprintf("transcript: unknown entry type %T", e))
	}
}

func fromWire(w wireEntry) (Entry, error) {
	switch w.Kind {
	case kindSystem:
		return SystemEntry{Content: w.Content}, nil
	case kindUser:
		return UserEntry{Content: w.Content}, nil
	case kindToolCall:
		return AssistantToolCallEntry{Content: w.Content, Calls: w.ToolCalls}, nil
	case kindResult:
		return ToolResultEntry{CallID: w.CallID, Name: w.Name, Content: w.Content}, nil
	case kindText:
		return AssistantTextEntry{Content: w.Content}, nil
	default:
		return nil, fmt.Errorf("unknown entry kind %q", w.Kind)
	}
}

// MarshalJSON encodes the transcript as a list of kind-tagged objects.
func (t Transcript) MarshalJSON() ([]byte, error) {
	out := make([]wireEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = toWire(e)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var in []wireEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	entries := make([]Entry, 0, len(in))
	for i, w := range in {
		e, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	t.entries = entries
	return nil
}

// String renders the transcript for trace-level logs.
func (t Transcript) String() string {
	var b strings.Builder
	for i, e := range t.entries {
		w := toWire(e)
		fmt.Fprintf(&b, "[%d] %s", i, w.Kind)
		if w.Name != "" {
			fmt.Fprintf(&b, " (%s)", w.Name)
		}
		for _, c := range w.ToolCalls {
			fmt.Fprintf(&b, " %s(%s)", c.Name, string(c.Arguments))
		}
		if w.Content != "" {
			b.WriteString(": ")
			b.WriteString(w.Content)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
