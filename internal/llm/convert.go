package llm

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/transcript"
	"github.com/tmc/langchaingo/llms"
)

// toMessages converts a transcript to langchaingo messages.
//
// Chat APIs reject an assistant tool call that is not followed by its tool
// result. Retried subtasks keep their earlier tool-call entries but drop the
// results, so calls without a result are rendered as assistant text.
func toMessages(t transcript.Transcript) []llms.MessageContent {
	answered := make(map[string]bool)
	for _, e := range t.Entries() {
		if r, ok := e.(transcript.ToolResultEntry); ok {
			answered[r.CallID] = true
		}
	}

	msgs := make([]llms.MessageContent, 0, t.Len())
	for _, e := range t.Entries() {
		switch e := e.(type) {
		case transcript.SystemEntry:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, e.Content))
		case transcript.UserEntry:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, e.Content))
		case transcript.AssistantTextEntry:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeAI, e.Content))
		case transcript.AssistantToolCallEntry:
			if !allAnswered(e.Calls, answered) {
				msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeAI, describeCalls(e)))
				continue
			}
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if e.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: e.Content})
			}
			for _, c := range e.Calls {
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   c.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      c.Name,
						Arguments: string(c.Arguments),
					},
				})
			}
			msgs = append(msgs, msg)
		case transcript.ToolResultEntry:
			msgs = append(msgs, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: e.CallID,
					Name:       e.Name,
					Content:    e.Content,
				}},
			})
		default:
			panic(fmt.Sprintf("llm: unhandled transcript entry %T", e))
		}
	}
	return msgs
}

func allAnswered(calls []transcript.ToolCall, answered map[string]bool) bool {
	for _, c := range calls {
		if !answered[c.ID] {
			return false
		}
	}
	return len(calls) > 0
}

func describeCalls(e transcript.AssistantToolCallEntry) string {
	var b strings.Builder
	if e.Content != "" {
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	for i, c := range e.Calls {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Called %s(%s)", c.Name, string(c.Arguments))
	}
	return b.String()
}

// toTools converts tool specs to langchaingo function tools.
func toTools(specs []tools.Spec) []llms.Tool {
	out := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		var params any = map[string]any{"type": "object", "properties": map[string]any{}}
		if s.Parameters != nil {
			params = s.Parameters.Map()
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// stripFences removes a surrounding ```json fence some models add even in
// JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
