package monitor

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
)

// Render formats a finished run for the terminal: the final answer first,
// then each subtask with its outcome.
func Render(r *agent.AgentRunResult) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(" Answer ") + "\n\n")
	b.WriteString(answerStyle.Render(r.FinalAnswer) + "\n")

	b.WriteString(sectionStyle.Render("┃ Subtasks") + "\n")
	for i, st := range r.SubtaskResults {
		badge := healthyStyle.Render("✓")
		if st.Exhausted() {
			badge = warningStyle.Render("⚠")
		}
		fmt.Fprintf(&b, "  %s %d. %s %s\n", badge, i+1, valueStyle.Render(st.TaskName),
			dimStyle.Render(fmt.Sprintf("(%d attempts, %d tool calls)", st.AttemptCount, len(st.ToolResults))))
		fmt.Fprintf(&b, "     %s\n", st.Answer)
	}

	b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("run %s · %s", r.RunID, FormatElapsed(r.Duration))) + "\n")
	return b.String()
}
