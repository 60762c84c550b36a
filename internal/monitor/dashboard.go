package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	textWidth       = 60
)

type subtaskStatus int

const (
	statusPending subtaskStatus = iota
	statusRunning
	statusCompleted
	statusExhausted
)

type subtaskView struct {
	name        string
	status      subtaskStatus
	attempts    int
	observation string
}

// Model is the live view of one agent run.
type Model struct {
	question    string
	maxAttempts int
	runID       string
	started     time.Time
	now         time.Time

	subtasks []subtaskView
	// attempts used by each finished subtask, in finish order
	attemptHistory []float64

	spinner  spinner.Model
	progress progress.Model

	result   *agent.AgentRunResult
	err      error
	done     bool
	quitting bool
}

// Message types
type eventMsg agent.Event
type doneMsg struct {
	result *agent.AgentRunResult
	err    error
}
type tickMsg time.Time

// NewModel creates a view for question. maxAttempts is shown next to each
// subtask's attempt count; zero hides it.
func NewModel(question string, maxAttempts int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sparklineStyle

	return Model{
		question:    question,
		maxAttempts: maxAttempts,
		started:     time.Now(),
		now:         time.Now(),
		spinner:     sp,
		progress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(agent.Event(msg))
		return m, nil

	case doneMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		m.now = time.Now()
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one progress event into the view.
func (m *Model) apply(e agent.Event) {
	if e.RunID != "" {
		m.runID = e.RunID
	}

	switch e.Kind {
	case agent.EventRunStarted:
		if !e.Time.IsZero() {
			m.started = e.Time
		}
	case agent.EventPlanCreated:
		m.subtasks = make([]subtaskView, len(e.Plan))
		for i, name := range e.Plan {
			m.subtasks[i] = subtaskView{name: name}
		}
	case agent.EventSubtaskStarted:
		if st := m.subtask(e.SubtaskIndex); st != nil {
			st.status = statusRunning
		}
	case agent.EventSubtaskAttempt:
		if st := m.subtask(e.SubtaskIndex); st != nil {
			st.attempts = e.Attempt
			st.observation = e.Observation
		}
	case agent.EventSubtaskFinished:
		if st := m.subtask(e.SubtaskIndex); st != nil {
			st.status = statusExhausted
			if e.Completed {
				st.status = statusCompleted
			}
			if e.Attempt > 0 {
				st.attempts = e.Attempt
			}
			m.attemptHistory = append(m.attemptHistory, float64(st.attempts))
		}
	case agent.EventRunFailed:
		if m.err == nil && e.Error != "" {
			m.err = fmt.Errorf("%s", e.Error)
		}
	}
}

func (m *Model) subtask(i int) *subtaskView {
	if i < 0 || i >= len(m.subtasks) {
		return nil
	}
	return &m.subtasks[i]
}

// finished counts subtasks that are completed or exhausted.
func (m Model) finished() int {
	n := 0
	for _, st := range m.subtasks {
		if st.status == statusCompleted || st.status == statusExhausted {
			n++
		}
	}
	return n
}

// Result returns the run outcome once the run is done.
func (m Model) Result() (*agent.AgentRunResult, error) {
	return m.result, m.err
}

// View renders the run
func (m Model) View() string {
	if m.quitting && !m.done {
		return dimStyle.Render("canceling run…") + "\n"
	}

	var b strings.Builder

	status := m.spinner.View() + " " + warningStyle.Render("RUNNING")
	switch {
	case m.done && m.err != nil:
		status = errorStyle.Render("✗ FAILED")
	case m.done:
		status = healthyStyle.Render("✓ DONE")
	}
	b.WriteString(headerStyle.Render(" helpdesk ") + "   " + status + "   " +
		dimStyle.Render("Elapsed: ") + valueStyle.Render(FormatElapsed(m.now.Sub(m.started))) + "\n")
	if m.runID != "" {
		b.WriteString(dimStyle.Render("run "+m.runID) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("Question: ") + valueStyle.Render(Truncate(m.question, textWidth)) + "\n")

	b.WriteString(sectionStyle.Render("┃ Plan") + "\n")
	if len(m.subtasks) == 0 {
		b.WriteString(dimStyle.Render("  planning…") + "\n")
	}
	for i, st := range m.subtasks {
		b.WriteString(fmt.Sprintf("  %s %d. %s %s\n",
			m.badge(st.status), i+1,
			Truncate(st.name, textWidth),
			dimStyle.Render("["+FormatAttempts(st.attempts, m.maxAttempts)+"]"),
		))
		if st.observation != "" && st.status == statusRunning {
			b.WriteString("       " + dimStyle.Render(Truncate(st.observation, textWidth)) + "\n")
		}
	}

	if n := len(m.subtasks); n > 0 {
		ratio := float64(m.finished()) / float64(n)
		b.WriteString("\n" + labelStyle.Render("  Progress: ") + m.progress.ViewAs(ratio) +
			" " + dimStyle.Render(FormatPercentage(ratio)) + "\n")
		b.WriteString(labelStyle.Render("  Attempts: ") + createSparkline(m.attemptHistory) + "\n")
	}

	if m.done && m.err != nil {
		b.WriteString("\n" + errorStyle.Render("Error: ") + m.err.Error() + "\n")
	}

	b.WriteString(footerKeyStyle.Render("[q]") + footerStyle.Render(" cancel"))
	return containerStyle.Render(b.String())
}

func (m Model) badge(s subtaskStatus) string {
	switch s {
	case statusRunning:
		return m.spinner.View()
	case statusCompleted:
		return healthyStyle.Render("✓")
	case statusExhausted:
		return warningStyle.Render("⚠")
	default:
		return dimStyle.Render("·")
	}
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}
