package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/monitor"
	"github.com/fyrsmithlabs/helpdesk/internal/services"
)

const instrumentationName = "github.com/fyrsmithlabs/helpdesk/cmd/helpdesk"

var (
	askJSON bool
	askTUI  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Long: `Plan, research and answer one question against the indexed manuals
and QA corpus.

Examples:
  # Print the answer with per-subtask detail
  helpdesk ask "What does error E100 mean and how do I fix it?"

  # Watch subtasks progress live
  helpdesk ask --tui "How do I descale the machine?"

  # Emit the full run record as JSON
  helpdesk ask --json "Is the filter dishwasher safe?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full run result as JSON")
	askCmd.Flags().BoolVar(&askTUI, "tui", false, "show live subtask progress")
	askCmd.MarkFlagsMutuallyExclusive("json", "tui")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	reg, err := services.New(ctx, services.Options{Config: env.cfg, Logger: env.logger})
	if err != nil {
		return err
	}
	defer reg.Close()

	opts := []agent.Option{
		agent.WithTracer(env.tel.Tracer(instrumentationName)),
		agent.WithMeter(env.tel.Meter(instrumentationName)),
	}

	var result *agent.AgentRunResult
	if askTUI {
		tracker := monitor.NewTracker(question, env.cfg.Agent.MaxAttempts)
		orch, err := reg.NewAgent(append(opts, agent.WithProgress(tracker.Progress()))...)
		if err != nil {
			return err
		}
		result, err = tracker.Run(ctx, func(ctx context.Context) (*agent.AgentRunResult, error) {
			return orch.Run(ctx, question)
		})
		if err != nil {
			return err
		}
	} else {
		orch, err := reg.NewAgent(opts...)
		if err != nil {
			return err
		}
		result, err = orch.Run(ctx, question)
		if err != nil {
			return err
		}
	}

	return writeResult(cmd, result, askJSON)
}

func writeResult(cmd *cobra.Command, result *agent.AgentRunResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintln(out, monitor.Render(result))
	return err
}
