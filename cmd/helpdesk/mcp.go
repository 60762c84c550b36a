package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/mcp"
	"github.com/fyrsmithlabs/helpdesk/internal/services"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  helpdesk_ask            answer a question end to end
  helpdesk_search_manual  keyword search over the product manuals
  helpdesk_search_qa      similarity search over past support answers

Logs are written to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
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

	orch, err := reg.NewAgent(
		agent.WithTracer(env.tel.Tracer(instrumentationName)),
		agent.WithMeter(env.tel.Meter(instrumentationName)),
	)
	if err != nil {
		return err
	}

	cfg := mcp.DefaultConfig()
	cfg.Version = version
	cfg.Logger = env.logger.Named("mcp").Underlying()
	cfg.Metrics = mcp.NewMetrics(env.tel.Meter(instrumentationName), cfg.Logger)

	srv, err := mcp.NewServer(cfg, orch, reg.Tools(), reg.Scrubber())
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
