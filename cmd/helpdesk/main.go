// Package main implements the helpdesk CLI: index management, one-shot
// questions, the HTTP API and the MCP stdio server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/telemetry"
)

var (
	// configPath overrides ~/.config/helpdesk/config.yaml
	configPath string
	// logLevel overrides logging.level
	logLevel string

	// version information, set via ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "helpdesk",
	Short: "Answer product questions from manuals and past support QA",
	Long: `helpdesk answers customer questions about a product by planning subtasks,
searching the product manuals and a corpus of past support answers, and
composing a single grounded answer.

Build the indexes once with "helpdesk index create --data DIR", then ask
questions from the command line, over HTTP or through an MCP client.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/helpdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "helpdesk by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}

// runtimeEnv is what every command needs before building services.
type runtimeEnv struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// setup loads configuration and creates the logger and telemetry. Logs go to
// stderr so stdout carries only command output (and the MCP stdio stream).
func setup(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lcfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	lcfg.Output.Stdout = false
	lcfg.Output.Stderr = true

	var provider log.LoggerProvider
	if lcfg.Output.OTEL {
		provider = global.GetLoggerProvider()
	}
	logger, err := logging.NewLogger(lcfg, provider)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(derr))
	}

	return &runtimeEnv{cfg: cfg, logger: logger, tel: tel}, nil
}

// Close flushes telemetry and the logger.
func (e *runtimeEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := e.tel.Shutdown(ctx); err != nil {
		e.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
