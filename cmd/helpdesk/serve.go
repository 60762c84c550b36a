package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	httpserver "github.com/fyrsmithlabs/helpdesk/internal/http"
	"github.com/fyrsmithlabs/helpdesk/internal/services"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  GET  /health       liveness check
  GET  /metrics      Prometheus metrics
  POST /api/v1/ask   {"question": "..."} -> run result

Examples:
  helpdesk serve
  helpdesk serve --host 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	host, port := env.cfg.Server.Host, env.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	srv, err := httpserver.NewServer(orch, env.logger.Named("http").Underlying(), &httpserver.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
		return err
	}
	env.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
