package http_test

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	httpserver "github.com/fyrsmithlabs/helpdesk/internal/http"
	"go.uber.org/zap"
)

type staticAsker struct{}

func (staticAsker) Run(_ context.Context, question string) (*agent.AgentRunResult, error) {
	return &agent.AgentRunResult{Question: question, FinalAnswer: "Restart the unit."}, nil
}

// ExampleServer demonstrates how to create and start the HTTP server.
func ExampleServer() {
	logger := zap.NewNop()

	cfg := &httpserver.Config{
		Host: "localhost",
		Port: 0,
	}

	server, err := httpserver.NewServer(staticAsker{}, logger, cfg)
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
