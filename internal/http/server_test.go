package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAsker struct {
	mock.Mock
}

func (m *mockAsker) Run(ctx context.Context, question string) (*agent.AgentRunResult, error) {
	args := m.Called(ctx, question)
	res, _ := args.Get(0).(*agent.AgentRunResult)
	return res, args.Error(1)
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 9090,
		}

		server, err := NewServer(&mockAsker{}, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
		assert.NotNil(t, cfg.Registry)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&mockAsker{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&mockAsker{}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when asker is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "asker cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := serve(server, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleAsk(t *testing.T) {
	t.Run("returns the run result", func(t *testing.T) {
		server, asker := setupTestServer(t)
		result := &agent.AgentRunResult{
			RunID:       "run-1",
			Question:    "What does error E100 mean?",
			Plan:        agent.Plan{"Look up E100 in the manual"},
			FinalAnswer: "E100 indicates a pump fault.",
			SubtaskResults: []agent.SubtaskResult{{
				TaskName:     "Look up E100 in the manual",
				IsCompleted:  true,
				Answer:       "Pump fault.",
				AttemptCount: 1,
			}},
		}
		asker.On("Run", mock.Anything, "What does error E100 mean?").Return(result, nil)

		rec := serve(server, http.MethodPost, "/api/v1/ask", `{"question":"  What does error E100 mean?  "}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		var got agent.AgentRunResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "E100 indicates a pump fault.", got.FinalAnswer)
		require.Len(t, got.SubtaskResults, 1)
		assert.Equal(t, "Pump fault.", got.SubtaskResults[0].Answer)
		assert.Contains(t, rec.Body.String(), `"subtask_answer"`)
		asker.AssertExpectations(t)
	})

	t.Run("rejects an empty question", func(t *testing.T) {
		server, asker := setupTestServer(t)

		rec := serve(server, http.MethodPost, "/api/v1/ask", `{"question":"   "}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "question field is required")
		asker.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := serve(server, http.MethodPost, "/api/v1/ask", `{"question":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
	}{
		{"planning failure", fmt.Errorf("%w: %w", agent.ErrPlanningFailure, errors.New("bad json")), http.StatusBadGateway},
		{"no tool selected", &agent.SubtaskError{Index: 1, Subtask: "s", Err: agent.ErrNoToolSelected}, http.StatusBadGateway},
		{"unknown tool", &agent.SubtaskError{Index: 0, Subtask: "s", Err: agent.ErrUnknownTool}, http.StatusBadGateway},
		{"reflection parse", agent.ErrReflectionParse, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, 499},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run("maps "+tc.name, func(t *testing.T) {
			server, asker := setupTestServer(t)
			asker.On("Run", mock.Anything, "q").Return(nil, tc.err)

			rec := serve(server, http.MethodPost, "/api/v1/ask", `{"question":"q"}`)

			assert.Equal(t, tc.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.err.Error(), resp.Error)
		})
	}
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down gracefully", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 0,
		}

		server, err := NewServer(&mockAsker{}, zap.NewNop(), cfg)
		require.NoError(t, err)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start()
		}()

		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assert.NoError(t, server.Shutdown(ctx))

		select {
		case err := <-errChan:
			assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := serve(server, http.MethodGet, "/health", "")

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server, _ := setupTestServer(t)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = serve(server, http.MethodGet, "/panic", "")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// setupTestServer creates a test server backed by a mock asker.
func setupTestServer(t *testing.T) (*Server, *mockAsker) {
	t.Helper()

	asker := &mockAsker{}
	server, err := NewServer(asker, zap.NewNop(), &Config{Host: "localhost", Port: 9090})
	require.NoError(t, err)
	return server, asker
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
