package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
)

const (
	askToolName          = "helpdesk_ask"
	searchManualToolName = "helpdesk_search_manual"
	searchQAToolName     = "helpdesk_search_qa"
)

var errEmptyQuestion = errors.New("question is required")

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerAskTool()
	if s.registry == nil {
		return
	}
	if _, ok := s.registry.Lookup(tools.ManualToolName); ok {
		s.registerSearchManualTool()
	}
	if _, ok := s.registry.Lookup(tools.QAToolName); ok {
		s.registerSearchQATool()
	}
}

// instrument wraps a tool body with the active/duration/error metrics.
func instrument[In, Out any](s *Server, name string, fn func(context.Context, In) (*mcp.CallToolResult, Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := fn(ctx, args)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("mcp tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

// ===== ASK =====

type askInput struct {
	Question string `json:"question" jsonschema:"The user's question about the XYZ system"`
}

type askSubtask struct {
	Task      string `json:"task"`
	Answer    string `json:"answer"`
	Completed bool   `json:"completed"`
	Attempts  int    `json:"attempts"`
}

type askOutput struct {
	RunID       string       `json:"run_id"`
	FinalAnswer string       `json:"final_answer"`
	Plan        []string     `json:"plan"`
	Subtasks    []askSubtask `json:"subtasks"`
}

func (s *Server) registerAskTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: askToolName,
		Description: "Answer a help desk question about the XYZ system. The question is split into " +
			"subtasks, each researched in the manuals and past QA, and the findings are composed into one answer.",
	}, instrument(s, askToolName, s.ask))
}

func (s *Server) ask(ctx context.Context, args askInput) (*mcp.CallToolResult, askOutput, error) {
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return nil, askOutput{}, errEmptyQuestion
	}

	result, err := s.asker.Run(ctx, question)
	if err != nil {
		return nil, askOutput{}, fmt.Errorf("helpdesk run failed: %w", err)
	}

	out := toAskOutput(result)
	out.FinalAnswer = s.scrubber.String(out.FinalAnswer)
	for i := range out.Subtasks {
		out.Subtasks[i].Answer = s.scrubber.String(out.Subtasks[i].Answer)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out.FinalAnswer},
		},
	}, out, nil
}

func toAskOutput(r *agent.AgentRunResult) askOutput {
	out := askOutput{
		RunID:       r.RunID,
		FinalAnswer: r.FinalAnswer,
		Plan:        append([]string{}, r.Plan...),
		Subtasks:    make([]askSubtask, 0, len(r.SubtaskResults)),
	}
	for _, st := range r.SubtaskResults {
		out.Subtasks = append(out.Subtasks, askSubtask{
			Task:      st.TaskName,
			Answer:    st.Answer,
			Completed: st.IsCompleted,
			Attempts:  st.AttemptCount,
		})
	}
	return out
}

// ===== SEARCH =====

type searchManualInput struct {
	Keywords string `json:"keywords" jsonschema:"Keyword used for full-text search of the manuals"`
}

type searchQAInput struct {
	Query string `json:"query" jsonschema:"Search query matched against past support QA"`
}

type searchOutput struct {
	Hits []tools.Hit `json:"hits"`
}

func (s *Server) registerSearchManualTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        searchManualToolName,
		Description: "Keyword search over the XYZ manuals without running the agent",
	}, instrument(s, searchManualToolName, func(ctx context.Context, args searchManualInput) (*mcp.CallToolResult, searchOutput, error) {
		return s.search(ctx, tools.ManualToolName, args)
	}))
}

func (s *Server) registerSearchQATool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        searchQAToolName,
		Description: "Similarity search over past XYZ support QA without running the agent",
	}, instrument(s, searchQAToolName, func(ctx context.Context, args searchQAInput) (*mcp.CallToolResult, searchOutput, error) {
		return s.search(ctx, tools.QAToolName, args)
	}))
}

// search forwards args to a retrieval tool. Hits are already scrubbed by
// the tool when scrubbing is enabled.
func (s *Server) search(ctx context.Context, tool string, args any) (*mcp.CallToolResult, searchOutput, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, searchOutput{}, err
	}
	hits, err := s.registry.Invoke(ctx, tool, raw)
	if err != nil {
		return nil, searchOutput{}, err
	}
	if hits == nil {
		hits = []tools.Hit{}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d results", len(hits))},
		},
	}, searchOutput{Hits: hits}, nil
}
