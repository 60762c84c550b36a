package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/secrets"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type MockKeywordSearcher struct {
	mock.Mock
}

func (m *MockKeywordSearcher) Search(ctx context.Context, keywords string, limit int) ([]fulltext.Hit, error) {
	args := m.Called(ctx, keywords, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulltext.Hit), args.Error(1)
}

type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SearchResult), args.Error(1)
}

func TestManualSearch_Invoke(t *testing.T) {
	index := new(MockKeywordSearcher)
	index.On("Search", mock.Anything, "E100", 3).Return([]fulltext.Hit{
		{ID: "c1", FileName: "manual.pdf", Content: "E100: water supply error. password: hunter2hunter2", Score: 1.7},
	}, nil)

	logger := logging.NewTestLogger()
	tool := NewManualSearch(index, Options{Scrubber: secrets.MustNew(nil), Logger: logger.Logger})

	hits, err := tool.Invoke(context.Background(), json.RawMessage(`{"keywords":"E100"}`))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ID)
	assert.Equal(t, "manual.pdf", hits[0].Source)
	require.NotNil(t, hits[0].Score)
	assert.InDelta(t, 1.7, *hits[0].Score, 1e-9)
	assert.NotContains(t, hits[0].Content, "hunter2")
	assert.Contains(t, hits[0].Content, "E100: water supply error.")

	logger.AssertLogged(t, zapcore.InfoLevel, "searching manuals by keyword")
	logger.AssertField(t, "manual search finished", "hits", int64(1))
	index.AssertExpectations(t)
}

func TestManualSearch_InvalidArguments(t *testing.T) {
	tool := NewManualSearch(new(MockKeywordSearcher), Options{})

	for _, raw := range []string{`{}`, `{"keywords":3}`, `not json`} {
		_, err := tool.Invoke(context.Background(), json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidArguments, raw)
	}
}

func TestManualSearch_IndexError(t *testing.T) {
	index := new(MockKeywordSearcher)
	index.On("Search", mock.Anything, "E100", 5).Return(nil, fulltext.ErrIndexNotFound)

	tool := NewManualSearch(index, Options{MaxResults: 5})
	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"keywords":"E100"}`))
	assert.ErrorIs(t, err, fulltext.ErrIndexNotFound)
}

func TestQASearch_Invoke(t *testing.T) {
	store := new(MockVectorSearcher)
	store.On("Search", mock.Anything, "how to reset", 3).Return([]vectorstore.SearchResult{
		{ID: "q1", Content: "Q: reset? A: hold power", Score: 0.91, Metadata: map[string]interface{}{vectorstore.PayloadFileName: "qa.csv"}},
		{ID: "q2", Content: "Q: E100? A: water", Score: 0.52},
	}, nil)

	tool := NewQASearch(store, Options{})
	hits, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"how to reset"}`))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "qa.csv", hits[0].Source)
	assert.Equal(t, "", hits[1].Source)
	assert.InDelta(t, 0.91, *hits[0].Score, 1e-6)
	assert.Equal(t, "Q: reset? A: hold power", hits[0].Content)
}

func TestQASearch_Spec(t *testing.T) {
	spec := NewQASearch(new(MockVectorSearcher), Options{}).Spec()
	assert.Equal(t, QAToolName, spec.Name)

	params := spec.Parameters.Map()
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params["required"], "query")
}

type staticTool struct {
	name string
	hits []Hit
	err  error
}

func (s staticTool) Spec() Spec { return Spec{Name: s.name, Description: s.name} }

func (s staticTool) Invoke(context.Context, json.RawMessage) ([]Hit, error) {
	return s.hits, s.err
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		staticTool{name: "zeta", hits: []Hit{{ID: "z"}}},
		NewManualSearch(new(MockKeywordSearcher), Options{}),
		staticTool{name: "alpha", err: errors.New("boom")},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", ManualToolName, "zeta"}, r.Names())
	assert.Len(t, r.Specs(), 3)

	hits, err := r.Invoke(context.Background(), "zeta", nil)
	require.NoError(t, err)
	assert.Equal(t, "z", hits[0].ID)

	_, err = r.Invoke(context.Background(), "alpha", nil)
	assert.EqualError(t, err, "boom")

	_, err = r.Invoke(context.Background(), "search_web", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Invoke(context.Background(), ManualToolName, json.RawMessage(`{"kw":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, ok := r.Lookup("zeta")
	assert.True(t, ok)
}

func TestRegistry_SpecsAreCopies(t *testing.T) {
	r, err := NewRegistry(staticTool{name: "a"})
	require.NoError(t, err)

	specs := r.Specs()
	specs[0].Name = "changed"
	assert.Equal(t, []string{"a"}, r.Names())
}

func TestRegistry_Errors(t *testing.T) {
	_, err := NewRegistry(staticTool{name: "a"}, staticTool{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(staticTool{})
	assert.Error(t, err)
}
