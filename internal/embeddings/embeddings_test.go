package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbeddingsServer answers OpenAI /embeddings requests with a vector
// of [len(text), 1, 0] per input.
func fakeEmbeddingsServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string         `json:"object"`
			Data   []datum        `json:"data"`
			Model  string         `json:"model"`
			Usage  map[string]int `json:"usage"`
		}{Object: "list", Model: req.Model, Usage: map[string]int{"prompt_tokens": 1, "total_tokens": 1}}
		for i, in := range req.Input {
			resp.Data = append(resp.Data, datum{Object: "embedding", Embedding: []float32{float32(len(in)), 1, 0}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "mystery-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "mystery-model", Dimension: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, p.Dimension())

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, http.StatusOK)
	ctx := context.Background()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "text-embedding-3-small"})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(ctx, []string{"abc", "abcdef"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(3), vectors[0][0])
	assert.Equal(t, float32(6), vectors[1][0])

	query, err := p.EmbedQuery(ctx, "four")
	require.NoError(t, err)
	assert.Equal(t, float32(4), query[0])
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, http.StatusBadRequest)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewProvider(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, http.StatusOK)

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider: "openai",
		Model:    "text-embedding-3-large",
		BaseURL:  srv.URL,
		APIKey:   config.Secret("sk-test"),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimension())

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type stubProvider struct {
	err error
}

func (s stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return make([][]float32, len(texts)), nil
}

func (s stubProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1}, s.err
}

func (s stubProvider) Dimension() int { return 1 }
func (s stubProvider) Close() error   { return nil }

func TestInstrument_RecordsMetrics(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	ctx := context.Background()

	m := NewMetrics(tel.Meter(instrumentationName), zap.NewNop())
	p := Instrument(stubProvider{}, "stub", m)

	_, err := p.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = p.EmbedQuery(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, int64(2), tel.HistogramCount(t, "helpdesk.embedding.generation_duration_seconds"))
	assert.Equal(t, int64(-1), tel.CounterValue(t, "helpdesk.embedding.errors_total"))

	failing := Instrument(stubProvider{err: errors.New("down")}, "stub", m)
	_, err = failing.EmbedQuery(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, int64(1), tel.CounterValue(t, "helpdesk.embedding.errors_total"))
	assert.Equal(t, 1, failing.Dimension())
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordGeneration(context.Background(), "x", "embed_query", 0, 1, nil)
}

func TestFastEmbedModelDimension(t *testing.T) {
	dim, ok := fastEmbedModelDimension(defaultFastEmbedModel)
	assert.True(t, ok)
	assert.Equal(t, 384, dim)

	_, ok = fastEmbedModelDimension("unknown")
	assert.False(t, ok)
}
