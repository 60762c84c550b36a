package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_Defaults(t *testing.T) {
	var cfg QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "documents", cfg.Collection)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.NoError(t, cfg.Validate())
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  QdrantConfig
	}{
		{"no host", QdrantConfig{Port: 6334, Collection: "documents"}},
		{"bad port", QdrantConfig{Host: "localhost", Port: 70000, Collection: "documents"}},
		{"bad collection", QdrantConfig{Host: "localhost", Port: 6334, Collection: "QA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain")))
	assert.True(t, IsTransientError(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, IsTransientError(status.Error(grpccodes.ResourceExhausted, "busy")))
	assert.False(t, IsTransientError(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, IsTransientError(status.Error(grpccodes.InvalidArgument, "bad")))
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient then succeeds", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, zap.NewNop(), "op", 3, time.Millisecond, 0, func(context.Context) error {
			calls++
			if calls < 3 {
				return status.Error(grpccodes.Unavailable, "down")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent fails fast", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, zap.NewNop(), "op", 3, time.Millisecond, 0, func(context.Context) error {
			calls++
			return status.Error(grpccodes.InvalidArgument, "bad")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permanent")
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, zap.NewNop(), "op", 2, time.Millisecond, 0, func(context.Context) error {
			calls++
			return status.Error(grpccodes.Unavailable, "down")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, grpccodes.Unavailable, status.Code(errors.Unwrap(err)))
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := retryWithBackoff(cctx, zap.NewNop(), "op", 3, time.Hour, 0, func(context.Context) error {
			return status.Error(grpccodes.Unavailable, "down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("applies per-call timeout", func(t *testing.T) {
		err := retryWithBackoff(ctx, zap.NewNop(), "op", 0, time.Millisecond, time.Minute, func(c context.Context) error {
			_, ok := c.Deadline()
			assert.True(t, ok)
			return nil
		})
		assert.NoError(t, err)
	})
}

func TestPointIdentity(t *testing.T) {
	u := uuid.New().String()
	id, point := pointIdentity(u)
	assert.Equal(t, u, id)
	assert.Equal(t, u, point.GetUuid())

	id, point = pointIdentity("qa.csv#3")
	assert.Equal(t, "qa.csv#3", id)
	_, err := uuid.Parse(point.GetUuid())
	assert.NoError(t, err)

	id, _ = pointIdentity("")
	assert.NotEmpty(t, id)
}

func TestPayloadRoundTrip(t *testing.T) {
	doc := Document{
		ID:      "qa.csv#1",
		Content: "Q: What is E100?",
		Metadata: map[string]interface{}{
			PayloadFileName: "qa.csv",
			"row":           1,
			"verified":      true,
		},
	}

	payload := buildPayload(doc.ID, doc)
	assert.Equal(t, "Q: What is E100?", payload[PayloadContent].GetStringValue())

	result := resultFromPayload(0.87, payload)
	assert.Equal(t, "qa.csv#1", result.ID)
	assert.Equal(t, "Q: What is E100?", result.Content)
	assert.Equal(t, "qa.csv", result.FileName())
	assert.Equal(t, int64(1), result.Metadata["row"])
	assert.Equal(t, true, result.Metadata["verified"])
	assert.InDelta(t, 0.87, result.Score, 0.0001)
}

func TestResultFromPayload_IgnoresUnknownKinds(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"tags": {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{}}},
	}
	result := resultFromPayload(0.5, payload)
	assert.Empty(t, result.Metadata)
}

func TestNewQdrantStore_RequiresEmbedder(t *testing.T) {
	_, err := NewQdrantStore(context.Background(), QdrantConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
