package fulltext

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func manualChunks() []Document {
	return []Document{
		{ID: "m1", FileName: "manual.pdf", Content: "Error E100 indicates the water supply valve is closed."},
		{ID: "m2", FileName: "manual.pdf", Content: "To reset the device after error E100, hold the power button for ten seconds."},
		{ID: "m3", FileName: "care.md", Content: "Clean the filter monthly with warm water."},
	}
}

func TestIndex_SearchRanksMatches(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(zap.NewNop())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Add(ctx, manualChunks())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)

	hits, err := idx.Search(ctx, "reset E100", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m2", hits[0].ID)
	assert.Equal(t, "manual.pdf", hits[0].FileName)
	assert.Contains(t, hits[0].Content, "hold the power button")
	assert.Greater(t, hits[0].Score, 0.0)

	for _, h := range hits {
		assert.NotEqual(t, "m3", h.ID)
	}
}

func TestIndex_SearchLimit(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(nil)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Add(ctx, manualChunks())
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "water E100", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_SearchValidation(t *testing.T) {
	idx, err := NewMemory(nil)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Search(context.Background(), "", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = idx.Search(context.Background(), "E100", 0)
	assert.Error(t, err)

	hits, err := idx.Search(context.Background(), "E100", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_GeneratesIDs(t *testing.T) {
	idx, err := NewMemory(nil)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Add(context.Background(), []Document{{FileName: "a.txt", Content: "alpha"}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIndex_Lifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manuals.bleve")

	_, err := Open(path, nil)
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.ErrorIs(t, Delete(path), ErrIndexNotFound)

	idx, err := Create(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, idx.Path())
	_, err = idx.Add(ctx, manualChunks())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = Create(path, nil)
	assert.ErrorIs(t, err, ErrIndexExists)

	reopened, err := OpenOrCreate(path, nil)
	require.NoError(t, err)
	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	require.NoError(t, reopened.Close())

	require.NoError(t, Delete(path))
	assert.False(t, Exists(path))
}
