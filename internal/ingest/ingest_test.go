package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder maps text onto a fixed vocabulary, normalized.
type wordEmbedder struct{}

var vocabulary = []string{"e100", "e200", "reset", "water", "filter", "power"}

func (wordEmbedder) embed(text string) []float32 {
	v := make([]float32, len(vocabulary)+1)
	lower := strings.ToLower(text)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(vocabulary)] = 0.1
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	for i := range v {
		v[i] /= float32(math.Sqrt(norm))
	}
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manual.md"), "# XYZ manual\n\nError E100 means the water supply is interrupted. Open the tap.")
	writeFile(t, filepath.Join(dir, "guides", "power.txt"), "Hold the power button for ten seconds to reset the unit.")
	writeFile(t, filepath.Join(dir, "ignored.json"), `{"E100": true}`)
	writeFile(t, filepath.Join(dir, "qa", "faq.csv"), "question,answer\nHow do I reset?,Hold power for ten seconds\nWhat is E200?,Filter clogged\n")
	return dir
}

func newTestIndexer(t *testing.T) (*Indexer, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "xyz_qa"}, wordEmbedder{}, nil)
	require.NoError(t, err)
	ix, err := NewIndexer(Config{
		KeywordPath: filepath.Join(t.TempDir(), "manuals.bleve"),
		Dimension:   len(vocabulary) + 1,
	}, store, nil)
	require.NoError(t, err)
	return ix, store
}

func TestLoadManuals(t *testing.T) {
	dir := newDataDir(t)
	docs, files, err := LoadManuals(context.Background(), dir, NewSplitter(0, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, files)
	require.Len(t, docs, 2)
	assert.Equal(t, "guides/power.txt#0", docs[0].ID)
	assert.Equal(t, "power.txt", docs[0].FileName)
	assert.Equal(t, "manual.md#0", docs[1].ID)
	assert.Contains(t, docs[1].Content, "E100")
}

func TestFindFiles_IgnoreFile(t *testing.T) {
	dir := newDataDir(t)
	writeFile(t, filepath.Join(dir, "drafts", "e100-draft.md"), "Error E100 draft")
	writeFile(t, filepath.Join(dir, "qa", "old.csv"), "question,answer\nq,a\n")
	writeFile(t, filepath.Join(dir, ".helpdeskignore"), "drafts/\nold.csv\n")

	manuals, err := findFiles(dir, IsManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"guides/power.txt", "manual.md"}, manuals)

	qa, err := findFiles(dir, IsQA)
	require.NoError(t, err)
	assert.Equal(t, []string{"qa/faq.csv"}, qa)
}

func TestFindFiles_SkipsHiddenByDefault(t *testing.T) {
	dir := newDataDir(t)
	writeFile(t, filepath.Join(dir, ".cache", "copy.md"), "Error E100 copy")

	manuals, err := findFiles(dir, IsManual)
	require.NoError(t, err)
	assert.NotContains(t, manuals, ".cache/copy.md")
}

func TestLoadManuals_Chunking(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "long.txt"), strings.Repeat("water filter reset procedure. ", 40))

	docs, _, err := LoadManuals(context.Background(), dir, NewSplitter(100, 10))
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)
	for _, d := range docs {
		assert.LessOrEqual(t, len(d.Content), 100)
	}
}

func TestLoadQA(t *testing.T) {
	docs, files, err := LoadQA(context.Background(), newDataDir(t))
	require.NoError(t, err)

	assert.Equal(t, 1, files)
	require.Len(t, docs, 2)
	assert.Equal(t, "qa/faq.csv#row0", docs[0].ID)
	assert.Equal(t, "faq.csv", docs[0].Metadata[vectorstore.PayloadFileName])
	assert.Contains(t, docs[0].Content, "question: How do I reset?")
	assert.Contains(t, docs[0].Content, "answer: Hold power for ten seconds")
}

func TestIndexer_CreateAndDelete(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndexer(t)
	dir := newDataDir(t)

	report, err := ix.Create(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ManualFiles)
	assert.Equal(t, 2, report.ManualChunks)
	assert.Equal(t, 1, report.QAFiles)
	assert.Equal(t, 2, report.QARows)
	assert.Equal(t, "xyz_qa", report.Collection)
	assert.True(t, report.CollectionCreated)

	idx, err := fulltext.Open(ix.keywordPath, nil)
	require.NoError(t, err)
	hits, err := idx.Search(ctx, "E100", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "manual.md", hits[0].FileName)
	require.NoError(t, idx.Close())

	results, err := store.Search(ctx, "how to reset with the power button", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "qa/faq.csv#row0", results[0].ID)

	// A second build reuses both indexes and overwrites documents.
	again, err := ix.Create(ctx, dir)
	require.NoError(t, err)
	assert.False(t, again.CollectionCreated)
	info, err := store.GetCollectionInfo(ctx, "xyz_qa")
	require.NoError(t, err)
	assert.Equal(t, 2, info.PointCount)

	deleted, err := ix.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted.KeywordDeleted)
	assert.True(t, deleted.CollectionDeleted)
	assert.False(t, fulltext.Exists(ix.keywordPath))

	deleted, err = ix.Delete(ctx)
	require.NoError(t, err)
	assert.False(t, deleted.KeywordDeleted)
	assert.False(t, deleted.CollectionDeleted)
}

func TestIndexer_KeywordOnly(t *testing.T) {
	ix, err := NewIndexer(Config{KeywordPath: filepath.Join(t.TempDir(), "kw.bleve")}, nil, nil)
	require.NoError(t, err)

	report, err := ix.Create(context.Background(), newDataDir(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.ManualChunks)
	assert.Zero(t, report.QARows)
	assert.Empty(t, report.Collection)
}

func TestNewIndexer_Validation(t *testing.T) {
	_, err := NewIndexer(Config{}, nil, nil)
	assert.Error(t, err)

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "xyz_qa"}, wordEmbedder{}, nil)
	require.NoError(t, err)
	_, err = NewIndexer(Config{KeywordPath: "x"}, store, nil)
	assert.Error(t, err)
}

func TestIndexer_Watch(t *testing.T) {
	ix, _ := newTestIndexer(t)
	dir := newDataDir(t)

	chunks, err := ix.RebuildKeyword(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, chunks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rebuilt := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- ix.Watch(ctx, dir, 20*time.Millisecond, func(n int, err error) {
			if err == nil {
				rebuilt <- n
			}
		})
	}()

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "guides", "filter.md"), "Clean the water filter every month.")

	select {
	case n := <-rebuilt:
		assert.Equal(t, 3, n)
	case <-time.After(5 * time.Second):
		t.Fatal("keyword index was not rebuilt")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestIsManualAndQA(t *testing.T) {
	assert.True(t, IsManual("a/b/Manual.PDF"))
	assert.True(t, IsManual("notes.md"))
	assert.False(t, IsManual("faq.csv"))
	assert.True(t, IsQA("faq.CSV"))
	assert.False(t, IsQA("faq.txt"))
}
