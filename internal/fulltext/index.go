// Package fulltext is the keyword index over product manual chunks.
//
// Each chunk is stored as {file_name, content}; content is analyzed with
// the standard analyzer and searched with a match query, so results are
// BM25-ranked.
package fulltext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	fieldFileName = "file_name"
	fieldContent  = "content"

	// indexBatchSize bounds how many chunks go into one bleve batch.
	indexBatchSize = 500
)

var (
	// ErrIndexNotFound is returned when no index exists at the path.
	ErrIndexNotFound = errors.New("keyword index not found")

	// ErrIndexExists is returned by Create when the path is taken.
	ErrIndexExists = errors.New("keyword index already exists")

	// ErrEmptyQuery is returned for blank keyword strings.
	ErrEmptyQuery = errors.New("keywords cannot be empty")
)

var tracer = otel.Tracer("helpdesk.fulltext")

// Document is one manual chunk.
type Document struct {
	// ID is generated when empty.
	ID       string
	FileName string
	Content  string
}

// Hit is a scored search result.
type Hit struct {
	ID       string
	FileName string
	Content  string
	Score    float64
}

// Index wraps a bleve index. It is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	logger *zap.Logger
}

func buildIndexMapping() mapping.IndexMapping {
	chunkMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = true

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = true

	chunkMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	chunkMapping.AddFieldMappingsAt(fieldFileName, keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = chunkMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Exists reports whether an index directory is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create builds a new, empty index at path.
func Create(path string, logger *zap.Logger) (*Index, error) {
	if Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	idx, err := bleve.New(path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return wrap(idx, path, logger), nil
}

// Open opens an existing index at path.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if !Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}
	return wrap(idx, path, logger), nil
}

// OpenOrCreate opens the index at path, creating it when missing.
func OpenOrCreate(path string, logger *zap.Logger) (*Index, error) {
	if Exists(path) {
		return Open(path, logger)
	}
	return Create(path, logger)
}

// NewMemory returns an index that lives only in memory.
func NewMemory(logger *zap.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return wrap(idx, "", logger), nil
}

// Delete removes the index directory at path.
func Delete(path string) error {
	if !Exists(path) {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing index %s: %w", path, err)
	}
	return nil
}

func wrap(idx bleve.Index, path string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{index: idx, path: path, logger: logger}
}

// Path returns the on-disk location, or "" for in-memory indexes.
func (i *Index) Path() string {
	return i.path
}

// Add indexes docs in batches and returns their IDs.
func (i *Index) Add(ctx context.Context, docs []Document) ([]string, error) {
	_, span := tracer.Start(ctx, "fulltext.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	i.mu.Lock()
	defer i.mu.Unlock()

	ids := make([]string, len(docs))
	batch := i.index.NewBatch()
	for n, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}
		ids[n] = id
		fields := map[string]interface{}{fieldFileName: doc.FileName, fieldContent: doc.Content}
		if err := batch.Index(id, fields); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to index document %s: %w", id, err)
		}
		if batch.Size() >= indexBatchSize {
			if err := i.index.Batch(batch); err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("failed to write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to write batch: %w", err)
		}
	}

	i.logger.Debug("indexed manual chunks", zap.Int("count", len(docs)), zap.String("path", i.path))
	return ids, nil
}

// Search runs a match query for keywords against chunk content and returns
// at most limit hits ordered by score.
func (i *Index) Search(ctx context.Context, keywords string, limit int) ([]Hit, error) {
	_, span := tracer.Start(ctx, "fulltext.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	if keywords == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	q := bleve.NewMatchQuery(keywords)
	q.SetField(fieldContent)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	i.mu.RLock()
	res, err := i.index.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields[fieldFileName].(string); ok {
			hit.FileName = v
		}
		if v, ok := h.Fields[fieldContent].(string); ok {
			hit.Content = v
		}
		hits = append(hits, hit)
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Count returns the number of indexed chunks.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Close closes the underlying index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}
