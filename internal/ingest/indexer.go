package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

// embedBatchSize bounds the number of rows embedded per request.
const embedBatchSize = 64

// Indexer owns index construction and deletion.
type Indexer struct {
	keywordPath string
	store       vectorstore.Store
	dimension   int
	splitter    textsplitter.TextSplitter
	logger      *zap.Logger
}

// Config configures an Indexer.
type Config struct {
	// KeywordPath is the on-disk location of the keyword index.
	KeywordPath string

	// Dimension is the embedding size used when creating the collection.
	Dimension int

	ChunkSize    int
	ChunkOverlap int
}

// NewIndexer creates an Indexer. store may be nil when only the keyword
// index is managed.
func NewIndexer(cfg Config, store vectorstore.Store, logger *zap.Logger) (*Indexer, error) {
	if cfg.KeywordPath == "" {
		return nil, errors.New("keyword index path is required")
	}
	if store != nil && cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		keywordPath: cfg.KeywordPath,
		store:       store,
		dimension:   cfg.Dimension,
		splitter:    NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:      logger,
	}, nil
}

// CreateReport summarises an index build.
type CreateReport struct {
	ManualFiles       int    `json:"manual_files"`
	ManualChunks      int    `json:"manual_chunks"`
	QAFiles           int    `json:"qa_files"`
	QARows            int    `json:"qa_rows"`
	KeywordIndex      string `json:"keyword_index"`
	Collection        string `json:"collection,omitempty"`
	CollectionCreated bool   `json:"collection_created"`
}

// Create indexes every manual and QA row under dir. Existing indexes are
// reused; documents with the same ID are overwritten.
func (ix *Indexer) Create(ctx context.Context, dir string) (*CreateReport, error) {
	report := &CreateReport{KeywordIndex: ix.keywordPath}

	manuals, files, err := LoadManuals(ctx, dir, ix.splitter)
	if err != nil {
		return nil, err
	}
	report.ManualFiles = files
	ix.logger.Info("loaded manuals", zap.Int("files", files), zap.Int("chunks", len(manuals)))

	idx, err := fulltext.OpenOrCreate(ix.keywordPath, ix.logger)
	if err != nil {
		return nil, err
	}
	if len(manuals) > 0 {
		if _, err := idx.Add(ctx, manuals); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("indexing manuals: %w", err)
		}
	}
	if err := idx.Close(); err != nil {
		return nil, fmt.Errorf("closing keyword index: %w", err)
	}
	report.ManualChunks = len(manuals)

	if ix.store == nil {
		return report, nil
	}

	rows, files, err := LoadQA(ctx, dir)
	if err != nil {
		return nil, err
	}
	report.QAFiles = files
	report.Collection = ix.store.DefaultCollection()
	ix.logger.Info("loaded QA rows", zap.Int("files", files), zap.Int("rows", len(rows)))

	created, err := ix.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	report.CollectionCreated = created

	for start := 0; start < len(rows); start += embedBatchSize {
		end := min(start+embedBatchSize, len(rows))
		if _, err := ix.store.AddDocuments(ctx, rows[start:end]); err != nil {
			return nil, fmt.Errorf("indexing QA rows %d-%d: %w", start, end-1, err)
		}
	}
	report.QARows = len(rows)
	return report, nil
}

func (ix *Indexer) ensureCollection(ctx context.Context) (bool, error) {
	name := ix.store.DefaultCollection()
	exists, err := ix.store.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return false, nil
	}
	if err := ix.store.CreateCollection(ctx, name, ix.dimension); err != nil && !errors.Is(err, vectorstore.ErrCollectionExists) {
		return false, fmt.Errorf("creating collection %s: %w", name, err)
	}
	ix.logger.Info("created collection", zap.String("collection", name), zap.Int("dimension", ix.dimension))
	return true, nil
}

// RebuildKeyword drops the keyword index and indexes the manuals under dir
// from scratch. It returns the number of chunks indexed.
func (ix *Indexer) RebuildKeyword(ctx context.Context, dir string) (int, error) {
	manuals, _, err := LoadManuals(ctx, dir, ix.splitter)
	if err != nil {
		return 0, err
	}
	if fulltext.Exists(ix.keywordPath) {
		if err := fulltext.Delete(ix.keywordPath); err != nil {
			return 0, err
		}
	}
	idx, err := fulltext.Create(ix.keywordPath, ix.logger)
	if err != nil {
		return 0, err
	}
	defer idx.Close()

	if len(manuals) > 0 {
		if _, err := idx.Add(ctx, manuals); err != nil {
			return 0, fmt.Errorf("indexing manuals: %w", err)
		}
	}
	return len(manuals), nil
}

// DeleteReport says what Delete removed.
type DeleteReport struct {
	KeywordIndex      string `json:"keyword_index"`
	KeywordDeleted    bool   `json:"keyword_deleted"`
	Collection        string `json:"collection,omitempty"`
	CollectionDeleted bool   `json:"collection_deleted"`
}

// Delete removes the keyword index and the vector collection when they
// exist. Missing indexes are reported, not treated as errors.
func (ix *Indexer) Delete(ctx context.Context) (*DeleteReport, error) {
	report := &DeleteReport{KeywordIndex: ix.keywordPath}

	if fulltext.Exists(ix.keywordPath) {
		if err := fulltext.Delete(ix.keywordPath); err != nil {
			return nil, err
		}
		report.KeywordDeleted = true
	}

	if ix.store == nil {
		return report, nil
	}
	name := ix.store.DefaultCollection()
	report.Collection = name
	exists, err := ix.store.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		if err := ix.store.DeleteCollection(ctx, name); err != nil {
			return nil, fmt.Errorf("deleting collection %s: %w", name, err)
		}
		report.CollectionDeleted = true
	}
	return report, nil
}
