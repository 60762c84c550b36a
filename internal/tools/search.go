package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/schema"
	"github.com/fyrsmithlabs/helpdesk/internal/secrets"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
	"go.uber.org/zap"
)

const (
	// ManualToolName is the keyword search tool over product manuals.
	ManualToolName = "search_xyz_manual"

	// QAToolName is the similarity search tool over past support QA.
	QAToolName = "search_xyz_qa"

	// DefaultMaxResults is the hit limit of both tools.
	DefaultMaxResults = 3
)

// KeywordSearcher is the full-text index behind the manual tool.
type KeywordSearcher interface {
	Search(ctx context.Context, keywords string, limit int) ([]fulltext.Hit, error)
}

// VectorSearcher is the similarity index behind the QA tool.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
}

// Options are shared by both search tools.
type Options struct {
	MaxResults int
	Scrubber   *secrets.Scrubber
	Logger     *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

type manualArgs struct {
	Keywords string `json:"keywords" jsonschema:"Keyword used for full-text search"`
}

type qaArgs struct {
	Query string `json:"query" jsonschema:"Search query"`
}

var (
	manualSchema = schema.MustFor[manualArgs](ManualToolName)
	qaSchema     = schema.MustFor[qaArgs](QAToolName)
)

// ManualSearch runs keyword search over manual chunks.
type ManualSearch struct {
	index KeywordSearcher
	opts  Options
}

// NewManualSearch returns the search_xyz_manual tool.
func NewManualSearch(index KeywordSearcher, opts Options) *ManualSearch {
	return &ManualSearch{index: index, opts: opts.withDefaults()}
}

// Spec implements Tool.
func (t *ManualSearch) Spec() Spec {
	return Spec{
		Name: ManualToolName,
		Description: "Search the XYZ system manuals by keyword. Use it when the question " +
			"mentions error codes, technical terms or other identifiable keywords.",
		Parameters: manualSchema,
	}
}

// Invoke implements Tool.
func (t *ManualSearch) Invoke(ctx context.Context, raw json.RawMessage) ([]Hit, error) {
	var args manualArgs
	if err := manualSchema.Decode(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	t.opts.Logger.Info(ctx, "searching manuals by keyword", zap.String("keywords", args.Keywords))
	results, err := t.index.Search(ctx, args.Keywords, t.opts.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ManualToolName, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Content: t.opts.Scrubber.String(r.Content),
			Score:   score(r.Score),
			Source:  r.FileName,
		})
	}
	t.opts.Logger.Info(ctx, "manual search finished", zap.Int("hits", len(hits)))
	return hits, nil
}

// QASearch runs similarity search over past QA pairs.
type QASearch struct {
	store VectorSearcher
	opts  Options
}

// NewQASearch returns the search_xyz_qa tool.
func NewQASearch(store VectorSearcher, opts Options) *QASearch {
	return &QASearch{store: store, opts: opts.withDefaults()}
}

// Spec implements Tool.
func (t *QASearch) Spec() Spec {
	return Spec{
		Name: QAToolName,
		Description: "Search past XYZ support questions and answers by meaning. Use it " +
			"for natural-language questions similar to ones users asked before.",
		Parameters: qaSchema,
	}
}

// Invoke implements Tool.
func (t *QASearch) Invoke(ctx context.Context, raw json.RawMessage) ([]Hit, error) {
	var args qaArgs
	if err := qaSchema.Decode(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	t.opts.Logger.Info(ctx, "searching QA by query", zap.String("query", args.Query))
	results, err := t.store.Search(ctx, args.Query, t.opts.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", QAToolName, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Content: t.opts.Scrubber.String(r.Content),
			Score:   score(float64(r.Score)),
			Source:  r.FileName(),
		})
	}
	t.opts.Logger.Info(ctx, "QA search finished", zap.Int("hits", len(hits)))
	return hits, nil
}

var (
	_ Tool = (*ManualSearch)(nil)
	_ Tool = (*QASearch)(nil)
)
