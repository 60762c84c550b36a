package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/embeddings"
	"github.com/fyrsmithlabs/helpdesk/internal/events"
	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/ingest"
	"github.com/fyrsmithlabs/helpdesk/internal/llm"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/fyrsmithlabs/helpdesk/internal/secrets"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
)

// Registry provides access to all helpdesk services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Config() *config.Config
	Logger() *logging.Logger
	Scrubber() *secrets.Scrubber
	Embedder() embeddings.Provider
	VectorStore() vectorstore.Store
	Indexer() *ingest.Indexer

	// KeywordIndex, Tools and LLM are nil for an indexing-only registry.
	KeywordIndex() *fulltext.Index
	Tools() *tools.Registry
	LLM() llm.Client

	// Events is nil unless nats.enabled is set.
	Events() *events.Publisher

	// NewAgent builds an orchestrator from the configured services. Extra
	// options are applied after the configured ones.
	NewAgent(opts ...agent.Option) (*agent.Orchestrator, error)

	// Close releases every service in reverse construction order.
	Close() error
}

// Options configures the registry with service instances. Nil fields are
// built from Config by New and NewIndexing.
type Options struct {
	Config       *config.Config
	Logger       *logging.Logger
	Scrubber     *secrets.Scrubber
	Embedder     embeddings.Provider
	VectorStore  vectorstore.Store
	KeywordIndex *fulltext.Index
	LLM          llm.Client
	Events       *events.Publisher
}

// registry is the concrete implementation of Registry.
type registry struct {
	cfg          *config.Config
	logger       *logging.Logger
	scrubber     *secrets.Scrubber
	embedder     embeddings.Provider
	vectorStore  vectorstore.Store
	keywordIndex *fulltext.Index
	indexer      *ingest.Indexer
	tools        *tools.Registry
	llm          llm.Client
	events       *events.Publisher
	prompts      *agent.Prompts

	closers []func() error
}

// NewIndexing builds the services `index create` and `index delete` need:
// embeddings, the vector store and the indexer. No model client is created.
func NewIndexing(ctx context.Context, opts Options) (Registry, error) {
	r, err := newBase(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := r.buildIndexer(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// New builds the full set of services for answering questions. The keyword
// index must already exist.
func New(ctx context.Context, opts Options) (Registry, error) {
	r, err := newBase(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := r.buildAgentDeps(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func newBase(ctx context.Context, opts Options) (*registry, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	r := &registry{
		cfg:    opts.Config,
		logger: opts.Logger,
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	zl := r.logger.Underlying()

	r.scrubber = opts.Scrubber
	if r.scrubber == nil {
		s, err := secrets.New(secrets.FromSettings(r.cfg.Secrets))
		if err != nil {
			return nil, fmt.Errorf("creating secret scrubber: %w", err)
		}
		r.scrubber = s
	}

	r.embedder = opts.Embedder
	if r.embedder == nil {
		p, err := embeddings.NewProvider(r.cfg.Embeddings, zl)
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		r.embedder = p
		r.closers = append(r.closers, p.Close)
	}

	r.vectorStore = opts.VectorStore
	if r.vectorStore == nil {
		s, err := vectorstore.NewStore(ctx, r.cfg.Vector, r.embedder, zl)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("creating vector store: %w", err)
		}
		r.vectorStore = s
		r.closers = append(r.closers, s.Close)
	}

	r.keywordIndex = opts.KeywordIndex
	r.llm = opts.LLM
	r.events = opts.Events
	return r, nil
}

func (r *registry) keywordPath() (string, error) {
	path, err := config.ExpandPath(r.cfg.Keyword.Path)
	if err != nil {
		return "", fmt.Errorf("expanding keyword index path: %w", err)
	}
	return path, nil
}

func (r *registry) buildIndexer() error {
	path, err := r.keywordPath()
	if err != nil {
		return err
	}
	ix, err := ingest.NewIndexer(ingest.Config{
		KeywordPath:  path,
		Dimension:    r.embedder.Dimension(),
		ChunkSize:    r.cfg.Keyword.ChunkSize,
		ChunkOverlap: r.cfg.Keyword.ChunkOverlap,
	}, r.vectorStore, r.logger.Underlying())
	if err != nil {
		return fmt.Errorf("creating indexer: %w", err)
	}
	r.indexer = ix
	return nil
}

func (r *registry) buildAgentDeps() error {
	zl := r.logger.Underlying()

	if r.keywordIndex == nil {
		path, err := r.keywordPath()
		if err != nil {
			return err
		}
		idx, err := fulltext.Open(path, zl)
		if err != nil {
			if errors.Is(err, fulltext.ErrIndexNotFound) {
				return fmt.Errorf("%w at %s (run `helpdesk index create` first)", err, path)
			}
			return fmt.Errorf("opening keyword index: %w", err)
		}
		r.keywordIndex = idx
		r.closers = append(r.closers, idx.Close)
	}

	toolLogger := r.logger.Named("tools")
	reg, err := tools.NewRegistry(
		tools.NewManualSearch(r.keywordIndex, tools.Options{
			MaxResults: r.cfg.Keyword.MaxResults,
			Scrubber:   r.scrubber,
			Logger:     toolLogger,
		}),
		tools.NewQASearch(r.vectorStore, tools.Options{
			MaxResults: r.cfg.Vector.MaxResults,
			Scrubber:   r.scrubber,
			Logger:     toolLogger,
		}),
	)
	if err != nil {
		return fmt.Errorf("creating tool registry: %w", err)
	}
	r.tools = reg

	prompts, err := agent.LoadPrompts(r.cfg.Agent.PromptsFile)
	if err != nil {
		return err
	}
	r.prompts = prompts

	if r.llm == nil {
		client, err := llm.NewOpenAI(r.cfg.LLM, r.logger.Named("llm"))
		if err != nil {
			return fmt.Errorf("creating llm client: %w", err)
		}
		r.llm = client
	}

	if r.events == nil && r.cfg.NATS.Enabled {
		pub, err := events.Connect(r.cfg.NATS, r.logger.Named("events"))
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		r.events = pub
		r.closers = append(r.closers, pub.Close)
	}

	r.logger.Info(context.Background(), "services initialized",
		zap.Strings("tools", reg.Names()),
		zap.String("vector_provider", r.cfg.Vector.Provider),
		zap.Bool("events", r.events != nil),
	)
	return nil
}

func (r *registry) NewAgent(opts ...agent.Option) (*agent.Orchestrator, error) {
	if r.tools == nil || r.llm == nil {
		return nil, errors.New("registry was built without agent services")
	}
	base := []agent.Option{
		agent.WithAgentConfig(r.cfg.Agent),
		agent.WithPrompts(r.prompts),
		agent.WithLogger(r.logger.Named("agent")),
	}
	if r.events != nil {
		base = append(base, agent.WithProgress(r.events.Progress()))
	}
	return agent.New(r.llm, r.tools, append(base, opts...)...)
}

func (r *registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *registry) Config() *config.Config         { return r.cfg }
func (r *registry) Logger() *logging.Logger        { return r.logger }
func (r *registry) Scrubber() *secrets.Scrubber    { return r.scrubber }
func (r *registry) Embedder() embeddings.Provider  { return r.embedder }
func (r *registry) VectorStore() vectorstore.Store { return r.vectorStore }
func (r *registry) Indexer() *ingest.Indexer       { return r.indexer }
func (r *registry) KeywordIndex() *fulltext.Index  { return r.keywordIndex }
func (r *registry) Tools() *tools.Registry         { return r.tools }
func (r *registry) LLM() llm.Client                { return r.llm }
func (r *registry) Events() *events.Publisher      { return r.events }
