package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.Provider:
//   - "chromem" (default): embedded database under cfg.Chromem.Path
//   - "qdrant": external Qdrant server over gRPC
func NewStore(ctx context.Context, cfg config.VectorConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		path := cfg.Chromem.Path
		if path != "" {
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return nil, fmt.Errorf("expanding chromem path: %w", err)
			}
			path = expanded
		}
		return NewChromemStore(ChromemConfig{
			Path:       path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Collection,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			Collection:     cfg.Collection,
			MaxRetries:     cfg.Qdrant.RetryAttempts,
			RequestTimeout: cfg.Qdrant.RequestTimeout.Duration(),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
