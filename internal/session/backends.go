package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matsen/research-assistant/internal/config"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/kvstore/filestore"
	"github.com/matsen/research-assistant/internal/kvstore/memory"
	"github.com/matsen/research-assistant/internal/kvstore/natskv"
	"github.com/matsen/research-assistant/internal/kvstore/sqlitestore"
	"github.com/matsen/research-assistant/internal/vectorindex"
	"github.com/matsen/research-assistant/internal/vectorindex/local"
	"github.com/matsen/research-assistant/internal/vectorindex/pgvector"
)

// OpenStore opens the configured store backend for namespace.
func OpenStore(ctx context.Context, cfg *config.Config, namespace string) (kvstore.Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		st, err := filestore.Open(cfg.CacheDir, namespace)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreSQLite:
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath(), namespace)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreNATS:
		st, err := natskv.Connect(ctx, cfg.NATSURL, namespace)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreMemory:
		st, err := memory.New(namespace)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// OpenIndex opens the configured vector index for namespace.
func OpenIndex(ctx context.Context, cfg *config.Config, namespace string, dimensions int) (vectorindex.Index, error) {
	switch cfg.Index {
	case config.IndexLocal:
		idx, err := local.Open(cfg.CacheDir, namespace, dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.IndexPGVector:
		idx, err := pgvector.Open(ctx, cfg.PostgresDSN, namespace, dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: index %q", config.ErrInvalidConfig, cfg.Index)
	}
}

// ListCollections lists the collections of the configured index.
func ListCollections(ctx context.Context, cfg *config.Config) ([]vectorindex.Collection, error) {
	switch cfg.Index {
	case config.IndexLocal:
		return local.ListCollections(cfg.CacheDir)
	case config.IndexPGVector:
		pool, err := pgvector.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return pgvector.ListCollections(ctx, pool)
	default:
		return nil, fmt.Errorf("%w: index %q", config.ErrInvalidConfig, cfg.Index)
	}
}

// NewProvider builds the configured embedding provider, batched per the
// embedding settings.
func NewProvider(cfg *config.Config, logger *slog.Logger) (embedding.Provider, error) {
	var p embedding.Provider
	switch cfg.Embedding.Provider {
	case config.ProviderOllama:
		var opts []embedding.OllamaOption
		if cfg.OllamaURL != "" {
			opts = append(opts, embedding.WithBaseURL(cfg.OllamaURL))
		}
		if cfg.Embedding.Model != "" {
			opts = append(opts, embedding.WithModel(cfg.Embedding.Model))
		}
		if cfg.Embedding.Dimensions > 0 {
			opts = append(opts, embedding.WithDimensions(cfg.Embedding.Dimensions))
		}
		p = embedding.NewOllamaProvider(opts...)
	case config.ProviderOpenAI:
		op, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		p = op
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}

	if logger != nil {
		logger.Debug("embedding provider", "provider", cfg.Embedding.Provider, "model", p.ModelName(), "dimensions", p.Dimensions())
	}
	return embedding.Batched(p, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency), nil
}
