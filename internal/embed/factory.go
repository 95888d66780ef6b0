package embed

import (
	"fmt"

	"github.com/obsidx/obsidx/internal/config"
	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// NewFromConfig builds the configured embedder, wrapped in the LRU cache
// unless caching is disabled.
func NewFromConfig(cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case "", "ollama":
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
		})
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, oerrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q (want ollama or static)", cfg.Provider), nil)
	}

	if cfg.CacheSize == 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
