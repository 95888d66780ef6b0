// Package config defines the obsidx configuration schema.
// Configuration is an explicit struct passed into constructors; there are
// no process-wide mutable defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-vault configuration file.
const ConfigFileName = ".obsidx.yaml"

// Config represents the complete obsidx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vault      VaultConfig      `yaml:"vault" json:"vault"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Preserve   PreserveConfig   `yaml:"preserve" json:"preserve"`
	Links      LinksConfig      `yaml:"links" json:"links"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// VaultConfig configures which files in the vault are indexed.
type VaultConfig struct {
	// Extensions are the file extensions treated as notes.
	Extensions []string `yaml:"extensions" json:"extensions"`

	// ExcludeDirs are directory names skipped during scanning.
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`

	// MaxFileSize is the maximum note size in bytes (0 = 10MB default).
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// ChunkingConfig configures the header-based chunker.
type ChunkingConfig struct {
	// MaxTokens is the token budget per chunk.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// OverlapTokens is the token overlap prepended to continuation chunks.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`

	// SplitByParagraph enables paragraph splitting for oversized sections.
	// When false, oversized sections fall back to word-boundary splitting.
	SplitByParagraph bool `yaml:"split_by_paragraph" json:"split_by_paragraph"`

	// Estimator selects the token estimation strategy: "char" or "word".
	Estimator string `yaml:"estimator" json:"estimator"`

	// CharsPerToken is the character-to-token ratio for the char estimator.
	CharsPerToken float64 `yaml:"chars_per_token" json:"chars_per_token"`
}

// PreserveConfig configures content preservation of atomic blocks.
type PreserveConfig struct {
	// MinBlockLength is the minimum length for a block to be preserved.
	// Shorter spans (tiny inline code) stay in the prose.
	MinBlockLength int `yaml:"min_block_length" json:"min_block_length"`

	// MostlyPreservedThreshold is the residual-text fraction below which a
	// section counts as mostly preserved content (default 0.2).
	MostlyPreservedThreshold float64 `yaml:"mostly_preserved_threshold" json:"mostly_preserved_threshold"`
}

// LinksConfig configures wiki-link target normalization.
type LinksConfig struct {
	// NormalizeChars are the characters replaced in link targets.
	// Angle brackets and quotes are intentionally absent so technical
	// references like Map<K,V> survive untouched.
	NormalizeChars string `yaml:"normalize_chars" json:"normalize_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name for the ollama provider.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding vector dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of texts embedded per request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// MaxRetries is the retry budget for transient embedding failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// CacheSize is the LRU capacity of the embedding cache (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexingConfig configures the orchestrator.
type IndexingConfig struct {
	// BatchSize is the number of files per processing batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxConcurrency bounds the per-batch worker fan-out (0 = NumCPU).
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// AbortOnError stops the run on the first file-level error.
	AbortOnError bool `yaml:"abort_on_error" json:"abort_on_error"`

	// MaxIncrementalChanges is the changed-file ceiling above which an
	// incremental run falls back to a full run.
	MaxIncrementalChanges int `yaml:"max_incremental_changes" json:"max_incremental_changes"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			Extensions:  []string{".md", ".markdown"},
			ExcludeDirs: []string{".git", ".obsidian", ".trash", "node_modules"},
			MaxFileSize: 10 * 1024 * 1024,
		},
		Chunking: ChunkingConfig{
			MaxTokens:        512,
			OverlapTokens:    0,
			SplitByParagraph: true,
			Estimator:        "char",
			CharsPerToken:    4,
		},
		Preserve: PreserveConfig{
			MinBlockLength:           10,
			MostlyPreservedThreshold: 0.2,
		},
		Links: LinksConfig{
			NormalizeChars: `\/:*?|`,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			MaxRetries: 3,
			CacheSize:  1024,
		},
		Indexing: IndexingConfig{
			BatchSize:             50,
			MaxConcurrency:        runtime.NumCPU(),
			AbortOnError:          false,
			MaxIncrementalChanges: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the vault root, merging over defaults.
// A missing config file is not an error; defaults apply.
func Load(vaultRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(vaultRoot, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the vault root.
func (c *Config) Save(vaultRoot string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(vaultRoot, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than max_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}
	if c.Chunking.CharsPerToken <= 0 {
		return fmt.Errorf("chunking.chars_per_token must be positive, got %v", c.Chunking.CharsPerToken)
	}
	switch c.Chunking.Estimator {
	case "char", "word":
	default:
		return fmt.Errorf("chunking.estimator must be \"char\" or \"word\", got %q", c.Chunking.Estimator)
	}
	if t := c.Preserve.MostlyPreservedThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("preserve.mostly_preserved_threshold must be in (0, 1], got %v", t)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.MaxConcurrency < 0 {
		return fmt.Errorf("indexing.max_concurrency must not be negative, got %d", c.Indexing.MaxConcurrency)
	}
	return nil
}

// applyEnv applies environment variable overrides for selected knobs.
func (c *Config) applyEnv() {
	if host := os.Getenv("OBSIDX_OLLAMA_HOST"); host != "" {
		c.Embeddings.OllamaHost = host
	}
	if level := os.Getenv("OBSIDX_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("OBSIDX_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.MaxConcurrency = n
		}
	}
}

// DataDir returns the obsidx data directory for a vault.
func DataDir(vaultRoot string) string {
	return filepath.Join(vaultRoot, ".obsidx")
}
