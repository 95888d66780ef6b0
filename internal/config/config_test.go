package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Contains(t, cfg.Vault.Extensions, ".md")
	assert.NotContains(t, cfg.Links.NormalizeChars, "<",
		"angle brackets must survive link normalization by default")
	assert.NotContains(t, cfg.Links.NormalizeChars, `"`)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Chunking.MaxTokens, cfg.Chunking.MaxTokens)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `version: 1
chunking:
  max_tokens: 256
  overlap_tokens: 32
  split_by_paragraph: true
  estimator: word
  chars_per_token: 4
embeddings:
  provider: static
  dimensions: 256
  batch_size: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunking.MaxTokens)
	assert.Equal(t, "word", cfg.Chunking.Estimator)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Indexing.BatchSize, cfg.Indexing.BatchSize)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("chunking: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tokens", func(c *Config) { c.Chunking.MaxTokens = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapTokens = -1 }},
		{"overlap >= budget", func(c *Config) { c.Chunking.OverlapTokens = c.Chunking.MaxTokens }},
		{"unknown estimator", func(c *Config) { c.Chunking.Estimator = "neural" }},
		{"bad threshold", func(c *Config) { c.Preserve.MostlyPreservedThreshold = 1.5 }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"zero batch", func(c *Config) { c.Indexing.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OBSIDX_OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OBSIDX_MAX_CONCURRENCY", "3")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, 3, cfg.Indexing.MaxConcurrency)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Chunking.MaxTokens = 384

	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 384, loaded.Chunking.MaxTokens)
}
