// Package config handles the global research-assistant configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// Vector index backends.
const (
	IndexLocal    = "local"
	IndexPGVector = "pgvector"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	// DefaultCacheDir holds per-collection caches and indexes.
	DefaultCacheDir = "~/.cache/ra"
	// SQLiteFile is the database file used by the sqlite store.
	SQLiteFile = "cache.db"
	// LLMCacheFile is the database file holding cached model responses.
	LLMCacheFile = "llm_cache.db"
	// IndexFile is the local vector index file inside a collection directory.
	IndexFile = "index.gob"
)

// ValidStores lists the supported store values.
var ValidStores = []string{StoreFile, StoreSQLite, StoreNATS, StoreMemory}

// ValidIndexes lists the supported index values.
var ValidIndexes = []string{IndexLocal, IndexPGVector}

// ValidProviders lists the supported embedding providers.
var ValidProviders = []string{ProviderOllama, ProviderOpenAI}

// ErrInvalidConfig is matched by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is stored in $XDG_CONFIG_HOME/ra/config.yml.
type Config struct {
	CacheDir     string          `yaml:"cache_dir,omitempty"`
	Store        string          `yaml:"store,omitempty"`
	NATSURL      string          `yaml:"nats_url,omitempty"`
	Index        string          `yaml:"index,omitempty"`
	PostgresDSN  string          `yaml:"postgres_dsn,omitempty"`
	OllamaURL    string          `yaml:"ollama_url,omitempty"`
	Embedding    EmbeddingConfig `yaml:"embedding,omitempty"`
	LLMModel     string          `yaml:"llm_model,omitempty"`
	OpenAIAPIKey string          `yaml:"openai_api_key,omitempty"`
}

// EmbeddingConfig selects and tunes the embedding provider.
// Zero values fall back to the provider's defaults.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider,omitempty"`
	Model       string `yaml:"model,omitempty"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset backend fields and expands ~ in CacheDir.
func (c *Config) ApplyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	c.CacheDir = ExpandPath(c.CacheDir)
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.Index == "" {
		c.Index = IndexLocal
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOllama
	}
}

// Validate checks backend names and the settings each backend requires.
func (c *Config) Validate() error {
	if !contains(ValidStores, c.Store) {
		return fmt.Errorf("%w: store %q (valid: %v)", ErrInvalidConfig, c.Store, ValidStores)
	}
	if !contains(ValidIndexes, c.Index) {
		return fmt.Errorf("%w: index %q (valid: %v)", ErrInvalidConfig, c.Index, ValidIndexes)
	}
	if !contains(ValidProviders, c.Embedding.Provider) {
		return fmt.Errorf("%w: embedding provider %q (valid: %v)", ErrInvalidConfig, c.Embedding.Provider, ValidProviders)
	}
	if c.Store == StoreNATS && c.NATSURL == "" {
		return fmt.Errorf("%w: store %q requires nats_url", ErrInvalidConfig, StoreNATS)
	}
	if c.Index == IndexPGVector && c.PostgresDSN == "" {
		return fmt.Errorf("%w: index %q requires postgres_dsn", ErrInvalidConfig, IndexPGVector)
	}
	if c.Index == IndexPGVector && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: index %q requires embedding.dimensions", ErrInvalidConfig, IndexPGVector)
	}
	if c.Embedding.Provider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: embedding provider %q requires an OpenAI API key", ErrInvalidConfig, ProviderOpenAI)
	}
	if c.Embedding.Dimensions < 0 || c.Embedding.BatchSize < 0 || c.Embedding.Concurrency < 0 {
		return fmt.Errorf("%w: embedding dimensions, batch_size and concurrency must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SQLitePath returns the path to the shared sqlite cache database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.CacheDir, SQLiteFile)
}

// LLMCachePath returns the path to the model response cache.
func (c *Config) LLMCachePath() string {
	return filepath.Join(c.CacheDir, LLMCacheFile)
}

// IndexPath returns the path to a collection's local vector index.
func (c *Config) IndexPath(namespace string) string {
	return filepath.Join(c.CacheDir, namespace, IndexFile)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
