package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "ra"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// Environment variables that override file settings.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvCacheDir     = "RA_CACHE_DIR"
	EnvNATSURL      = "RA_NATS_URL"
	EnvPostgresDSN  = "RA_POSTGRES_DSN"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *Config

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/ra/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadDotEnv loads a .env file from the working directory when present,
// without overriding variables already set.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// LoadGlobalConfig loads the global configuration file, applies
// environment overrides and defaults, and caches the result.
// A missing file yields the defaults, not an error.
func LoadGlobalConfig() (*Config, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg, err := LoadFile(GlobalConfigPath())
	if err != nil {
		return nil, err
	}

	globalConfigCache = cfg
	return cfg, nil
}

// LoadFile reads the configuration at path without caching.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATSURL = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.PostgresDSN = v
	}
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// HelpfulConfigMessage explains where the configuration lives.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`Tip: create %s to choose backends:
  mkdir -p %s
  cat > %s <<EOF
store: sqlite
embedding:
  provider: ollama
EOF`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
