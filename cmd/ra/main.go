// Package main provides the ra CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/config"
	"github.com/matsen/research-assistant/internal/embedcache"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/session"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	verbose     bool
	timeout     time.Duration
	configPath  string
	noLLMCache  bool

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

func main() {
	config.LoadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so every failure is reported here.
		printError(err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "ra",
	Short: "Research assistant for arXiv literature",
	Long: `ra builds searchable collections of arXiv abstracts.

Core features:
  - Keyword suggestions for a research question
  - Collections of abstracts, embedded once and cached per collection
  - Similarity search and LLM-labelled reading recommendations

Backends (cache store, vector index, embedding provider) are chosen in
~/.config/ra/config.yml. All commands output JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug details to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort the command after this long (0 = no limit)")
	rootCmd.PersistentFlags().BoolVar(&noLLMCache, "no-llm-cache", false, "Always query the language model instead of reusing cached responses")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/ra/config.yml)")
	rootCmd.Version = Version
}

// commandContext returns a context cancelled on interrupt or after --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(config.ExpandPath(configPath))
	} else {
		cfg, err = config.LoadGlobalConfig()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w\n\n%s", err, config.HelpfulConfigMessage())
	}
	return cfg, nil
}

// openSession opens a collection with the configured backends. reg may be
// nil to skip metrics.
func openSession(ctx context.Context, cfg *config.Config, name string, reg prometheus.Registerer) (*session.Session, error) {
	provider, err := session.NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps := session.Deps{Provider: provider, Logger: logger}
	if reg != nil {
		m, err := embedcache.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		deps.Metrics = m
	}
	return session.Open(ctx, cfg, name, deps)
}

// checkOllama verifies Ollama is reachable and has the embedding model
// before a command that embeds. Other providers are not checked.
func checkOllama(ctx context.Context, cfg *config.Config) error {
	if cfg.Embedding.Provider != config.ProviderOllama {
		return nil
	}
	var opts []embedding.OllamaOption
	if cfg.OllamaURL != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.OllamaURL))
	}
	if cfg.Embedding.Model != "" {
		opts = append(opts, embedding.WithModel(cfg.Embedding.Model))
	}
	provider := embedding.NewOllamaProvider(opts...)

	if err := provider.IsAvailable(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: Ollama is not running\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai", embedding.ErrProvider)
	}
	ok, err := provider.HasModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking model availability: %v", embedding.ErrProvider, err)
	}
	if !ok {
		return fmt.Errorf("%w: embedding model %q not found\n\nRun 'ollama pull %s' to download it.",
			embedding.ErrProvider, provider.ModelName(), provider.ModelName())
	}
	return nil
}
