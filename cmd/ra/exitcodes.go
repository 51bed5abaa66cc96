package main

import (
	"errors"

	"github.com/matsen/research-assistant/internal/config"
	"github.com/matsen/research-assistant/internal/embedcache"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/session"
)

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Invalid or incomplete configuration
	ExitStoreError    = 3 // Cache store unavailable
	ExitProviderError = 4 // Embedding provider failed or not available
	ExitCancelled     = 5 // Interrupted or timed out
	ExitSourceError   = 6 // arXiv search failed
)

// exitCode classifies err. Cancellation wins over the failure it
// interrupted.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case embedcache.IsCancelled(err):
		return ExitCancelled
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, kvstore.ErrStoreUnavailable):
		return ExitStoreError
	case errors.Is(err, embedding.ErrProvider):
		return ExitProviderError
	case errors.Is(err, session.ErrSource):
		return ExitSourceError
	default:
		return ExitError
	}
}
