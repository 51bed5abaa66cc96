package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates one embedding per input text. The result has the same
	// length and order as texts. On failure no partial result is returned.
	Embed(ctx context.Context, texts []string) ([]Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// ErrProvider is matched by every ProviderError.
var ErrProvider = errors.New("embedding provider error")

// ProviderError reports an embedding failure together with the index of the
// input that failed. Index is -1 when the provider cannot attribute the
// failure to a single input (e.g. a rejected batch request).
type ProviderError struct {
	Index int
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding input %d failed: %v", e.Index, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) true.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// providerError wraps err unless it already is a ProviderError.
// Context errors are passed through untouched so callers can tell
// cancellation apart from upstream failures.
func providerError(index int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Index: index, Err: err}
}
