package arxiv

import (
	"errors"
	"fmt"
)

// Errors returned by the arXiv client for whole-request failures.
// Malformed individual entries are skipped, not reported.
var (
	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with arXiv")

	// ErrRateLimited indicates arXiv refused the request for exceeding its rate limit.
	ErrRateLimited = errors.New("arXiv rate limit exceeded")

	// ErrInvalidResponse indicates an unexpected or unparsable API response.
	ErrInvalidResponse = errors.New("invalid response from arXiv")
)

// APIError represents a non-success HTTP status or an error entry in the feed.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arXiv API error (status %d): %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrInvalidResponse) true.
func (e *APIError) Is(target error) bool {
	return target == ErrInvalidResponse
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
