// Package arxiv fetches paper abstracts from the arXiv Atom API.
package arxiv

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/research-assistant/internal/document"
)

const (
	// BaseURL is the arXiv query endpoint.
	BaseURL = "https://export.arxiv.org/api/query"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RequestInterval is the minimum spacing between requests asked for by
	// the arXiv API terms of use.
	RequestInterval = 3 * time.Second

	// PageSize is the number of entries requested per call.
	PageSize = 100

	// DefaultMaxResults applies when a query does not set MaxResults.
	DefaultMaxResults = 5
)

// Client is a rate-limited HTTP client for the arXiv API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRateLimit overrides the request rate.
func WithRateLimit(limit rate.Limit) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, 1)
	}
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new arXiv API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(RequestInterval), 1),
		baseURL:    BaseURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to q.MaxResults documents, fetching as many pages as
// needed. Entries that fail to parse are skipped, so fewer documents than
// requested may be returned even when more exist.
func (c *Client) Search(ctx context.Context, q Query) ([]document.Document, error) {
	if q.Terms == "" {
		return nil, fmt.Errorf("empty search query")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortRelevance
	}

	var docs []document.Document
	for start := 0; start < limit; {
		n := min(PageSize, limit-start)
		p, err := c.fetchPage(ctx, q.Terms, sortBy, start, n)
		if err != nil {
			return nil, err
		}
		docs = append(docs, p.docs...)
		start += p.entries

		if p.entries < n || (p.total > 0 && start >= p.total) {
			break
		}
	}

	c.logger.Debug("arXiv search complete", "query", q.Terms, "count", len(docs))
	return docs, nil
}

func (c *Client) fetchPage(ctx context.Context, terms string, sortBy SortBy, start, n int) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("search_query", terms)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(n))
	params.Set("sortBy", string(sortBy))
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		return nil, err
	}

	return parseFeed(resp.Body, c.logger)
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return nil
}
