package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultModel is the default embedding model.
	DefaultModel = "all-minilm:l6-v2"

	// DefaultDimensions is the output size of DefaultModel.
	DefaultDimensions = 384

	// DefaultTimeout bounds one Ollama request.
	DefaultTimeout = 30 * time.Second

	apiPathTags  = "/api/tags"
	apiPathEmbed = "/api/embed"

	// maxErrorBody caps how much of an error response ends up in messages.
	maxErrorBody = 512
)

var _ Provider = (*OllamaProvider)(nil)

// OllamaProvider embeds texts with a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithBaseURL sets the Ollama API base URL.
func WithBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected vector dimensions.
func WithDimensions(dims int) OllamaOption {
	return func(p *OllamaProvider) {
		p.dimensions = dims
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.client.Timeout = timeout
	}
}

// NewOllamaProvider creates an Ollama provider with the defaults above.
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    DefaultOllamaURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelName returns the name of the embedding model.
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

// Embed sends all texts in one /api/embed request. Inputs longer than the
// model's context are truncated by Ollama rather than rejected.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: p.model, Input: texts, Truncate: true}
	if err := p.call(ctx, http.MethodPost, apiPathEmbed, req, &result); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providerError(-1, err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, providerError(-1, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)))
	}

	out := make([]Embedding, len(texts))
	for i, vec := range result.Embeddings {
		if len(vec) != p.dimensions {
			return nil, providerError(i, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vec), p.dimensions))
		}
		out[i] = Embedding{Vector: vec}
	}
	return out, nil
}

// IsAvailable checks that the Ollama server answers.
func (p *OllamaProvider) IsAvailable(ctx context.Context) error {
	if _, err := p.Models(ctx); err != nil {
		return fmt.Errorf("ollama is not running: %w", err)
	}
	return nil
}

// HasModel reports whether the configured model has been pulled. A model
// configured without a tag matches its ":latest" variant.
func (p *OllamaProvider) HasModel(ctx context.Context) (bool, error) {
	models, err := p.Models(ctx)
	if err != nil {
		return false, fmt.Errorf("checking models: %w", err)
	}
	for _, name := range models {
		if name == p.model || name == p.model+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// Models lists the names of the locally available models.
func (p *OllamaProvider) Models(ctx context.Context) ([]string, error) {
	var result ollamaTagsResponse
	if err := p.call(ctx, http.MethodGet, apiPathTags, nil, &result); err != nil {
		return nil, err
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

// call sends an optional JSON body to path and decodes the JSON reply
// into out.
func (p *OllamaProvider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// formatErrorBody reads at most maxErrorBody bytes of an error reply.
func formatErrorBody(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, maxErrorBody+1))
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name string `json:"name"`
}
