package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the default OpenAI embeddings model.
const DefaultOpenAIModel = oai.EmbeddingModelTextEmbedding3Small

// Ensure OpenAIProvider implements Provider.
var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider generates embeddings using the OpenAI API.
type OpenAIProvider struct {
	client oai.Client
	model  string
}

// openAIConfig holds optional configuration for the OpenAI provider.
type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAIConfig)

// WithOpenAIBaseURL overrides the default OpenAI API base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithOpenAITimeout sets a per-request HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// NewOpenAIProvider creates an OpenAI embeddings provider.
// If model is empty, DefaultOpenAIModel is used.
func NewOpenAIProvider(apiKey, model string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries belong to the caller; a failed batch surfaces immediately.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &OpenAIProvider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Embed generates embeddings for texts with a single API request.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providerError(-1, fmt.Errorf("openai embeddings: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, providerError(-1, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([]Embedding, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, providerError(-1, fmt.Errorf("openai embeddings: unexpected index %d", e.Index))
		}
		out[e.Index] = Embedding{Vector: float64ToFloat32(e.Embedding)}
	}
	return out, nil
}

// ModelName returns the name of the embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return openAIModelDimensions(p.model)
}

// openAIModelDimensions returns the embedding dimensions for known OpenAI models.
func openAIModelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
