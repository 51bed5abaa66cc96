// Package llm holds the language-model agents: keyword suggestion and
// paper scoring. Both talk to a model through the Completer interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// ErrInvalidOutput indicates model output that could not be parsed.
var ErrInvalidOutput = errors.New("invalid model output")

// Completer sends a single system + user exchange to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

var _ Completer = (*OpenAICompleter)(nil)

// OpenAICompleter implements Completer with the OpenAI chat completions API.
type OpenAICompleter struct {
	client      oai.Client
	model       string
	temperature float64
}

type completerConfig struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
}

// Option configures an OpenAICompleter.
type Option func(*completerConfig)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *completerConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *completerConfig) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the API default.
func WithTemperature(t float64) Option {
	return func(c *completerConfig) {
		c.temperature = t
	}
}

// NewOpenAICompleter creates a completer. An empty model selects DefaultModel.
func NewOpenAICompleter(apiKey, model string, opts ...Option) (*OpenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &completerConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAICompleter{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
	}, nil
}

// Model returns the configured chat model.
func (c *OpenAICompleter) Model() string { return c.model }

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(user))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature != 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
