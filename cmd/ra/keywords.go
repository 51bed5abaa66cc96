package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/arxiv"
	"github.com/matsen/research-assistant/internal/config"
	"github.com/matsen/research-assistant/internal/llm"
)

var keywordsNoExplore bool

func init() {
	rootCmd.AddCommand(keywordsCmd)
	keywordsCmd.Flags().BoolVar(&keywordsNoExplore, "no-explore", false, "Skip the exploratory arXiv search and refinement round")
}

// KeywordsResponse is the response for the keywords command.
type KeywordsResponse struct {
	Question string   `json:"question"`
	Initial  []string `json:"initial"`
	Refined  []string `json:"refined"`
	Keywords []string `json:"keywords"`
	Model    string   `json:"model"`
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords <question>",
	Short: "Suggest arXiv search keywords for a research question",
	Long: `Ask the language model for search keywords, run an exploratory arXiv
search with them, and ask again with the titles found to refine the list.

Requires OPENAI_API_KEY (or openai_api_key in the config file).

Example:
  ra keywords "How do galaxies form in the early universe?"`,
	Args: cobra.ExactArgs(1),
	RunE: runKeywords,
}

func runKeywords(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("research question cannot be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCompleter()

	var search llm.Searcher
	if !keywordsNoExplore {
		search = arxiv.NewClient(arxiv.WithLogger(logger))
	}
	sugg, err := llm.NewKeywordAgent(completer, search, logger).Suggest(ctx, question)
	if err != nil {
		return err
	}

	if humanOutput {
		outputHuman("Question: %s\n\n", question)
		for i, kw := range sugg.Keywords() {
			outputHuman("%2d. %s\n", i+1, kw)
		}
		return nil
	}
	return outputJSON(KeywordsResponse{
		Question: question,
		Initial:  nonNilStrings(sugg.Initial),
		Refined:  nonNilStrings(sugg.Refined),
		Keywords: nonNilStrings(sugg.Keywords()),
		Model:    completer.Model(),
	})
}

// chatModel is a Completer that reports its model name.
type chatModel interface {
	llm.Completer
	Model() string
}

// newCompleter builds the chat model used by keywords and recommend.
// Responses are cached under the cache directory unless --no-llm-cache is
// set. The returned func releases the cache.
func newCompleter(ctx context.Context, cfg *config.Config) (chatModel, func() error, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, nil, fmt.Errorf("%w: %s is not set (needed for language model commands)", config.ErrInvalidConfig, config.EnvOpenAIAPIKey)
	}
	c, err := llm.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.LLMModel)
	if err != nil {
		return nil, nil, err
	}
	if noLLMCache {
		return c, func() error { return nil }, nil
	}
	cached, err := llm.NewCachingCompleter(ctx, cfg.LLMCachePath(), c, c.Model(), logger)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
