package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/llm"
	"github.com/matsen/research-assistant/internal/session"
)

var (
	recommendLimit  int
	recommendBibTeX bool
	recommendCopy   bool
)

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().IntVarP(&recommendLimit, "limit", "l", DefaultSearchLimit, "Number of abstracts to label")
	recommendCmd.Flags().BoolVar(&recommendBibTeX, "bibtex", false, "Print the highly recommended papers as BibTeX entries")
	recommendCmd.Flags().BoolVar(&recommendCopy, "copy", false, "With --bibtex, also copy the entries to the clipboard")
}

// Recommendation is a labelled paper in recommend output.
type Recommendation struct {
	PaperResult
	Score             int      `json:"score"`
	Topics            []string `json:"topics"`
	Reasoning         string   `json:"reasoning"`
	HighlyRecommended bool     `json:"highly_recommended"`
}

// RecommendResponse is the response for the recommend command.
type RecommendResponse struct {
	Collection        string           `json:"collection"`
	Question          string           `json:"question"`
	Results           []Recommendation `json:"results"`
	Total             int              `json:"total"`
	HighlyRecommended int              `json:"highly_recommended"`
	Model             string           `json:"model"`
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <collection> <question>",
	Short: "Label the closest abstracts with reading recommendations",
	Long: fmt.Sprintf(`Find the abstracts closest to the question and ask the language model to
score each from 1 to 5 for relevance, with topics and a short reason.
Papers scoring %d or more are highly recommended.

Requires OPENAI_API_KEY (or openai_api_key in the config file).

Example:
  ra recommend "JWST discoveries" "How did reionization proceed?"`, llm.RecommendThreshold),
	Args: cobra.ExactArgs(2),
	RunE: runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[1])
	if question == "" {
		return fmt.Errorf("question cannot be empty")
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

	if err := checkOllama(ctx, cfg); err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.Recommend(ctx, question, recommendLimit, llm.NewPaperScorer(completer))
	if err != nil {
		return err
	}

	if recommendBibTeX {
		var docs []document.Document
		for _, r := range recs {
			if r.Label.HighlyRecommended() {
				docs = append(docs, r.Document)
			}
		}
		return outputBibTeX(ctx, docs, recommendCopy)
	}

	resp := RecommendResponse{
		Collection: s.Namespace(),
		Question:   question,
		Results:    toRecommendations(recs, !humanOutput),
		Model:      completer.Model(),
	}
	resp.Total = len(resp.Results)
	for _, r := range resp.Results {
		if r.HighlyRecommended {
			resp.HighlyRecommended++
		}
	}

	if humanOutput {
		outputHuman("Question: %s\n", question)
		outputHuman("%d of %d abstracts highly recommended\n\n", resp.HighlyRecommended, resp.Total)
		for i, r := range resp.Results {
			printPaperHuman(i, r.PaperResult)
			marker := ""
			if r.HighlyRecommended {
				marker = " (highly recommended)"
			}
			outputHuman("   Score %d/5%s\n", r.Score, marker)
			if len(r.Topics) > 0 {
				outputHuman("   Topics: %s\n", strings.Join(r.Topics, ", "))
			}
			if r.Reasoning != "" {
				outputHuman("   %s\n", wrapText(r.Reasoning, TextWrapWidth, "   "))
			}
			outputHuman("\n")
		}
		return nil
	}
	return outputJSON(resp)
}

func toRecommendations(recs []session.Recommendation, includeAbstract bool) []Recommendation {
	out := make([]Recommendation, len(recs))
	for i, r := range recs {
		out[i] = Recommendation{
			PaperResult:       toPaperResult(r.Result, includeAbstract),
			Score:             r.Label.Score,
			Topics:            nonNilStrings(r.Label.Topics),
			Reasoning:         r.Label.Reasoning,
			HighlyRecommended: r.Label.HighlyRecommended(),
		}
	}
	return out
}
