package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/research-assistant/internal/document"
)

var (
	searchLimit  int
	searchBibTeX bool
	searchCopy   bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchBibTeX, "bibtex", false, "Print the results as BibTeX entries")
	searchCmd.Flags().BoolVar(&searchCopy, "copy", false, "With --bibtex, also copy the entries to the clipboard")
}

// SearchResponse is the response for the search command.
type SearchResponse struct {
	Collection string        `json:"collection"`
	Question   string        `json:"question"`
	Results    []PaperResult `json:"results"`
	Total      int           `json:"total"`
}

var searchCmd = &cobra.Command{
	Use:   "search <collection> <question>",
	Short: "Find the abstracts closest to a question",
	Long: `Embed the question and return the most similar abstracts in the
collection, best first.

Example:
  ra search "JWST discoveries" "What are the earliest galaxies observed?"`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	if err := checkOllama(ctx, cfg); err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.Similar(ctx, question, searchLimit)
	if err != nil {
		return err
	}

	if searchBibTeX {
		docs := make([]document.Document, len(results))
		for i, r := range results {
			docs[i] = r.Document
		}
		return outputBibTeX(ctx, docs, searchCopy)
	}

	papers := make([]PaperResult, len(results))
	for i, r := range results {
		papers[i] = toPaperResult(r, !humanOutput)
	}

	if humanOutput {
		outputHuman("Search: %q in %s\n", question, s.DisplayName())
		outputHuman("Found %d abstracts\n\n", len(papers))
		for i, p := range papers {
			printPaperHuman(i, p)
			outputHuman("\n")
		}
		return nil
	}
	return outputJSON(SearchResponse{
		Collection: s.Namespace(),
		Question:   question,
		Results:    papers,
		Total:      len(papers),
	})
}
