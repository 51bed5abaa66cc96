package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matsen/research-assistant/internal/clipboard"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/export"
	"github.com/matsen/research-assistant/internal/session"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 16 // Default number of search/recommend results
	DefaultMaxPapers   = 100

	SearchTitleMaxLen = 70
	AuthorsShown      = 3
	TextWrapWidth     = 68
)

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Fprintf(stdout, format, args...)
}

// printError reports err in the selected output format.
func printError(err error) {
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return
	}
	outputJSON(ErrorResponse{Error: err.Error(), Code: exitCode(err)})
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// PaperResult is a paper in search and recommend output.
type PaperResult struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Year       int      `json:"year,omitempty"`
	Link       string   `json:"link,omitempty"`
	Similarity float32  `json:"similarity"`
	Abstract   string   `json:"abstract,omitempty"`
}

func toPaperResult(r vectorindex.Result, includeAbstract bool) PaperResult {
	md := r.Document.Metadata
	authors := md.Authors()
	if authors == nil {
		authors = []string{}
	}
	p := PaperResult{
		Key:        r.Key.String(),
		Title:      r.Document.Title(),
		Authors:    authors,
		Year:       md.Int(document.KeyPublished),
		Link:       md.String(document.KeyLink),
		Similarity: r.Similarity,
	}
	if includeAbstract {
		p.Abstract = r.Document.Content
	}
	return p
}

// printPaperHuman prints one numbered result.
func printPaperHuman(i int, p PaperResult) {
	outputHuman("%d. [%.2f] %s\n", i+1, p.Similarity, truncateString(p.Title, SearchTitleMaxLen))
	byline := formatAuthorsShort(p.Authors, AuthorsShown)
	if p.Year > 0 {
		byline = fmt.Sprintf("%s (%d)", byline, p.Year)
	}
	outputHuman("   %s\n", byline)
	if p.Link != "" {
		outputHuman("   %s\n", p.Link)
	}
}

// printStatsHuman prints ingest totals.
func printStatsHuman(s session.BuildStats) {
	outputHuman("Fetched:    %d\n", s.Fetched)
	outputHuman("New:        %d\n", s.New)
	outputHuman("Duplicates: %d\n", s.Duplicates)
	if s.Reindexed > 0 {
		outputHuman("Reindexed:  %d\n", s.Reindexed)
	}
	outputHuman("Total:      %d\n", s.Total)
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatAuthorsShort lists up to n authors, then "et al.".
func formatAuthorsShort(authors []string, n int) string {
	switch {
	case len(authors) == 0:
		return "(no authors)"
	case len(authors) <= n:
		return strings.Join(authors, ", ")
	default:
		return strings.Join(authors[:n], ", ") + " et al."
	}
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	lineLen := 0
	for i, w := range words {
		if i > 0 {
			if lineLen+1+len(w) > width {
				b.WriteString("\n" + indent)
				lineLen = 0
			} else {
				b.WriteByte(' ')
				lineLen++
			}
		}
		b.WriteString(w)
		lineLen += len(w)
	}
	return b.String()
}

// outputBibTeX prints docs as BibTeX and optionally copies them to the
// clipboard. A missing clipboard is reported on stderr, not as a failure.
func outputBibTeX(ctx context.Context, docs []document.Document, copyToClipboard bool) error {
	bib := export.ToBibTeXList(docs)
	outputHuman("%s", bib)
	if !copyToClipboard {
		return nil
	}
	if err := clipboard.Copy(ctx, bib); err != nil {
		if errors.Is(err, clipboard.ErrClipboardUnavailable) {
			fmt.Fprintln(os.Stderr, "clipboard unavailable (install pbcopy, wl-copy, xclip or xsel); entries printed above")
			return nil
		}
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Copied %d entries to clipboard\n", len(docs))
	return nil
}
