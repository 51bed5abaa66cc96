package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/research-assistant/internal/arxiv"
	"github.com/matsen/research-assistant/internal/document"
)

// ErrSource is matched by failures of the document source.
var ErrSource = errors.New("document source error")

// Source searches for documents. *arxiv.Client satisfies it.
type Source interface {
	Search(ctx context.Context, q arxiv.Query) ([]document.Document, error)
}

// Progress reports the outcome of one keyword during Build.
type Progress struct {
	Keyword string      `json:"keyword"`
	Step    int         `json:"step"`
	Steps   int         `json:"steps"`
	Stats   IngestStats `json:"stats"`
}

// ProgressFunc receives progress after each keyword.
type ProgressFunc func(Progress)

// BuildStats totals a Build run.
type BuildStats struct {
	Fetched    int `json:"fetched"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Reindexed  int `json:"reindexed,omitempty"`
	Total      int `json:"total"`
}

// Build queries source once per keyword, splitting maxPapers across the
// keywords, and ingests each batch. progress may be nil.
func (s *Session) Build(ctx context.Context, source Source, keywords []string, maxPapers int, sortBy arxiv.SortBy, progress ProgressFunc) (BuildStats, error) {
	var kws []string
	for _, kw := range keywords {
		if arxiv.BuildQuery([]string{kw}) != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 {
		return BuildStats{}, fmt.Errorf("no keywords given")
	}
	if maxPapers < len(kws) {
		maxPapers = len(kws)
	}

	var stats BuildStats
	for i, kw := range kws {
		n := maxPapers / len(kws)
		if i < maxPapers%len(kws) {
			n++
		}

		docs, err := source.Search(ctx, arxiv.Query{
			Terms:      arxiv.BuildQuery([]string{kw}),
			MaxResults: n,
			SortBy:     sortBy,
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, fmt.Errorf("%w: keyword %q: %w", ErrSource, kw, err)
		}

		ing, err := s.Ingest(ctx, docs)
		if err != nil {
			return stats, fmt.Errorf("keyword %q: %w", kw, err)
		}
		stats.Fetched += ing.Fetched
		stats.New += ing.New
		stats.Duplicates += ing.Duplicates
		stats.Reindexed += ing.Reindexed
		stats.Total = ing.Total

		s.logger.Debug("keyword done", "keyword", kw, "step", i+1, "new", ing.New)
		if progress != nil {
			progress(Progress{Keyword: kw, Step: i + 1, Steps: len(kws), Stats: ing})
		}
	}
	return stats, nil
}
