package session

import (
	"context"
	"fmt"

	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/llm"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

// Scorer labels papers against a question. *llm.PaperScorer satisfies it.
type Scorer interface {
	Score(ctx context.Context, question string, papers []document.Document) ([]llm.Label, error)
}

// Recommendation is a search result with the model's label.
type Recommendation struct {
	vectorindex.Result
	Label llm.Label `json:"label"`
}

// Recommend finds the k closest documents and labels them in batches of
// llm.BatchSize.
func (s *Session) Recommend(ctx context.Context, question string, k int, scorer Scorer) ([]Recommendation, error) {
	results, err := s.Similar(ctx, question, k)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(results))
	for start := 0; start < len(results); start += llm.BatchSize {
		end := min(start+llm.BatchSize, len(results))
		batch := results[start:end]

		docs := make([]document.Document, len(batch))
		for i, r := range batch {
			docs[i] = r.Document
		}
		labels, err := scorer.Score(ctx, question, docs)
		if err != nil {
			return nil, fmt.Errorf("labelling results %d-%d: %w", start+1, end, err)
		}
		if len(labels) != len(batch) {
			return nil, fmt.Errorf("labelling results %d-%d: got %d labels", start+1, end, len(labels))
		}
		for i, r := range batch {
			out = append(out, Recommendation{Result: r, Label: labels[i]})
		}
	}
	return out, nil
}
