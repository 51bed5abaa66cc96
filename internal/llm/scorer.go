package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/research-assistant/internal/document"
)

// BatchSize is the number of papers scored per model call.
const BatchSize = 4

// RecommendThreshold is the minimum score considered highly recommended.
const RecommendThreshold = 4

const scorerSystemPrompt = "You help a researcher decide which papers to read. " +
	"For every paper you are given, answer with a JSON array containing one object per paper, " +
	`in the same order, shaped as {"score": <integer 1-5>, "topics": [<short topic>, ...], "reasoning": "<one or two sentences>"}. ` +
	"Score 5 means essential for the research question, 1 means unrelated. Output only the JSON array."

// Label is the model's assessment of one paper.
type Label struct {
	Score     int      `json:"score"`
	Topics    []string `json:"topics"`
	Reasoning string   `json:"reasoning"`
}

// HighlyRecommended reports whether the paper reached RecommendThreshold.
func (l Label) HighlyRecommended() bool { return l.Score >= RecommendThreshold }

// PaperScorer labels papers against a research question.
type PaperScorer struct {
	llm Completer
}

// NewPaperScorer creates a scorer.
func NewPaperScorer(llm Completer) *PaperScorer {
	return &PaperScorer{llm: llm}
}

// Score labels papers in one model call. The result has one label per
// paper, in order.
func (s *PaperScorer) Score(ctx context.Context, question string, papers []document.Document) ([]Label, error) {
	if len(papers) == 0 {
		return []Label{}, nil
	}

	out, err := s.llm.Complete(ctx, scorerSystemPrompt, scorePrompt(question, papers))
	if err != nil {
		return nil, fmt.Errorf("scoring papers: %w", err)
	}
	return parseLabels(out, len(papers))
}

func scorePrompt(question string, papers []document.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", question)
	for i, p := range papers {
		fmt.Fprintf(&b, "Paper %d\nTitle: %s\nAuthors: %s\nPublished: %d\nAbstract: %s\n\n",
			i+1, p.Title(), p.Metadata.String(document.KeyAuthors), p.Metadata.Int(document.KeyPublished), p.Content)
	}
	return b.String()
}

func parseLabels(out string, want int) ([]Label, error) {
	start, end := strings.Index(out, "["), strings.LastIndex(out, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrInvalidOutput)
	}

	var labels []Label
	if err := json.Unmarshal([]byte(out[start:end+1]), &labels); err != nil {
		return nil, fmt.Errorf("%w: decoding labels: %v", ErrInvalidOutput, err)
	}
	if len(labels) != want {
		return nil, fmt.Errorf("%w: got %d labels for %d papers", ErrInvalidOutput, len(labels), want)
	}
	for i, l := range labels {
		if l.Score < 1 || l.Score > 5 {
			return nil, fmt.Errorf("%w: paper %d has score %d outside 1-5", ErrInvalidOutput, i+1, l.Score)
		}
		if labels[i].Topics == nil {
			labels[i].Topics = []string{}
		}
	}
	return labels, nil
}
