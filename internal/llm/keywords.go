package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/matsen/research-assistant/internal/arxiv"
	"github.com/matsen/research-assistant/internal/document"
)

// DefaultExplorePapers is how many papers the exploratory search reads
// before refining keywords.
const DefaultExplorePapers = 30

const keywordSystemPrompt = "You are a keyword generator for scientific literature search. " +
	"Answer only with a bracketed, comma separated list of keywords, for example " +
	"[Stellar evolution, Main sequence stars, Supernova]. Be specific and avoid " +
	"general words such as theory, recent, paper or study."

// Searcher runs a document search. *arxiv.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, q arxiv.Query) ([]document.Document, error)
}

// Suggestions holds the keywords of both rounds.
type Suggestions struct {
	Initial []string `json:"initial"`
	Refined []string `json:"refined"`
}

// Keywords merges both rounds, refined first, without duplicates.
func (s Suggestions) Keywords() []string {
	return dedupe(append(append([]string{}, s.Refined...), s.Initial...))
}

// KeywordAgent derives search keywords from a research question.
type KeywordAgent struct {
	llm     Completer
	search  Searcher
	explore int
	logger  *slog.Logger
}

// NewKeywordAgent creates an agent. search may be nil, in which case only
// the first round runs.
func NewKeywordAgent(llm Completer, search Searcher, logger *slog.Logger) *KeywordAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeywordAgent{llm: llm, search: search, explore: DefaultExplorePapers, logger: logger}
}

// Suggest asks for initial keywords, searches with them, and asks again
// with the titles found to obtain refined keywords.
func (a *KeywordAgent) Suggest(ctx context.Context, question string) (Suggestions, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Suggestions{}, fmt.Errorf("empty research question")
	}

	out, err := a.llm.Complete(ctx, keywordSystemPrompt, firstKeywordsPrompt(question))
	if err != nil {
		return Suggestions{}, fmt.Errorf("suggesting keywords: %w", err)
	}
	initial := ParseKeywordList(out)
	if len(initial) == 0 {
		return Suggestions{}, fmt.Errorf("%w: no keywords in %q", ErrInvalidOutput, out)
	}
	s := Suggestions{Initial: initial}
	a.logger.Debug("initial keywords", "count", len(initial))

	if a.search == nil {
		return s, nil
	}

	papers, err := a.search.Search(ctx, arxiv.Query{
		Terms:      arxiv.BuildQuery(initial),
		MaxResults: a.explore,
		SortBy:     arxiv.SortRelevance,
	})
	if err != nil {
		return Suggestions{}, fmt.Errorf("exploratory search: %w", err)
	}
	if len(papers) == 0 {
		return s, nil
	}

	titles := make([]string, 0, len(papers))
	for _, p := range papers {
		if t := p.Title(); t != "" {
			titles = append(titles, t)
		}
	}
	out, err = a.llm.Complete(ctx, keywordSystemPrompt, refineKeywordsPrompt(question, titles))
	if err != nil {
		return Suggestions{}, fmt.Errorf("refining keywords: %w", err)
	}
	s.Refined = ParseKeywordList(out)
	a.logger.Debug("refined keywords", "count", len(s.Refined), "papers", len(titles))
	return s, nil
}

func firstKeywordsPrompt(question string) string {
	var b strings.Builder
	b.WriteString("Tell me your research interest and I will provide a short list of relevant keywords.\n\n")
	b.WriteString("Research interest: Stellar evolution\n")
	b.WriteString("Keywords: [Stellar evolution, Stellar lifecycles, Main sequence stars, Red giant phase, ")
	b.WriteString("Supernova, White dwarf, Protostar formation, Nuclear fusion, Stellar nucleosynthesis, ")
	b.WriteString("Hertzsprung-Russell diagram]\n\n")
	b.WriteString("Research interest: room temperature superconductors\n")
	b.WriteString("Keywords: [Superconductivity, Room Temperature superconductors, Superconducting Materials, ")
	b.WriteString("Superconducting Phase Transitions, Cooper Pairs, Critical Temperature, BCS Theory, ")
	b.WriteString("Meissner Effect, Magnetic Levitation, Iron-based superconductors]\n\n")
	fmt.Fprintf(&b, "Research interest: %s\nKeywords:", question)
	return b.String()
}

func refineKeywordsPrompt(question string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I want to research: %s.\n\n", question)
	b.WriteString("Here is a list of papers that could be useful:\n")
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nGive me a list of keywords that best describe the topics of these papers. ")
	b.WriteString("Separate the keywords with commas. Do not overextend.\n\nKeywords:")
	return b.String()
}

// ParseKeywordList extracts keywords from a bracketed or plain comma
// separated list. Quotes and surrounding whitespace are stripped and
// case-insensitive duplicates removed, keeping first occurrences.
func ParseKeywordList(s string) []string {
	if i := strings.Index(s, "["); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "]"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "\n", ",")

	var out []string
	for _, part := range strings.Split(s, ",") {
		kw := strings.Trim(strings.TrimSpace(part), `"'*-. `)
		kw = strings.Join(strings.Fields(kw), " ")
		if kw != "" {
			out = append(out, kw)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
