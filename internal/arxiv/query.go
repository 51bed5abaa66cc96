package arxiv

import (
	"fmt"
	"strings"
)

// SortBy selects the ordering of search results.
type SortBy string

// Supported sort orders.
const (
	SortRelevance     SortBy = "relevance"
	SortSubmittedDate SortBy = "submittedDate"
)

// ParseSortBy maps user input ("relevance", "submitted", "submittedDate")
// to a SortBy.
func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relevance":
		return SortRelevance, nil
	case "submitted", "submitteddate", "date":
		return SortSubmittedDate, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want relevance or submitted)", s)
	}
}

// Query describes one search against the arXiv API.
type Query struct {
	Terms      string // arXiv search_query syntax, e.g. all:"dark matter"
	MaxResults int
	SortBy     SortBy
}

// BuildQuery ORs keywords together as quoted all-field terms.
// Blank keywords are ignored and embedded quotes are dropped.
func BuildQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = collapseSpace(strings.ReplaceAll(kw, `"`, ""))
		if kw == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`all:"%s"`, kw))
	}
	return strings.Join(terms, " OR ")
}
