package arxiv

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/matsen/research-assistant/internal/document"
)

type atomFeed struct {
	XMLName      xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	TotalResults int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	Entries      []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID         string       `xml:"http://www.w3.org/2005/Atom id"`
	Published  string       `xml:"http://www.w3.org/2005/Atom published"`
	Title      string       `xml:"http://www.w3.org/2005/Atom title"`
	Summary    string       `xml:"http://www.w3.org/2005/Atom summary"`
	Authors    []atomAuthor `xml:"http://www.w3.org/2005/Atom author"`
	Comment    string       `xml:"http://arxiv.org/schemas/atom comment"`
	JournalRef string       `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

// page is one decoded response: the documents that mapped cleanly, the
// raw entry count (used for pagination) and the feed's total.
type page struct {
	docs    []document.Document
	entries int
	total   int
}

// parseFeed decodes an Atom feed. Entries that cannot be mapped are
// logged and skipped.
func parseFeed(r io.Reader, logger *slog.Logger) (*page, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: decoding feed: %v", ErrInvalidResponse, err)
	}

	// The API reports query errors as a single entry whose id points at
	// the errors page.
	if len(feed.Entries) == 1 && strings.Contains(feed.Entries[0].ID, "/api/errors") {
		return nil, &APIError{StatusCode: 400, Message: collapseSpace(feed.Entries[0].Summary)}
	}

	p := &page{entries: len(feed.Entries), total: feed.TotalResults}
	for i, e := range feed.Entries {
		d, err := e.toDocument()
		if err != nil {
			logger.Warn("skipping malformed arXiv entry", "index", i, "id", e.ID, "error", err)
			continue
		}
		p.docs = append(p.docs, d)
	}
	return p, nil
}

func (e atomEntry) toDocument() (document.Document, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return document.Document{}, fmt.Errorf("missing id")
	}
	summary := collapseSpace(e.Summary)
	if summary == "" {
		return document.Document{}, fmt.Errorf("empty summary")
	}
	published, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return document.Document{}, fmt.Errorf("parsing published date: %w", err)
	}

	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if n := collapseSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}

	md := document.Metadata{
		document.KeyTitle:     collapseSpace(e.Title),
		document.KeyAuthors:   strings.Join(names, ", "),
		document.KeyPublished: published.Year(),
		document.KeyLink:      id,
	}
	if c := collapseSpace(e.Comment); c != "" {
		md[document.KeyComment] = c
	}
	if j := collapseSpace(e.JournalRef); j != "" {
		md[document.KeyJournalRef] = j
	}
	return document.Document{Content: summary, Metadata: md}, nil
}

// collapseSpace trims s and replaces internal whitespace runs (the feed
// wraps long fields across lines) with a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
