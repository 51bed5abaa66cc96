// Package document defines the core domain type for fetched paper abstracts.
package document

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known metadata keys populated by document sources.
const (
	KeyTitle      = "title"
	KeyAuthors    = "authors"
	KeyPublished  = "published" // Publication year
	KeyLink       = "link"      // Canonical source URL
	KeyComment    = "comment"
	KeyJournalRef = "journal_ref"
)

// Document is an abstract fetched from a document source.
// Documents are values: they are never mutated after creation.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata maps field names to scalar values (string, int, float64, bool).
type Metadata map[string]any

// New creates a document, copying the metadata so later changes to md
// do not leak into the document.
func New(content string, md Metadata) Document {
	return Document{Content: content, Metadata: md.Clone()}
}

// Title returns the document title, or "" if unset.
func (d Document) Title() string {
	return d.Metadata.String(KeyTitle)
}

// Validate checks that all metadata values are scalars.
func (d Document) Validate() error {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch d.Metadata[k].(type) {
		case string, int, int64, float64, bool, nil:
		default:
			return fmt.Errorf("metadata %q has non-scalar type %T", k, d.Metadata[k])
		}
	}
	return nil
}

// Clone returns a copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value for key formatted as a string.
// Missing keys yield "".
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value for key as an int.
// Returns 0 if the key is missing or not numeric.
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Authors splits the comma-separated authors field.
func (m Metadata) Authors() []string {
	raw := m.String(KeyAuthors)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			authors = append(authors, p)
		}
	}
	return authors
}

// Contents extracts the content of each document, in order.
func Contents(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
