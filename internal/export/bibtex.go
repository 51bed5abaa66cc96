// Package export renders documents in citation formats.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/matsen/research-assistant/internal/document"
)

// arxivIDPattern matches new-style (2301.00001v2) and old-style
// (astro-ph/0601001v1) identifiers at the end of an abs URL.
var arxivIDPattern = regexp.MustCompile(`abs/((?:[a-z\-]+(?:\.[A-Z]{2})?/)?\d{4}\.?\d{3,5})(v\d+)?$`)

// ArxivID extracts the identifier, without version, from an arXiv link.
// Returns "" when link is not an arXiv abs URL.
func ArxivID(link string) string {
	m := arxivIDPattern.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return ""
	}
	return m[1]
}

// ToBibTeX converts a document to a BibTeX entry. Documents from arXiv
// become @misc entries with eprint fields; the journal reference, when
// known, makes it an @article.
func ToBibTeX(doc document.Document) string {
	md := doc.Metadata
	id := ArxivID(md.String(document.KeyLink))
	journal := md.String(document.KeyJournalRef)

	entryType := "misc"
	if journal != "" {
		entryType = "article"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, CitationKey(doc)))

	if authors := md.Authors(); len(authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(authors)))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(doc.Title())))

	if journal != "" {
		b.WriteString(fmt.Sprintf("  journal = {%s},\n", escapeLatex(journal)))
	}

	if year := md.Int(document.KeyPublished); year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", year))
	}

	if id != "" {
		b.WriteString(fmt.Sprintf("  eprint = {%s},\n", id))
		b.WriteString("  archivePrefix = {arXiv},\n")
	}

	if link := md.String(document.KeyLink); link != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", link))
	}

	if c := md.String(document.KeyComment); c != "" {
		b.WriteString(fmt.Sprintf("  note = {%s},\n", escapeLatex(c)))
	}

	if doc.Content != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(doc.Content)))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple documents to BibTeX, making repeated
// citation keys unique with a letter suffix.
func ToBibTeXList(docs []document.Document) string {
	seen := make(map[string]int)
	var entries []string
	for _, d := range docs {
		entry := ToBibTeX(d)
		key := CitationKey(d)
		if n := seen[key]; n > 0 {
			entry = strings.Replace(entry, "{"+key+",", fmt.Sprintf("{%s%c,", key, 'a'+rune(n-1)), 1)
		}
		seen[key]++
		entries = append(entries, entry)
	}
	return strings.Join(entries, "\n")
}

// CitationKey builds a key like "lovelace2023analytical" from the first
// author's last name, the year and the first long title word.
// Falls back to the arXiv identifier, then to "paper".
func CitationKey(doc document.Document) string {
	var b strings.Builder
	if authors := doc.Metadata.Authors(); len(authors) > 0 {
		b.WriteString(keyPart(lastName(authors[0])))
	}
	if year := doc.Metadata.Int(document.KeyPublished); year > 0 {
		b.WriteString(fmt.Sprint(year))
	}
	for _, w := range strings.Fields(doc.Title()) {
		if w = keyPart(w); len(w) > 3 {
			b.WriteString(w)
			break
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	if id := ArxivID(doc.Metadata.String(document.KeyLink)); id != "" {
		return strings.ReplaceAll(id, "/", "_")
	}
	return "paper"
}

// lastName returns the final word of a "First Last" name.
func lastName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// keyPart lowercases s and keeps only ASCII letters and digits.
func keyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []string) string {
	formatted := make([]string, 0, len(authors))
	for _, a := range authors {
		parts := strings.Fields(a)
		if len(parts) < 2 {
			formatted = append(formatted, escapeLatex(a))
			continue
		}
		last := parts[len(parts)-1]
		first := strings.Join(parts[:len(parts)-1], " ")
		formatted = append(formatted, escapeLatex(fmt.Sprintf("%s, %s", last, first)))
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
