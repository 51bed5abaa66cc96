package export

import (
	"strings"
	"testing"

	"github.com/matsen/research-assistant/internal/document"
)

func arxivPaper() document.Document {
	return document.New("We measure the lensing signal & its 5% scatter.", document.Metadata{
		document.KeyTitle:     "Weak Lensing of High_z Galaxies",
		document.KeyAuthors:   "John Smith, Jane Q. Doe",
		document.KeyPublished: 2023,
		document.KeyLink:      "http://arxiv.org/abs/2301.00001v2",
		document.KeyComment:   "12 pages",
	})
}

func TestToBibTeX_ArxivPreprint(t *testing.T) {
	got := ToBibTeX(arxivPaper())

	if !strings.HasPrefix(got, "@misc{smith2023weak,") {
		t.Errorf("ToBibTeX() should start with @misc{smith2023weak, got:\n%s", got)
	}

	for _, want := range []string{
		`author = {Smith, John and Doe, Jane Q.}`,
		`title = {Weak Lensing of High\_z Galaxies}`,
		`year = {2023}`,
		`eprint = {2301.00001}`,
		`archivePrefix = {arXiv}`,
		`url = {http://arxiv.org/abs/2301.00001v2}`,
		`note = {12 pages}`,
		`abstract = {We measure the lensing signal \& its 5\% scatter.}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToBibTeX() should contain %q, got:\n%s", want, got)
		}
	}

	if strings.Contains(got, "journal") {
		t.Errorf("preprint should have no journal field, got:\n%s", got)
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "}") {
		t.Errorf("ToBibTeX() should end with }, got:\n%s", got)
	}
}

func TestToBibTeX_JournalRef(t *testing.T) {
	doc := arxivPaper()
	doc.Metadata[document.KeyJournalRef] = "ApJ 900, 1 (2023)"

	got := ToBibTeX(doc)
	if !strings.HasPrefix(got, "@article{") {
		t.Errorf("entry with journal ref should be @article, got:\n%s", got)
	}
	if !strings.Contains(got, `journal = {ApJ 900, 1 (2023)}`) {
		t.Errorf("ToBibTeX() should contain journal, got:\n%s", got)
	}
}

func TestToBibTeX_NoAuthors(t *testing.T) {
	doc := document.New("", document.Metadata{document.KeyTitle: "Anonymous"})
	got := ToBibTeX(doc)

	if strings.Contains(got, "author =") {
		t.Errorf("ToBibTeX() should not contain author field when empty, got:\n%s", got)
	}
	if strings.Contains(got, "abstract =") || strings.Contains(got, "eprint =") {
		t.Errorf("ToBibTeX() should skip empty optional fields, got:\n%s", got)
	}
}

func TestArxivID(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"http://arxiv.org/abs/2301.00001v2", "2301.00001"},
		{"https://arxiv.org/abs/2301.12345", "2301.12345"},
		{"http://arxiv.org/abs/astro-ph/0601001v1", "astro-ph/0601001"},
		{"http://arxiv.org/abs/math.GT/0309136v1", "math.GT/0309136"},
		{"https://example.org/paper", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ArxivID(tt.link); got != tt.want {
			t.Errorf("ArxivID(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestCitationKey(t *testing.T) {
	tests := []struct {
		name string
		doc  document.Document
		want string
	}{
		{"full", arxivPaper(), "smith2023weak"},
		{"accents dropped", document.New("x", document.Metadata{
			document.KeyAuthors:   "Anders Ångström",
			document.KeyPublished: 1999,
			document.KeyTitle:     "On the Spectrum",
		}), "ngstrm1999spectrum"},
		{"arxiv id fallback", document.New("x", document.Metadata{
			document.KeyLink: "http://arxiv.org/abs/astro-ph/0601001v1",
		}), "astro-ph_0601001"},
		{"nothing", document.New("x", nil), "paper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CitationKey(tt.doc); got != tt.want {
				t.Errorf("CitationKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAuthors(t *testing.T) {
	tests := []struct {
		name    string
		authors []string
		want    string
	}{
		{"single", []string{"John Smith"}, "Smith, John"},
		{"mononym", []string{"Plato"}, "Plato"},
		{"middle names", []string{"Jane Q. Public"}, "Public, Jane Q."},
		{"several", []string{"A B", "C D"}, "B, A and D, C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAuthors(tt.authors); got != tt.want {
				t.Errorf("formatAuthors() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Simple text", "Simple text"},
		{"A & B", `A \& B`},
		{"100%", `100\%`},
		{"$x$", `\$x\$`},
		{"#1", `\#1`},
		{"snake_case", `snake\_case`},
		{"{braces}", `\{braces\}`},
		{"~tilde", `\textasciitilde{}tilde`},
		{"x^2", `x\textasciicircum{}2`},
	}
	for _, tt := range tests {
		if got := escapeLatex(tt.input); got != tt.want {
			t.Errorf("escapeLatex(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToBibTeXList(t *testing.T) {
	a := arxivPaper()
	b := arxivPaper()
	b.Content = "Another abstract."

	got := ToBibTeXList([]document.Document{a, b})
	if strings.Count(got, "@misc{") != 2 {
		t.Errorf("ToBibTeXList() should contain 2 entries, got:\n%s", got)
	}
	if !strings.Contains(got, "@misc{smith2023weak,") || !strings.Contains(got, "@misc{smith2023weaka,") {
		t.Errorf("ToBibTeXList() should disambiguate repeated keys, got:\n%s", got)
	}
}

func TestToBibTeXList_Empty(t *testing.T) {
	if got := ToBibTeXList(nil); got != "" {
		t.Errorf("ToBibTeXList(nil) = %q, want empty", got)
	}
}
