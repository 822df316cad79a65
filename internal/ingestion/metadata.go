package ingestion

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// InferredMetadata holds the source ID, title and format inferred from a
// document path. Values given explicitly in the corpus manifest or on the
// command line take precedence; this is the best-effort fallback.
type InferredMetadata struct {
	// SourceID is a lowercase slug of the file name without extension.
	SourceID string
	// Title is the file name humanised ("the_intelligent-investor" → "The Intelligent Investor").
	Title string
	// Format classifies the file by extension (text, markdown, pdf, snapshot).
	Format string
}

// formatsByExt maps lowercase file extensions to a format label.
var formatsByExt = map[string]string{
	".txt":      "text",
	".text":     "text",
	".md":       "markdown",
	".markdown": "markdown",
	".pdf":      "pdf",
	".yaml":     "snapshot",
	".yml":      "snapshot",
	".json":     "snapshot",
}

// slugInvalid matches runs of characters not allowed in a source ID.
var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// InferMetadata inspects a document path and returns best-effort metadata.
// Unknown extensions yield Format "text".
func InferMetadata(path string) InferredMetadata {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	m := InferredMetadata{
		SourceID: slugify(stem),
		Title:    humanize(stem),
		Format:   "text",
	}
	if f, ok := formatsByExt[ext]; ok {
		m.Format = f
	}
	return m
}

// Map returns the metadata carried onto every passage of the source.
func (m InferredMetadata) Map() map[string]any {
	return map[string]any{
		"title":  m.Title,
		"format": m.Format,
	}
}

// slugify lowercases s and collapses every non-alphanumeric run to "-".
func slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// humanize turns a file stem into a title: separators become spaces and
// each word is capitalised. Words already containing capitals are kept.
func humanize(stem string) string {
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	for i, w := range words {
		if strings.ToLower(w) != w {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
