// Package chunker provides the rag.Chunker implementations used by the
// ingestion pipeline. Every chunker returns trimmed, non-empty chunks in
// source order; runs of separators never produce empty passages.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/54b3r/finrag-go/internal/rag"
)

// Kind names a chunking strategy.
type Kind string

const (
	// KindParagraph splits on blank lines.
	KindParagraph Kind = "paragraph"
	// KindWindow splits into fixed-size rune windows with optional overlap.
	KindWindow Kind = "window"
	// KindWhole keeps the full text as one chunk.
	KindWhole Kind = "whole"
)

const (
	// DefaultWindowSize is the window length in characters when unset.
	DefaultWindowSize = 1000
	// DefaultWindowOverlap is the window overlap in characters when unset.
	DefaultWindowOverlap = 100
)

// blankLine matches a paragraph break: a newline, any whitespace-only lines,
// and a second newline.
var blankLine = regexp.MustCompile(`\n\s*\n`)

// Paragraph splits text on blank lines.
type Paragraph struct{}

// Chunk returns the trimmed paragraphs of text, skipping empty ones.
func (Paragraph) Chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return keepNonEmpty(blankLine.Split(text, -1))
}

// Whole returns the entire trimmed text as a single chunk.
type Whole struct{}

// Chunk returns text as one chunk, or nothing if it is blank.
func (Whole) Chunk(text string) []string {
	return keepNonEmpty([]string{text})
}

// Window splits text into rune windows of Size characters, consecutive
// windows sharing Overlap characters.
type Window struct {
	// Size is the maximum number of characters per chunk.
	Size int
	// Overlap is the number of characters shared by consecutive chunks.
	Overlap int
}

// NewWindow returns a Window chunker with sane bounds applied.
func NewWindow(size, overlap int) Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return Window{Size: size, Overlap: overlap}
}

// Chunk splits text into overlapping windows.
func (w Window) Chunk(text string) []string {
	w = NewWindow(w.Size, w.Overlap)
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := w.Size - w.Overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+w.Size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return keepNonEmpty(chunks)
}

// New returns the chunker for kind. size and overlap only apply to window.
func New(kind Kind, size, overlap int) (rag.Chunker, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindParagraph:
		return Paragraph{}, nil
	case KindWindow:
		return NewWindow(size, overlap), nil
	case KindWhole:
		return Whole{}, nil
	default:
		return nil, fmt.Errorf("chunker: unknown kind %q (want paragraph, window or whole)", kind)
	}
}

// keepNonEmpty trims every part and drops the ones left empty.
func keepNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
