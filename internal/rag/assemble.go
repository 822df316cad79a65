package rag

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/finrag-go/internal/budget"
	"github.com/54b3r/finrag-go/internal/logging"
)

// Delimiter separates consecutive passages in an assembled context.
const Delimiter = "\n\n"

// Assembler fuses passage groups into one bounded context string.
//
// Groups are consumed in the order given and passages within a group in
// their ranked order. Passage text is never altered. When the concatenation
// exceeds MaxChars characters it is cut from the end to exactly MaxChars
// characters. This truncation is lossy: the tail of the context, usually the
// lowest-ranked passages of the last group, is discarded. Every truncation is
// reported on the result and logged at WARN.
type Assembler struct {
	// MaxChars is the character (rune) budget of the assembled context.
	// Zero or negative selects budget.DefaultMaxContextChars.
	MaxChars int
}

// Assembled is the result of one assembly.
type Assembled struct {
	// Text is the assembled context.
	Text string

	// Truncated is true when Text is shorter than the full concatenation.
	Truncated bool

	// Dropped is the number of characters cut from the end.
	Dropped int

	// Passages is the number of passages that contributed text, including a
	// passage that was only partially kept.
	Passages int
}

// String returns the assembled text.
func (a Assembled) String() string { return a.Text }

// NewAssembler returns an Assembler with the given character budget.
func NewAssembler(maxChars int) *Assembler {
	return &Assembler{MaxChars: maxChars}
}

// Limit returns the effective character budget.
func (a *Assembler) Limit() int {
	if a == nil || a.MaxChars <= 0 {
		return budget.DefaultMaxContextChars
	}
	return a.MaxChars
}

// Assemble concatenates all passage texts in group order, separated by
// Delimiter, and enforces the character budget.
func (a *Assembler) Assemble(ctx context.Context, groups []PassageGroup) Assembled {
	var (
		sb    strings.Builder
		count int
	)
	for _, g := range groups {
		for _, p := range g.Passages {
			if count > 0 {
				sb.WriteString(Delimiter)
			}
			sb.WriteString(p.Text)
			count++
		}
	}
	full := sb.String()

	limit := a.Limit()
	total := utf8.RuneCountInString(full)
	if total <= limit {
		return Assembled{Text: full, Passages: count}
	}

	kept := truncateRunes(full, limit)
	out := Assembled{
		Text:      kept,
		Truncated: true,
		Dropped:   total - limit,
		Passages:  passagesIn(groups, len(kept)),
	}
	logging.FromContext(ctx).Warn("rag: context truncated to budget",
		slog.Int("max_chars", limit),
		slog.Int("total_chars", total),
		slog.Int("dropped_chars", out.Dropped),
		slog.Int("passages_kept", out.Passages),
		slog.Int("passages_total", count),
	)
	return out
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// passagesIn counts passages whose text starts within the first n bytes of
// the concatenation.
func passagesIn(groups []PassageGroup, n int) int {
	offset, count := 0, 0
	for _, g := range groups {
		for _, p := range g.Passages {
			if count > 0 {
				offset += len(Delimiter)
			}
			if offset >= n {
				return count
			}
			offset += len(p.Text)
			count++
		}
	}
	return count
}
