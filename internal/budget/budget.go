// Package budget converts between token and character budgets for prompts
// sent to the generator. Because several backends with different tokenizers
// are supported, it uses a conservative character heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"unicode/utf8"

	"github.com/54b3r/finrag-go/internal/provider"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default retrieval context budget in
	// tokens. It fits 8k-context models with room for the question and the
	// answer.
	DefaultMaxContextTokens = 6000

	// DefaultMaxContextChars is DefaultMaxContextTokens expressed in characters.
	DefaultMaxContextChars = DefaultMaxContextTokens * charsPerToken

	// perMessageOverhead approximates role and framing tokens per message.
	perMessageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	chars := utf8.RuneCountInString(s)
	n := chars / charsPerToken
	if n == 0 && chars > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count of a prompt,
// summing role and content for each message.
func EstimateMessages(msgs []provider.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(m.Role)
		total += Estimate(m.Content)
	}
	return total
}
