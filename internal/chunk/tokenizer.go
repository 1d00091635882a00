package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

// wordPattern matches runs of letters, digits and underscores, or a single
// other non-space rune (punctuation is its own token).
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\s\p{L}\p{N}_]`)

// WordTokenizer is the default regexp tokenizer.
type WordTokenizer struct{}

// NewWordTokenizer returns the default tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{}
}

// Tokens implements Tokenizer.
func (WordTokenizer) Tokens(text string) []Span {
	locs := wordPattern.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, l := range locs {
		spans[i] = Span{Start: l[0], End: l[1]}
	}
	return spans
}

// Count implements Tokenizer.
func (WordTokenizer) Count(text string) int {
	return len(wordPattern.FindAllStringIndex(text, -1))
}

// Truncate returns the longest prefix of text holding at most maxTokens
// tokens, cut at a token boundary.
func Truncate(tok Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	spans := tok.Tokens(text)
	if len(spans) <= maxTokens {
		return text
	}
	return strings.TrimRightFunc(text[:spans[maxTokens].Start], unicode.IsSpace)
}
