package store

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var termRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// DefaultStopWords are dropped from keyword documents and queries.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
	"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
	"it", "its", "this", "that", "these", "those", "from", "into", "about", "so",
	"what", "which", "who", "whom", "whose", "does", "do", "did", "how", "why",
	"when", "where", "can", "will", "just", "than", "there", "their", "they",
}

// TokenizeText lowercases text and splits it into letter/digit terms,
// dropping single-character terms.
func TokenizeText(text string) []string {
	words := termRegex.FindAllString(strings.ToLower(text), -1)
	out := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
