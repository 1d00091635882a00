package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings by hashing words and character
// trigrams into a fixed-size vector. It needs no network or model download;
// texts that share vocabulary land close together.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// proseStopWords are dropped before hashing so function words do not
// dominate short texts.
var proseStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "at": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "by": true, "for": true, "with": true,
	"as": true, "it": true, "its": true, "this": true, "that": true, "from": true,
	"who": true, "what": true, "which": true, "does": true, "do": true, "did": true,
}

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates the embedding for a single text. Blank text maps to the
// zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(generateVector(trimmed)), nil
}

func generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range tokenize(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
		// light stemming so "loves" and "love" share a bucket
		if stem := strings.TrimSuffix(token, "s"); stem != token && len(stem) > 2 {
			vector[hashToIndex(stem, StaticDimensions)] += tokenWeight / 2
		}
	}

	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}
	return vector
}

// tokenize lowercases words and drops stop words.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if !proseStopWords[lower] {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// normalizeForNgrams keeps letters and digits, lowercased.
func normalizeForNgrams(text string) []rune {
	var result []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result = append(result, r)
		}
	}
	return result
}

// extractNgrams extracts n-rune sliding windows.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static768" }

// Available reports true until Close.
func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
