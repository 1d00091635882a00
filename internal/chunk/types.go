// Package chunk splits normalized document text into token-sized chunks
// with a fixed token overlap between neighbours.
package chunk

// Chunk size defaults.
const (
	DefaultChunkTokens   = 1500
	DefaultOverlapTokens = 200
)

// Span is the byte range [Start, End) of one token in its source text.
type Span struct {
	Start int
	End   int
}

// Tokenizer splits text into tokens. The same tokenizer must be used for
// chunk sizing and for context token budgets.
type Tokenizer interface {
	// Tokens returns token spans in source order.
	Tokens(text string) []Span
	// Count returns len(Tokens(text)) without materializing spans.
	Count(text string) int
}

// Chunk is a contiguous slice of a document.
type Chunk struct {
	// Index is the 0-based position of the chunk in its document.
	Index int
	// Content is the source text in [Start, End).
	Content string
	// TokenCount is the number of tokens in Content.
	TokenCount int
	// Start and End are byte offsets into the source text.
	Start int
	End   int
	// OverlapEnd is the offset inside Content where text not shared with
	// the previous chunk begins. Zero for the first chunk.
	OverlapEnd int
}
