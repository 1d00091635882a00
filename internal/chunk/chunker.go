package chunk

import (
	"fmt"
	"iter"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Chunker produces overlapping token windows over a text.
//
// Chunk k covers tokens [k*step, k*step+size) where step = size-overlap.
// Its byte range runs from the first token's start to the start of the
// token after its last one, so whitespace after a token travels with it
// and Join rebuilds the source exactly.
type Chunker struct {
	size    int
	overlap int
	tok     Tokenizer
}

// New creates a Chunker. overlap must be in [0, size).
func New(size, overlap int, tok Tokenizer) (*Chunker, error) {
	if size <= 0 {
		return nil, amerrors.InvalidConfig(fmt.Sprintf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, amerrors.InvalidConfig(
			fmt.Sprintf("chunk overlap must be in [0, %d), got %d", size, overlap)).
			WithDetail("size", fmt.Sprint(size)).
			WithDetail("overlap", fmt.Sprint(overlap))
	}
	if tok == nil {
		tok = NewWordTokenizer()
	}
	return &Chunker{size: size, overlap: overlap, tok: tok}, nil
}

// Size returns the maximum tokens per chunk.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the tokens shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Tokenizer returns the tokenizer used for sizing.
func (c *Chunker) Tokenizer() Tokenizer { return c.tok }

// Chunks returns a lazy sequence of chunks. The sequence is finite and can
// be ranged over any number of times; each pass re-tokenizes text.
// Text without tokens yields nothing.
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		spans := c.tok.Tokens(text)
		n := len(spans)
		if n == 0 {
			return
		}
		step := c.size - c.overlap

		for idx, s := 0, 0; ; idx, s = idx+1, s+step {
			e := min(s+c.size, n)

			start := spans[s].Start
			if s == 0 {
				start = 0
			}
			end := len(text)
			if e < n {
				end = spans[e].Start
			}
			overlapEnd := 0
			if s > 0 {
				overlapEnd = spans[s+c.overlap].Start - start
			}

			ch := Chunk{
				Index:      idx,
				Content:    text[start:end],
				TokenCount: e - s,
				Start:      start,
				End:        end,
				OverlapEnd: overlapEnd,
			}
			if !yield(ch) || e == n {
				return
			}
		}
	}
}

// Collect materializes all chunks of text.
func (c *Chunker) Collect(text string) []Chunk {
	var out []Chunk
	for ch := range c.Chunks(text) {
		out = append(out, ch)
	}
	return out
}

// Join reassembles chunks produced from one text, dropping each overlap.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for _, ch := range chunks {
		sb.WriteString(ch.Content[ch.OverlapEnd:])
	}
	return sb.String()
}
