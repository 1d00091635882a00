package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/amanrag/internal/store"
)

var (
	sentenceSplit = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	wordToken     = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’-]*`)
)

// leadingStopWords are capitalized only because they start a sentence.
var leadingStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "if": true,
	"in": true, "on": true, "at": true, "of": true, "for": true, "to": true, "by": true,
	"with": true, "from": true, "as": true, "it": true, "its": true, "this": true, "that": true,
	"these": true, "those": true, "he": true, "she": true, "they": true, "we": true, "i": true,
	"you": true, "his": true, "her": true, "their": true, "our": true, "my": true, "who": true,
	"what": true, "when": true, "where": true, "why": true, "how": true, "which": true,
	"there": true, "here": true, "then": true, "after": true, "before": true, "while": true,
	"however": true, "also": true, "is": true, "was": true, "are": true, "were": true,
}

// PatternExtractor finds entities as runs of capitalized words and links
// entities that follow each other in the same sentence. The words between
// them become the relation keywords.
type PatternExtractor struct{}

var _ Extractor = (*PatternExtractor)(nil)

// NewPatternExtractor creates a pattern extractor.
func NewPatternExtractor() *PatternExtractor { return &PatternExtractor{} }

// Name identifies the extractor.
func (p *PatternExtractor) Name() string { return "pattern" }

// Extract never fails.
func (p *PatternExtractor) Extract(_ context.Context, chunkID, text string) (*Result, error) {
	res := &Result{}
	entities := map[string]*store.Entity{}
	relations := map[store.EdgeKey]*store.Relation{}

	for _, sentence := range sentenceSplit.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		mentions := p.mentions(sentence)
		for _, m := range mentions {
			e, ok := entities[m.name]
			if !ok {
				e = &store.Entity{Name: m.name, Type: store.UnknownEntityType, SourceIDs: []string{chunkID}}
				entities[m.name] = e
				res.Entities = append(res.Entities, e)
			}
			e.Description = appendSentence(e.Description, sentence)
		}
		for i := 1; i < len(mentions); i++ {
			a, b := mentions[i-1], mentions[i]
			if a.name == b.name {
				continue
			}
			key := store.NewEdgeKey(a.name, b.name)
			r, ok := relations[key]
			if !ok {
				r = &store.Relation{Source: key.Source, Target: key.Target, SourceIDs: []string{chunkID}}
				relations[key] = r
				res.Relations = append(res.Relations, r)
			}
			r.Weight++
			r.Description = appendSentence(r.Description, sentence)
			r.Keywords = appendKeywords(r.Keywords, keywordsBetween(sentence[a.end:b.start]))
		}
	}
	return res, nil
}

type mention struct {
	name       string
	start, end int
}

// mentions returns capitalized word runs in order.
func (p *PatternExtractor) mentions(sentence string) []mention {
	var out []mention
	var cur *mention
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, loc := range wordToken.FindAllStringIndex(sentence, -1) {
		word := sentence[loc[0]:loc[1]]
		if !isCapitalized(word) || leadingStopWords[strings.ToLower(word)] {
			flush()
			continue
		}
		// runs break on anything but plain spaces
		if cur != nil && strings.TrimSpace(sentence[cur.end:loc[0]]) == "" {
			cur.name += " " + word
			cur.end = loc[1]
			continue
		}
		flush()
		cur = &mention{name: word, start: loc[0], end: loc[1]}
	}
	flush()
	return out
}

func isCapitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

func keywordsBetween(gap string) []string {
	var out []string
	for _, w := range wordToken.FindAllString(strings.ToLower(gap), -1) {
		if !leadingStopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func appendSentence(desc, sentence string) string {
	if desc == "" {
		return sentence
	}
	if strings.Contains(desc, sentence) {
		return desc
	}
	return desc + " " + sentence
}

func appendKeywords(have string, add []string) string {
	if len(add) == 0 {
		return have
	}
	existing := map[string]bool{}
	parts := []string{}
	if have != "" {
		parts = strings.Split(have, ",")
		for _, k := range parts {
			existing[k] = true
		}
	}
	for _, k := range add {
		if !existing[k] {
			existing[k] = true
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, ",")
}
