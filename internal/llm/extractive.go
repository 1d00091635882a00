package llm

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultExtractiveSentences bounds the answer length of the extractive
// completer.
const DefaultExtractiveSentences = 3

var (
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	wordPattern     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	// sectionHeader matches the "-----Sources-----" style headers of
	// assembled context.
	sectionHeader = regexp.MustCompile(`^-{3,}\s*(\w[\w ]*?)\s*-{3,}$`)
	// listMarker strips "- " and "[3] " prefixes from context lines.
	listMarker = regexp.MustCompile(`^(?:-\s+|\[\d+\]\s*)`)
)

var extractiveStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {}, "then": {}, "for": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {}, "as": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "it": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "from": {}, "so": {}, "than": {}, "can": {}, "will": {},
	"who": {}, "what": {}, "which": {}, "whom": {}, "where": {}, "when": {}, "how": {}, "why": {},
	"do": {}, "does": {}, "did": {}, "about": {}, "there": {}, "their": {}, "they": {},
}

// ExtractiveCompleter answers offline by selecting the context sentences
// that best cover the question terms. Ties fall back to sentence term
// frequency over the whole context.
type ExtractiveCompleter struct {
	maxSentences int
}

var _ Completer = (*ExtractiveCompleter)(nil)

// NewExtractiveCompleter creates a completer returning at most maxSentences
// sentences; zero uses DefaultExtractiveSentences.
func NewExtractiveCompleter(maxSentences int) *ExtractiveCompleter {
	if maxSentences <= 0 {
		maxSentences = DefaultExtractiveSentences
	}
	return &ExtractiveCompleter{maxSentences: maxSentences}
}

// Complete never fails; an empty context yields an empty answer.
func (e *ExtractiveCompleter) Complete(_ context.Context, prompt, retrieved string) (string, error) {
	sentences := contextSentences(retrieved)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	for _, s := range sentences {
		for _, w := range contentWords(s) {
			freq[w]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	query := map[string]struct{}{}
	for _, w := range contentWords(prompt) {
		query[w] = struct{}{}
	}

	type scored struct {
		idx     int
		overlap int
		score   float64
	}
	scores := make([]scored, len(sentences))
	anyOverlap := false
	for i, s := range sentences {
		words := contentWords(s)
		sc := scored{idx: i}
		seen := map[string]bool{}
		for _, w := range words {
			if _, ok := query[w]; ok && !seen[w] {
				sc.overlap++
				seen[w] = true
			}
			if maxF > 0 {
				sc.score += freq[w] / maxF
			}
		}
		if len(words) > 0 {
			sc.score /= math.Sqrt(float64(len(words)))
		}
		anyOverlap = anyOverlap || sc.overlap > 0
		scores[i] = sc
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].overlap != scores[j].overlap {
			return scores[i].overlap > scores[j].overlap
		}
		return scores[i].score > scores[j].score
	})

	limit := e.maxSentences
	if !anyOverlap {
		limit = 1
	}
	var selected []int
	for _, sc := range scores {
		if len(selected) == limit || (anyOverlap && sc.overlap == 0) {
			break
		}
		selected = append(selected, sc.idx)
	}
	sort.Ints(selected)

	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// ModelName identifies the extractive completer.
func (e *ExtractiveCompleter) ModelName() string { return "extractive" }

// contextSentences splits context into unique sentences. When the context
// has a Sources section only that section is used.
func contextSentences(retrieved string) []string {
	lines := strings.Split(retrieved, "\n")
	var body []string
	section, sawSources := "", false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			section = strings.ToLower(m[1])
			sawSources = sawSources || section == "sources"
			continue
		}
		body = append(body, section+"\x00"+line)
	}

	seen := map[string]bool{}
	var sentences []string
	for _, entry := range body {
		section, line, _ := strings.Cut(entry, "\x00")
		if sawSources && section != "sources" {
			continue
		}
		line = listMarker.ReplaceAllString(line, "")
		for _, s := range sentencePattern.FindAllString(line, -1) {
			s = strings.TrimSpace(s)
			if len(contentWords(s)) == 0 || seen[s] {
				continue
			}
			seen[s] = true
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// contentWords lowercases, drops stop words and strips a plural/3rd-person
// "s" so "loves" matches "love".
func contentWords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := words[:0]
	for _, w := range words {
		if _, stop := extractiveStopWords[w]; stop {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = w[:len(w)-1]
		}
		out = append(out, w)
	}
	return out
}
