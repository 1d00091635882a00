package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/store"
)

const extractionPromptTemplate = `Extract the named entities and the relationships between them from the text below.

Entity types: %s

Respond with JSON only, in this shape:
{"entities":[{"name":"","type":"","description":""}],
 "relations":[{"source":"","target":"","description":"","keywords":"","weight":1}]}

Rules:
- Use the entity's name exactly as written in the text.
- "keywords" is a short comma-separated list of words describing the relationship.
- "weight" is the relationship strength from 1 to 10.

Text:
%s
`

type llmEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type llmRelation struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
	Keywords    string  `json:"keywords"`
	Weight      float64 `json:"weight"`
}

type llmOutput struct {
	Entities  []llmEntity   `json:"entities"`
	Relations []llmRelation `json:"relations"`
}

// LLMExtractor asks the completion model for entities and relations as
// JSON. A failed call or unparsable output falls back to the pattern
// extractor for that chunk.
type LLMExtractor struct {
	completer llm.Completer
	types     []string
	fallback  *PatternExtractor
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor. Types outside entityTypes are
// stored as UNKNOWN.
func NewLLMExtractor(c llm.Completer, entityTypes []string) *LLMExtractor {
	types := make([]string, 0, len(entityTypes))
	for _, t := range entityTypes {
		types = append(types, strings.ToLower(strings.TrimSpace(t)))
	}
	return &LLMExtractor{completer: c, types: types, fallback: NewPatternExtractor()}
}

// Name identifies the extractor.
func (l *LLMExtractor) Name() string { return "llm:" + l.completer.ModelName() }

// Extract returns an error only when ctx is done.
func (l *LLMExtractor) Extract(ctx context.Context, chunkID, text string) (*Result, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, strings.Join(l.types, ", "), text)
	raw, err := l.completer.Complete(ctx, prompt, "")
	if err == nil {
		var res *Result
		if res, err = l.parse(raw, chunkID); err == nil {
			return res, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	slog.Warn("extraction_fallback",
		slog.String("chunk_id", chunkID),
		slog.String("error", err.Error()))
	return l.fallback.Extract(ctx, chunkID, text)
}

func (l *LLMExtractor) parse(raw, chunkID string) (*Result, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var out llmOutput
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}

	res := &Result{}
	seen := map[string]*store.Entity{}
	for _, e := range out.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		if prev, ok := seen[name]; ok {
			prev.Description = appendSentence(prev.Description, strings.TrimSpace(e.Description))
			continue
		}
		ent := &store.Entity{
			Name:        name,
			Type:        l.entityType(e.Type),
			Description: strings.TrimSpace(e.Description),
			SourceIDs:   []string{chunkID},
		}
		seen[name] = ent
		res.Entities = append(res.Entities, ent)
	}
	for _, r := range out.Relations {
		src, tgt := strings.TrimSpace(r.Source), strings.TrimSpace(r.Target)
		key := store.NewEdgeKey(src, tgt)
		weight := r.Weight
		if weight <= 0 {
			weight = 1
		}
		res.Relations = append(res.Relations, &store.Relation{
			Source:      key.Source,
			Target:      key.Target,
			Description: strings.TrimSpace(r.Description),
			Keywords:    strings.TrimSpace(r.Keywords),
			Weight:      weight,
			SourceIDs:   []string{chunkID},
		})
	}
	ensureEndpoints(res, chunkID)
	return res, nil
}

func (l *LLMExtractor) entityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" || (len(l.types) > 0 && !slices.Contains(l.types, t)) {
		return store.UnknownEntityType
	}
	return t
}
