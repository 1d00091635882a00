// Package extract pulls entities and relations out of chunk text for the
// knowledge graph.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Result holds what one chunk contributed to the graph.
type Result struct {
	Entities  []*store.Entity
	Relations []*store.Relation
}

// Empty reports whether nothing was extracted.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Entities) == 0 && len(r.Relations) == 0)
}

// Extractor turns chunk text into graph records tagged with chunkID.
type Extractor interface {
	Extract(ctx context.Context, chunkID, text string) (*Result, error)
	Name() string
}

// Extraction modes.
const (
	ModeAuto    = "auto"
	ModeLLM     = "llm"
	ModePattern = "pattern"
)

// New builds the extractor for mode. auto uses the LLM extractor unless the
// completer is the offline extractive one.
func New(mode string, completer llm.Completer, entityTypes []string) (Extractor, error) {
	switch strings.ToLower(mode) {
	case "", ModeAuto:
		if completer == nil || llm.IsExtractive(completer) {
			return NewPatternExtractor(), nil
		}
		return NewLLMExtractor(completer, entityTypes), nil
	case ModeLLM:
		if completer == nil {
			return nil, fmt.Errorf("llm extraction requires a completer")
		}
		return NewLLMExtractor(completer, entityTypes), nil
	case ModePattern:
		return NewPatternExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extraction mode %q (valid: auto, llm, pattern)", mode)
	}
}

// ensureEndpoints adds an UNKNOWN entity for every relation endpoint that
// was not extracted as an entity, and drops self-loops.
func ensureEndpoints(res *Result, chunkID string) {
	known := make(map[string]bool, len(res.Entities))
	for _, e := range res.Entities {
		known[e.Name] = true
	}
	kept := res.Relations[:0]
	for _, r := range res.Relations {
		if r.Source == r.Target || r.Source == "" || r.Target == "" {
			continue
		}
		for _, name := range []string{r.Source, r.Target} {
			if !known[name] {
				known[name] = true
				res.Entities = append(res.Entities, &store.Entity{
					Name:        name,
					Type:        store.UnknownEntityType,
					Description: r.Description,
					SourceIDs:   []string{chunkID},
				})
			}
		}
		kept = append(kept, r)
	}
	res.Relations = kept
}
