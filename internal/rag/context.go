package rag

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/chunk"
)

// Context section headers. The extractive completer keys on the Sources
// header.
const (
	entitiesHeader  = "-----Entities-----"
	relationsHeader = "-----Relationships-----"
	sourcesHeader   = "-----Sources-----"
)

// buildContext renders the retrieval as Entities, Relationships and Sources
// sections within maxTokens. Entities and relationships get at most a
// quarter of the budget each; sources get the rest. Returns "" when nothing
// fits.
func (e *Engine) buildContext(r *retrieval, maxTokens int) string {
	if r.empty() || maxTokens <= 0 {
		return ""
	}
	var ents, rels []string
	for _, ent := range r.entities {
		typ := ent.Type
		if typ == "" {
			typ = "UNKNOWN"
		}
		ents = append(ents, fmt.Sprintf("- %s (%s): %s", ent.Name, typ, plainDescription(ent.Description)))
	}
	for _, rel := range r.relations {
		line := fmt.Sprintf("- %s -- %s", rel.Source, rel.Target)
		if rel.Keywords != "" {
			line += " [" + rel.Keywords + "]"
		}
		rels = append(rels, line+": "+plainDescription(rel.Description))
	}

	budget := maxTokens
	entLines, used := e.fit(ents, maxTokens/4)
	budget -= used
	relLines, used := e.fit(rels, maxTokens/4)
	budget -= used

	srcs := make([]string, len(r.chunks))
	for i, c := range r.chunks {
		srcs[i] = fmt.Sprintf("[%d] %s", i+1, strings.TrimSpace(c.Content))
	}
	srcLines, _ := e.fit(srcs, budget)

	var b strings.Builder
	section := func(header string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	section(entitiesHeader, entLines)
	section(relationsHeader, relLines)
	section(sourcesHeader, srcLines)
	return b.String()
}

// fit keeps whole lines while they fit in budget tokens and truncates the
// first line that does not. It returns the kept lines and tokens used.
func (e *Engine) fit(lines []string, budget int) ([]string, int) {
	var out []string
	used := 0
	for _, line := range lines {
		if used >= budget {
			break
		}
		n := e.tokenizer.Count(line)
		if used+n > budget {
			if cut := chunk.Truncate(e.tokenizer, line, budget-used); cut != "" {
				out = append(out, cut)
				used = budget
			}
			break
		}
		out = append(out, line)
		used += n
	}
	return out, used
}
