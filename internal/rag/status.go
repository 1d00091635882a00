package rag

import (
	"context"
	"fmt"
)

// IndexStatus summarizes what the engine holds.
type IndexStatus struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	Entities       int            `json:"entities"`
	Relations      int            `json:"relations"`
	Vectors        map[string]int `json:"vectors"`
	Keywords       int            `json:"keywords"`
	GraphBackend   string         `json:"graph_backend"`
	VectorBackend  string         `json:"vector_backend"`
	KeywordBackend string         `json:"keyword_backend"`
	EmbeddingModel string         `json:"embedding_model"`
	LLMModel       string         `json:"llm_model"`
	Extractor      string         `json:"extractor"`
	WorkingDir     string         `json:"working_dir"`
}

// Status reports store counts and the active backends and models.
func (e *Engine) Status(ctx context.Context) (*IndexStatus, error) {
	st := &IndexStatus{
		Vectors:        make(map[string]int, len(e.vectors)),
		Keywords:       e.keywords.Count(),
		GraphBackend:   e.cfg.Engine.GraphBackend,
		VectorBackend:  e.cfg.Engine.VectorBackend,
		KeywordBackend: e.cfg.Engine.KeywordBackend,
		EmbeddingModel: e.embedder.ModelName(),
		LLMModel:       e.completer.ModelName(),
		Extractor:      e.extractor.Name(),
		WorkingDir:     e.cfg.Paths.WorkingDir,
	}
	var err error
	if st.Documents, st.Chunks, err = e.kv.Counts(ctx); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if e.graph != nil {
		if st.Entities, st.Relations, err = e.graph.Counts(ctx); err != nil {
			return nil, fmt.Errorf("count graph: %w", err)
		}
	}
	for ns, vs := range e.vectors {
		st.Vectors[ns] = vs.Count()
	}
	return st, nil
}
