package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// errGraphDisabled is returned for graph modes when the graph backend is none.
var errGraphDisabled = errors.New("graph backend is disabled; only naive mode is available")

// retrieval is what a mode gathered before context assembly.
type retrieval struct {
	entities  []*store.Entity
	relations []*store.Relation
	chunks    []Source
}

func (r *retrieval) empty() bool {
	return len(r.entities) == 0 && len(r.relations) == 0 && len(r.chunks) == 0
}

// Query answers text in mode with the engine's default parameters.
func (e *Engine) Query(ctx context.Context, text string, mode Mode) *Answer {
	return e.QueryWithParam(ctx, text, QueryParam{Mode: mode})
}

// QueryWithParam answers text. It never panics and never returns nil:
// failures come back as a StatusError answer.
func (e *Engine) QueryWithParam(ctx context.Context, text string, p QueryParam) (ans *Answer) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query_panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			ans = errorAnswer(p.Mode, amerrors.QueryFailed("panic", fmt.Errorf("%v", r)))
		}
		e.logger.Info("query_done",
			slog.String("mode", string(ans.Mode)),
			slog.String("status", string(ans.Status)),
			slog.Int("sources", len(ans.Sources)),
			slog.Duration("duration", time.Since(start)))
	}()

	mode, err := ParseMode(string(p.Mode))
	if err != nil {
		return errorAnswer(p.Mode, err)
	}
	p = e.withDefaults(p)
	p.Mode = mode
	if strings.TrimSpace(text) == "" {
		return errorAnswer(mode, amerrors.New(amerrors.ErrCodeQueryEmpty, "query text is empty", nil))
	}

	r, err := e.retrieve(ctx, text, p)
	if err != nil {
		e.logger.Warn("query_failed", slog.String("mode", string(mode)), slog.String("error", err.Error()))
		return errorAnswer(mode, amerrors.QueryFailed("retrieval", err))
	}

	contextText := e.buildContext(r, p.MaxContextTokens)
	ans = &Answer{
		Mode:      mode,
		Sources:   r.chunks,
		Entities:  entityNames(r.entities),
		Relations: relationLabels(r.relations),
	}
	if contextText == "" {
		ans.Status = StatusNoContext
		ans.Text = FailResponse
		return ans
	}
	ans.Context = contextText
	if p.OnlyNeedContext {
		ans.Status = StatusOK
		ans.Text = contextText
		return ans
	}

	out, err := e.completer.Complete(ctx, text, contextText)
	if err != nil {
		e.logger.Warn("query_failed", slog.String("mode", string(mode)), slog.String("error", err.Error()))
		failed := errorAnswer(mode, amerrors.QueryFailed("completion", err))
		failed.Sources, failed.Entities, failed.Relations = ans.Sources, ans.Entities, ans.Relations
		return failed
	}
	if strings.TrimSpace(out) == "" {
		out = FailResponse
	}
	ans.Status = StatusOK
	ans.Text = out
	return ans
}

func (e *Engine) withDefaults(p QueryParam) QueryParam {
	if p.TopK <= 0 {
		p.TopK = e.cfg.Engine.TopK
	}
	if p.ChunkTopK <= 0 {
		p.ChunkTopK = e.cfg.Engine.ChunkTopK
	}
	if p.MaxContextTokens <= 0 {
		p.MaxContextTokens = e.cfg.Engine.MaxContextTokens
	}
	return p
}

func (e *Engine) retrieve(ctx context.Context, text string, p QueryParam) (*retrieval, error) {
	if p.Mode != ModeNaive && e.graph == nil {
		return nil, errGraphDisabled
	}
	qvec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	switch p.Mode {
	case ModeNaive:
		return e.naive(ctx, qvec, p)
	case ModeLocal:
		return e.local(ctx, text, qvec, p)
	case ModeGlobal:
		return e.global(ctx, text, qvec, p)
	default:
		return e.hybrid(ctx, text, qvec, p)
	}
}

func (e *Engine) naive(ctx context.Context, qvec []float32, p QueryParam) (*retrieval, error) {
	hits, err := e.vectors[store.NamespaceChunks].Search(ctx, qvec, p.ChunkTopK)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = float64(h.Score)
	}
	chunks, err := e.loadChunks(ctx, ids, scores)
	if err != nil {
		return nil, err
	}
	return &retrieval{chunks: chunks}, nil
}

// local matches entities, expands to their edges and collects the source
// chunks of both.
func (e *Engine) local(ctx context.Context, text string, qvec []float32, p QueryParam) (*retrieval, error) {
	ids, err := e.match(ctx, text, qvec, store.NamespaceEntities, entityPrefix, p.TopK)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := parseEntityID(id); ok {
			names = append(names, name)
		}
	}
	entities, err := e.graph.GetEntities(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	var relations []*store.Relation
	seen := map[store.EdgeKey]bool{}
	for _, ent := range entities {
		edges, err := e.graph.EntityRelations(ctx, ent.Name)
		if err != nil {
			return nil, fmt.Errorf("load relations of %s: %w", ent.Name, err)
		}
		for _, r := range edges {
			if k := r.Key(); !seen[k] {
				seen[k] = true
				relations = append(relations, r)
			}
		}
	}
	slices.SortStableFunc(relations, func(a, b *store.Relation) int { return cmp.Compare(b.Weight, a.Weight) })
	if len(relations) > p.TopK {
		relations = relations[:p.TopK]
	}

	var chunkIDs []string
	for _, ent := range entities {
		chunkIDs = append(chunkIDs, ent.SourceIDs...)
	}
	for _, r := range relations {
		chunkIDs = append(chunkIDs, r.SourceIDs...)
	}
	chunks, err := e.rankChunks(ctx, qvec, chunkIDs, p.ChunkTopK)
	if err != nil {
		return nil, err
	}
	return &retrieval{entities: entities, relations: relations, chunks: chunks}, nil
}

// global matches relations and collects their endpoints and source chunks.
func (e *Engine) global(ctx context.Context, text string, qvec []float32, p QueryParam) (*retrieval, error) {
	ids, err := e.match(ctx, text, qvec, store.NamespaceRelationships, relationPrefix, p.TopK)
	if err != nil {
		return nil, err
	}
	keys := make([]store.EdgeKey, 0, len(ids))
	for _, id := range ids {
		if k, ok := parseRelationID(id); ok {
			keys = append(keys, k)
		}
	}
	relations, err := e.graph.GetRelations(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}

	var names []string
	seen := map[string]bool{}
	var chunkIDs []string
	for _, r := range relations {
		for _, n := range []string{r.Source, r.Target} {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
		chunkIDs = append(chunkIDs, r.SourceIDs...)
	}
	entities, err := e.graph.GetEntities(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	chunks, err := e.rankChunks(ctx, qvec, chunkIDs, p.ChunkTopK)
	if err != nil {
		return nil, err
	}
	return &retrieval{entities: entities, relations: relations, chunks: chunks}, nil
}

// hybrid runs local and global concurrently, merges them and reranks the
// chunks when a reranker is configured.
func (e *Engine) hybrid(ctx context.Context, text string, qvec []float32, p QueryParam) (*retrieval, error) {
	var loc, glob *retrieval
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		loc, err = e.local(gctx, text, qvec, p)
		return err
	})
	g.Go(func() (err error) {
		glob, err = e.global(gctx, text, qvec, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &retrieval{}
	seenEnt := map[string]bool{}
	seenRel := map[store.EdgeKey]bool{}
	seenChunk := map[string]bool{}
	for _, r := range []*retrieval{loc, glob} {
		for _, ent := range r.entities {
			if !seenEnt[ent.Name] {
				seenEnt[ent.Name] = true
				merged.entities = append(merged.entities, ent)
			}
		}
		for _, rel := range r.relations {
			if k := rel.Key(); !seenRel[k] {
				seenRel[k] = true
				merged.relations = append(merged.relations, rel)
			}
		}
	}
	// interleave so neither side crowds the other out of ChunkTopK
	for i := 0; i < max(len(loc.chunks), len(glob.chunks)); i++ {
		for _, r := range []*retrieval{loc, glob} {
			if i < len(r.chunks) && !seenChunk[r.chunks[i].ChunkID] {
				seenChunk[r.chunks[i].ChunkID] = true
				merged.chunks = append(merged.chunks, r.chunks[i])
			}
		}
	}

	merged.chunks = e.rerank(ctx, text, merged.chunks, p.ChunkTopK)
	return merged, nil
}

// match fuses keyword and vector matches for one namespace. The keyword
// index holds both entities and relations, so hits are filtered by prefix.
func (e *Engine) match(ctx context.Context, text string, qvec []float32, namespace, prefix string, topK int) ([]string, error) {
	var kwHits []*store.KeywordResult
	var vecHits []*store.VectorResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.keywords.Search(gctx, text, topK*3)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		for _, h := range hits {
			if strings.HasPrefix(h.DocID, prefix) && len(kwHits) < topK {
				kwHits = append(kwHits, h)
			}
		}
		return nil
	})
	g.Go(func() (err error) {
		vecHits, err = e.vectors[namespace].Search(gctx, qvec, topK)
		if err != nil {
			return fmt.Errorf("%s vector search: %w", namespace, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	fused := e.fusion.Fuse(kwHits, vecHits, search.DefaultWeights())
	return search.IDs(fused, topK), nil
}

// rankChunks orders candidate chunk IDs by vector similarity to the query
// and keeps the best limit. Candidates the vector search does not reach keep
// their graph order after the scored ones.
func (e *Engine) rankChunks(ctx context.Context, qvec []float32, candidates []string, limit int) ([]Source, error) {
	ids := make([]string, 0, len(candidates))
	seen := map[string]bool{}
	for _, id := range candidates {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hits, err := e.vectors[store.NamespaceChunks].Search(ctx, qvec, max(limit*4, len(ids)))
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = float64(h.Score)
	}
	slices.SortStableFunc(ids, func(a, b string) int { return cmp.Compare(scores[b], scores[a]) })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return e.loadChunks(ctx, ids, scores)
}

func (e *Engine) loadChunks(ctx context.Context, ids []string, scores map[string]float64) ([]Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := e.kv.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	out := make([]Source, len(records))
	for i, r := range records {
		out[i] = Source{ChunkID: r.ID, DocID: r.DocID, Content: r.Content, Score: scores[r.ID]}
	}
	return out, nil
}

// rerank reorders chunks with the configured reranker. A reranker failure
// keeps the retrieval order.
func (e *Engine) rerank(ctx context.Context, query string, chunks []Source, limit int) []Source {
	if len(chunks) > 1 && !search.IsNoOp(e.reranker) {
		docs := make([]string, len(chunks))
		for i, c := range chunks {
			docs[i] = c.Content
		}
		results, err := e.reranker.Rerank(ctx, query, docs, limit)
		if err == nil {
			out := make([]Source, 0, len(results))
			for _, r := range results {
				c := chunks[r.Index]
				c.Score = r.Score
				out = append(out, c)
			}
			return out
		}
		e.logger.Warn("rerank_failed", slog.String("error", err.Error()))
	}
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}

func entityNames(entities []*store.Entity) []string {
	out := make([]string, len(entities))
	for i, ent := range entities {
		out[i] = ent.Name
	}
	return out
}

func relationLabels(relations []*store.Relation) []string {
	out := make([]string, len(relations))
	for i, r := range relations {
		out[i] = r.Source + " -- " + r.Target
	}
	return out
}
