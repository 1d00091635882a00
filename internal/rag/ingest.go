package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/extract"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ID prefixes.
const (
	docPrefix      = "doc-"
	chunkPrefix    = "chunk-"
	entityPrefix   = "ent:"
	relationPrefix = "rel:"
	// relationSep joins the endpoints of a relation ID.
	relationSep = "\x1f"
)

// DocID is the content-derived ID of an ingested text.
func DocID(text string) string { return docPrefix + hashHex(strings.TrimSpace(text)) }

// ChunkID is the ID of a chunk of document docID. Identical text in two
// documents yields two chunks.
func ChunkID(docID, content string) string { return chunkPrefix + hashHex(docID + "\x00" + content) }

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func entityID(name string) string { return entityPrefix + name }

func relationID(k store.EdgeKey) string { return relationPrefix + k.Source + relationSep + k.Target }

func parseEntityID(id string) (string, bool) { return strings.CutPrefix(id, entityPrefix) }

func parseRelationID(id string) (store.EdgeKey, bool) {
	rest, ok := strings.CutPrefix(id, relationPrefix)
	if !ok {
		return store.EdgeKey{}, false
	}
	src, tgt, ok := strings.Cut(rest, relationSep)
	if !ok {
		return store.EdgeKey{}, false
	}
	return store.NewEdgeKey(src, tgt), true
}

// Ingest chunks, embeds and indexes text. Blank text and text that was
// already processed are no-ops. Every failure is an Indexing error naming
// the failed stage; stores are finalized either way.
func (e *Engine) Ingest(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		e.logger.Debug("ingest_skipped_empty")
		return nil
	}
	docID := DocID(text)
	_, err, _ := e.ingests.Do(docID, func() (any, error) {
		return nil, e.ingest(ctx, docID, text)
	})
	return err
}

// ingest indexes one document unless it is already processed. Ingests of
// different documents run concurrently.
func (e *Engine) ingest(ctx context.Context, docID, text string) error {
	existing, err := e.kv.GetDoc(ctx, docID)
	if err != nil {
		return amerrors.Indexing("status", err)
	}
	if existing != nil && existing.Status == store.DocStatusProcessed {
		e.logger.Info("document_already_indexed", slog.String("doc_id", docID))
		return nil
	}

	start := time.Now()
	doc := &store.DocRecord{
		ID:      docID,
		Summary: summary(text, 100),
		Length:  len(text),
		Status:  store.DocStatusProcessing,
	}
	if err := e.kv.PutDoc(ctx, doc); err != nil {
		return amerrors.Indexing("status", err)
	}

	stage, indexErr := e.index(ctx, docID, text, doc)
	// stores are flushed even when the request context is gone
	finalCtx := context.WithoutCancel(ctx)
	if err := e.finalize(finalCtx); err != nil && indexErr == nil {
		stage, indexErr = "finalize", err
	}

	if indexErr != nil {
		doc.Status = store.DocStatusFailed
		doc.Error = indexErr.Error()
		if err := e.kv.PutDoc(finalCtx, doc); err != nil {
			indexErr = errors.Join(indexErr, err)
		}
		e.logger.Error("document_index_failed",
			slog.String("doc_id", docID),
			slog.String("stage", stage),
			slog.String("error", indexErr.Error()))
		return amerrors.Indexing(stage, indexErr)
	}

	doc.Status = store.DocStatusProcessed
	doc.Error = ""
	if err := e.kv.PutDoc(finalCtx, doc); err != nil {
		return amerrors.Indexing("status", err)
	}
	if err := e.kv.Finalize(finalCtx); err != nil {
		return amerrors.Indexing("finalize", err)
	}
	e.logger.Info("document_indexed",
		slog.String("doc_id", docID),
		slog.Int("chunks", doc.ChunkCount),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// index runs the pipeline stages and returns the failed stage on error.
func (e *Engine) index(ctx context.Context, docID, text string, doc *store.DocRecord) (string, error) {
	var records []*store.ChunkRecord
	for c := range e.chunker.Chunks(text) {
		records = append(records, &store.ChunkRecord{
			ID:      ChunkID(docID, c.Content),
			DocID:   docID,
			Content: c.Content,
			Tokens:  c.TokenCount,
			Order:   c.Index,
		})
	}
	doc.ChunkCount = len(records)
	if len(records) == 0 {
		return "", nil
	}

	contents := make([]string, len(records))
	for i, r := range records {
		contents[i] = r.Content
	}
	vecs, err := e.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return "embed", err
	}
	items := make([]store.VectorItem, len(records))
	for i, r := range records {
		items[i] = store.VectorItem{ID: r.ID, Vector: vecs[i], Content: r.Content}
	}
	if err := e.vectors[store.NamespaceChunks].Upsert(ctx, items); err != nil {
		return "vector_upsert", err
	}
	if err := e.kv.PutChunks(ctx, records); err != nil {
		return "chunk_store", err
	}

	if e.graph == nil {
		return "", nil
	}
	results, err := e.extractAll(ctx, records)
	if err != nil {
		return "extract", err
	}
	return e.mergeGraph(ctx, results)
}

// extractAll runs the extractor over every chunk, bounded by
// MaxParallelInsert.
func (e *Engine) extractAll(ctx context.Context, records []*store.ChunkRecord) ([]*extract.Result, error) {
	results := make([]*extract.Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.Engine.MaxParallelInsert))
	for i, r := range records {
		g.Go(func() error {
			res, err := e.extractor.Extract(gctx, r.ID, r.Content)
			if err != nil {
				return fmt.Errorf("chunk %s: %w", r.ID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeGraph upserts extracted records, then re-reads the merged versions
// and indexes them for entity and relation retrieval.
func (e *Engine) mergeGraph(ctx context.Context, results []*extract.Result) (string, error) {
	var entities []*store.Entity
	var relations []*store.Relation
	for _, r := range results {
		if r.Empty() {
			continue
		}
		entities = append(entities, r.Entities...)
		relations = append(relations, r.Relations...)
	}
	if len(entities) == 0 && len(relations) == 0 {
		return "", nil
	}
	if err := e.graph.UpsertEntities(ctx, entities); err != nil {
		return "graph_upsert", err
	}
	if err := e.graph.UpsertRelations(ctx, relations); err != nil {
		return "graph_upsert", err
	}

	e.graphIndexMu.Lock()
	defer e.graphIndexMu.Unlock()

	names := make([]string, 0, len(entities))
	for _, ent := range entities {
		names = append(names, ent.Name)
	}
	slices.Sort(names)
	merged, err := e.graph.GetEntities(ctx, slices.Compact(names))
	if err != nil {
		return "graph_read", err
	}
	keys := make([]store.EdgeKey, 0, len(relations))
	seen := map[store.EdgeKey]bool{}
	for _, r := range relations {
		if k := r.Key(); !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	mergedRels, err := e.graph.GetRelations(ctx, keys)
	if err != nil {
		return "graph_read", err
	}

	if err := e.indexRecords(ctx, store.NamespaceEntities, entityRecords(merged)); err != nil {
		return "entity_index", err
	}
	if err := e.indexRecords(ctx, store.NamespaceRelationships, relationRecords(mergedRels)); err != nil {
		return "relation_index", err
	}
	return "", nil
}

// indexRecords embeds docs into namespace and adds them to the keyword index.
func (e *Engine) indexRecords(ctx context.Context, namespace string, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	items := make([]store.VectorItem, len(docs))
	for i, d := range docs {
		items[i] = store.VectorItem{ID: d.ID, Vector: vecs[i], Content: d.Content}
	}
	if err := e.vectors[namespace].Upsert(ctx, items); err != nil {
		return err
	}
	return e.keywords.Index(ctx, docs)
}

func entityRecords(entities []*store.Entity) []*store.Document {
	docs := make([]*store.Document, len(entities))
	for i, ent := range entities {
		docs[i] = &store.Document{
			ID:      entityID(ent.Name),
			Content: ent.Name + "\n" + plainDescription(ent.Description),
		}
	}
	return docs
}

func relationRecords(relations []*store.Relation) []*store.Document {
	docs := make([]*store.Document, len(relations))
	for i, r := range relations {
		docs[i] = &store.Document{
			ID: relationID(r.Key()),
			Content: r.Source + "\t" + r.Target + "\n" +
				strings.ReplaceAll(r.Keywords, ",", " ") + "\n" + plainDescription(r.Description),
		}
	}
	return docs
}

// plainDescription joins merged description fragments with spaces.
func plainDescription(desc string) string {
	return strings.ReplaceAll(desc, store.DescriptionSeparator, " ")
}

// summary returns the first n runes of text with whitespace collapsed.
func summary(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
