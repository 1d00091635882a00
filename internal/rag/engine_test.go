package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// countingEmbedder wraps the static embedder and can be told to fail.
type countingEmbedder struct {
	*embed.StaticEmbedder
	batches atomic.Int32
	fail    atomic.Bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches.Add(1)
	if c.fail.Load() {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "embedding provider down", nil)
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

// overlapEmbedder holds each batch until another batch is in flight, or
// until a timeout, and records the peak number of concurrent batches.
type overlapEmbedder struct {
	*embed.StaticEmbedder
	inflight atomic.Int32
	peak     atomic.Int32
}

func (o *overlapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := o.inflight.Add(1)
	defer o.inflight.Add(-1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for o.peak.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return o.StaticEmbedder.EmbedBatch(ctx, texts)
}

// fakeCompleter records calls and returns a fixed reply.
type fakeCompleter struct {
	reply string
	err   error
	panic bool
	calls atomic.Int32
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("completer exploded")
	}
	return f.reply, f.err
}

func (f *fakeCompleter) ModelName() string { return "fake" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.WorkingDir = filepath.Join(dir, "rag_storage")
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.UploadDir = filepath.Join(dir, "uploads")
	cfg.Engine.GraphBackend = "memory"
	cfg.Engine.VectorBackend = "memory"
	cfg.Engine.KeywordBackend = "sqlite"
	cfg.Embeddings.Provider = "static"
	cfg.LLM.Provider = "extractive"
	cfg.Extraction.Mode = "pattern"
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew_SecondEngineIsRejected(t *testing.T) {
	// Given: a live engine
	first := newTestEngine(t, testConfig(t))

	// When: another is opened in the same process
	_, err := New(context.Background(), testConfig(t))

	// Then
	require.Error(t, err)
	assert.True(t, errors.Is(err, amerrors.ErrAlreadyInitialized))

	// And: closing the first frees the slot
	require.NoError(t, first.Close())
	second, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestNew_InvalidConfigReleasesSlot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.ChunkOverlapTokenSize = cfg.Engine.ChunkTokenSize

	_, err := New(context.Background(), cfg)
	assert.True(t, errors.Is(err, amerrors.ErrInvalidConfig))

	newTestEngine(t, testConfig(t))
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.VectorBackend = "faiss-gpu"

	_, err := New(context.Background(), cfg)
	assert.True(t, errors.Is(err, amerrors.ErrUnknownBackend))
	assert.False(t, live.Load())
}

func TestNew_WorkingDirLockedByAnotherProcess(t *testing.T) {
	// Given: someone else holds the working directory lock
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.WorkingDir, 0o755))
	other := flock.New(filepath.Join(cfg.Paths.WorkingDir, lockFile))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	// When
	_, err = New(context.Background(), cfg)

	// Then
	assert.True(t, errors.Is(err, amerrors.ErrStorageLocked))
	assert.False(t, live.Load())
}

func TestIngest_EmptyTextIsNoop(t *testing.T) {
	emb := newCountingEmbedder()
	e := newTestEngine(t, testConfig(t), WithEmbedder(emb))

	require.NoError(t, e.Ingest(context.Background(), "  \n\t "))

	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Documents)
	assert.Zero(t, emb.batches.Load())
}

func TestIngest_BuildsGraphAndSkipsReingest(t *testing.T) {
	// Given
	ctx := context.Background()
	emb := newCountingEmbedder()
	e := newTestEngine(t, testConfig(t), WithEmbedder(emb))

	// When
	require.NoError(t, e.Ingest(ctx, "Alpha loves Beta."))

	// Then: one chunk, two entities, one relation, all indexed
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 2, st.Entities)
	assert.Equal(t, 1, st.Relations)
	assert.Equal(t, 1, st.Vectors[store.NamespaceChunks])
	assert.Equal(t, 2, st.Vectors[store.NamespaceEntities])
	assert.Equal(t, 1, st.Vectors[store.NamespaceRelationships])
	assert.Equal(t, 3, st.Keywords)

	doc, err := e.kv.GetDoc(ctx, DocID("Alpha loves Beta."))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.DocStatusProcessed, doc.Status)

	// When: the same text arrives again
	before := emb.batches.Load()
	require.NoError(t, e.Ingest(ctx, "Alpha loves Beta.\n"))

	// Then: nothing is embedded twice
	assert.Equal(t, before, emb.batches.Load())
}

func TestIngest_EmbeddingFailureIsIndexingError(t *testing.T) {
	// Given: an embedder that fails
	ctx := context.Background()
	emb := newCountingEmbedder()
	emb.fail.Store(true)
	e := newTestEngine(t, testConfig(t), WithEmbedder(emb))

	// When
	err := e.Ingest(ctx, "Alpha loves Beta.")

	// Then
	require.Error(t, err)
	assert.True(t, errors.Is(err, amerrors.ErrIndexing))
	assert.Contains(t, err.Error(), "embed")

	doc, err := e.kv.GetDoc(ctx, DocID("Alpha loves Beta."))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.DocStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)

	// And: a later attempt retries the failed document
	emb.fail.Store(false)
	require.NoError(t, e.Ingest(ctx, "Alpha loves Beta."))
}

func TestIngest_WithoutGraph(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.GraphBackend = "none"
	e := newTestEngine(t, cfg)

	require.NoError(t, e.Ingest(context.Background(), "Alpha loves Beta."))

	assert.False(t, e.GraphEnabled())
	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Chunks)
	assert.Zero(t, st.Entities)
	assert.Len(t, st.Vectors, 1)
}

func TestEngine_PersistsAcrossReopen(t *testing.T) {
	// Given: an engine that indexed a document and was closed
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Engine.VectorBackend = "hnsw"
	e, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Ingest(ctx, "Alpha loves Beta."))
	require.NoError(t, e.Close())

	// When: a new engine opens the same working directory
	reopened := newTestEngine(t, cfg)

	// Then
	ans := reopened.Query(ctx, "Who does Alpha love?", ModeNaive)
	require.True(t, ans.OK(), ans.Error)
	assert.Equal(t, "Alpha loves Beta.", ans.Text)
}

func TestEngine_ConcurrentQueriesAndIngest(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(t))
	require.NoError(t, e.Ingest(ctx, "Alpha loves Beta."))

	done := make(chan *Answer, 8)
	for range 8 {
		go func() { done <- e.Query(ctx, "Alpha", ModeHybrid) }()
	}
	require.NoError(t, e.Ingest(ctx, "Gamma admires Delta."))
	for range 8 {
		assert.NotEqual(t, StatusError, (<-done).Status)
	}
}

func TestIngest_DifferentDocumentsRunConcurrently(t *testing.T) {
	// Given: an embedder that only proceeds once batches overlap
	ctx := context.Background()
	emb := &overlapEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	e := newTestEngine(t, testConfig(t), WithEmbedder(emb))
	texts := []string{"Alpha loves Beta.", "Gamma admires Delta.", "Epsilon visits Zeta.", "Eta knows Theta."}

	// When
	var wg sync.WaitGroup
	errs := make([]error, len(texts))
	for i, text := range texts {
		wg.Go(func() { errs[i] = e.Ingest(ctx, text) })
	}
	wg.Wait()

	// Then: the ingests overlapped and all of them landed
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, emb.peak.Load(), int32(2))
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(texts), st.Documents)
	assert.Equal(t, len(texts), st.Chunks)
}

func TestIngest_SameDocumentConcurrentlyIndexesOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(t))

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() { assert.NoError(t, e.Ingest(ctx, "Alpha loves Beta.")) })
	}
	wg.Wait()

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 1, st.Vectors[store.NamespaceChunks])
}

func TestIngest_SharedChunkKeepsEachDocument(t *testing.T) {
	// Given: two documents that open with the same chunk
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Engine.ChunkTokenSize = 4
	cfg.Engine.ChunkOverlapTokenSize = 0
	e := newTestEngine(t, cfg)
	first, second := "Alpha loves Beta. Epsilon.", "Alpha loves Beta. Zeta."
	shared := e.chunker.Collect(first)[0].Content
	require.Equal(t, shared, e.chunker.Collect(second)[0].Content)

	// When
	require.NoError(t, e.Ingest(ctx, first))
	require.NoError(t, e.Ingest(ctx, second))

	// Then: each document keeps its own copy of the shared chunk
	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Chunks)

	ids := []string{ChunkID(DocID(first), shared), ChunkID(DocID(second), shared)}
	assert.NotEqual(t, ids[0], ids[1])
	recs, err := e.kv.GetChunks(ctx, ids)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	owners := map[string]string{}
	for _, r := range recs {
		owners[r.ID] = r.DocID
	}
	assert.Equal(t, DocID(first), owners[ids[0]])
	assert.Equal(t, DocID(second), owners[ids[1]])
}

var _ llm.Completer = (*fakeCompleter)(nil)
