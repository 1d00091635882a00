// Package rag is the retrieval engine: it ingests text into vector, keyword
// and knowledge-graph storage and answers questions in one of four
// retrieval modes.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/amanrag/internal/backend"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/extract"
	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

const (
	kvStoreFile = "kv_store.db"
	lockFile    = ".lock"
)

// live is set while an Engine is open in this process.
var live atomic.Bool

// Engine owns every store for one working directory. Only one Engine may be
// open per process; use lifecycle.Instance to share it.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock

	chunker   *chunk.Chunker
	tokenizer chunk.Tokenizer
	fusion    *search.RRFFusion

	embedder  embed.Embedder
	completer llm.Completer
	reranker  search.Reranker
	extractor extract.Extractor

	kv       store.KVStore
	graph    store.GraphStore // nil when the graph backend is none
	vectors  map[string]store.VectorStore
	keywords store.KeywordIndex

	// ingests collapses concurrent ingests of the same document.
	ingests singleflight.Group
	// graphIndexMu orders re-reading merged graph records with indexing
	// them, so the last writer indexes the latest merge.
	graphIndexMu sync.Mutex
	closeOnce    sync.Once
	closeErr  error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e embed.Embedder) Option { return func(en *Engine) { en.embedder = e } }

// WithCompleter replaces the configured completion provider.
func WithCompleter(c llm.Completer) Option { return func(en *Engine) { en.completer = c } }

// WithReranker replaces the configured reranker.
func WithReranker(r search.Reranker) Option { return func(en *Engine) { en.reranker = r } }

// WithExtractor replaces the configured entity extractor.
func WithExtractor(x extract.Extractor) Option { return func(en *Engine) { en.extractor = x } }

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(en *Engine) { en.logger = l } }

// WithTokenizer replaces the word tokenizer used for chunking and context
// budgets.
func WithTokenizer(t chunk.Tokenizer) Option { return func(en *Engine) { en.tokenizer = t } }

// New opens an Engine over cfg.Paths.WorkingDir. It fails with
// AlreadyInitialized while another Engine is open in the process and with
// StorageLocked when another process holds the working directory.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, amerrors.InvalidConfig("engine requires a configuration")
	}
	if !live.CompareAndSwap(false, true) {
		return nil, amerrors.AlreadyInitialized()
	}

	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.open(ctx); err != nil {
		e.release()
		return nil, err
	}

	e.logger.Info("engine_initialized",
		slog.String("working_dir", cfg.Paths.WorkingDir),
		slog.String("graph_backend", cfg.Engine.GraphBackend),
		slog.String("vector_backend", cfg.Engine.VectorBackend),
		slog.String("keyword_backend", cfg.Engine.KeywordBackend),
		slog.String("embedding_model", e.embedder.ModelName()),
		slog.Int("dimensions", e.embedder.Dimensions()),
		slog.String("completion_model", e.completer.ModelName()),
		slog.String("extractor", e.extractor.Name()))
	return e, nil
}

func (e *Engine) open(ctx context.Context) error {
	cfg := e.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := backend.Validate(cfg.Engine); err != nil {
		return err
	}

	dir := cfg.Paths.WorkingDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return amerrors.New(amerrors.ErrCodeWriteFailed, "create working directory", err).
			WithDetail("path", dir)
	}
	e.lock = flock.New(filepath.Join(dir, lockFile))
	locked, err := e.lock.TryLock()
	if err != nil {
		return amerrors.New(amerrors.ErrCodeStorageLocked, "lock working directory", err)
	}
	if !locked {
		return amerrors.New(amerrors.ErrCodeStorageLocked, "working directory is in use by another process", nil).
			WithDetail("path", dir).
			WithSuggestion("Stop the other amanrag process or use a different working_dir")
	}

	if e.tokenizer == nil {
		e.tokenizer = chunk.NewWordTokenizer()
	}
	if e.chunker, err = chunk.New(cfg.Engine.ChunkTokenSize, cfg.Engine.ChunkOverlapTokenSize, e.tokenizer); err != nil {
		return err
	}
	e.fusion = search.NewRRFFusionWithK(cfg.Engine.RRFConstant)

	if err := e.openProviders(ctx); err != nil {
		return err
	}
	return e.openStores(ctx)
}

func (e *Engine) openProviders(ctx context.Context) error {
	var err error
	cfg := e.cfg
	if e.embedder == nil {
		if e.embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings); err != nil {
			return err
		}
	}
	if e.completer == nil {
		if e.completer, err = llm.NewCompleter(cfg.LLM, cfg.LLMTimeout()); err != nil {
			return err
		}
	}
	if e.reranker == nil {
		if e.reranker, err = search.NewReranker(cfg.Rerank); err != nil {
			return err
		}
	}
	if e.extractor == nil {
		if e.extractor, err = extract.New(cfg.Extraction.Mode, e.completer, cfg.Extraction.EntityTypes); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) openStores(ctx context.Context) error {
	cfg := e.cfg
	base := backend.Options{
		WorkingDir: cfg.Paths.WorkingDir,
		Dimensions: e.embedder.Dimensions(),
		Config:     cfg,
	}

	kv, err := store.NewSQLiteKVStore(filepath.Join(cfg.Paths.WorkingDir, kvStoreFile))
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	e.kv = kv

	graphFactory, err := backend.Graph.Resolve(cfg.Engine.GraphBackend)
	if err != nil {
		return err
	}
	if e.graph, err = graphFactory(ctx, base); err != nil {
		return fmt.Errorf("open graph backend %s: %w", cfg.Engine.GraphBackend, err)
	}

	vectorFactory, err := backend.Vector.Resolve(cfg.Engine.VectorBackend)
	if err != nil {
		return err
	}
	e.vectors = make(map[string]store.VectorStore, 3)
	for _, ns := range e.namespaces() {
		opts := base
		opts.Namespace = ns
		vs, err := vectorFactory(ctx, opts)
		if err != nil {
			return fmt.Errorf("open vector backend %s (%s): %w", cfg.Engine.VectorBackend, ns, err)
		}
		e.vectors[ns] = vs
	}

	keywordFactory, err := backend.Keyword.Resolve(cfg.Engine.KeywordBackend)
	if err != nil {
		return err
	}
	if e.keywords, err = keywordFactory(ctx, base); err != nil {
		return fmt.Errorf("open keyword backend %s: %w", cfg.Engine.KeywordBackend, err)
	}
	return nil
}

// namespaces lists the vector collections this engine keeps. Entity and
// relationship vectors exist only with a graph.
func (e *Engine) namespaces() []string {
	if e.graph == nil {
		return []string{store.NamespaceChunks}
	}
	return []string{store.NamespaceChunks, store.NamespaceEntities, store.NamespaceRelationships}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// GraphEnabled reports whether local, global and hybrid modes are usable.
func (e *Engine) GraphEnabled() bool { return e.graph != nil }

// finalize flushes every store. It runs after each ingest, successful or not.
func (e *Engine) finalize(ctx context.Context) error {
	var errs []error
	for _, ns := range e.namespaces() {
		if err := e.vectors[ns].Finalize(ctx); err != nil {
			errs = append(errs, fmt.Errorf("vector %s: %w", ns, err))
		}
	}
	if err := e.keywords.Finalize(ctx); err != nil {
		errs = append(errs, fmt.Errorf("keyword: %w", err))
	}
	if e.graph != nil {
		if err := e.graph.Finalize(ctx); err != nil {
			errs = append(errs, fmt.Errorf("graph: %w", err))
		}
	}
	if err := e.kv.Finalize(ctx); err != nil {
		errs = append(errs, fmt.Errorf("kv: %w", err))
	}
	return errors.Join(errs...)
}

// Close finalizes and closes every store, releases the working directory
// lock and allows a new Engine in this process.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.closeErr = e.finalize(ctx)
		e.release()
		e.logger.Info("engine_closed", slog.Duration("duration", time.Since(start)))
	})
	return e.closeErr
}

// release closes whatever was opened and frees the process slot.
func (e *Engine) release() {
	defer live.Store(false)
	closeQuietly := func(name string, c interface{ Close() error }) {
		if err := c.Close(); err != nil {
			e.logger.Warn("close_failed", slog.String("component", name), slog.String("error", err.Error()))
		}
	}
	for ns, vs := range e.vectors {
		closeQuietly("vector_"+ns, vs)
	}
	if e.keywords != nil {
		closeQuietly("keyword", e.keywords)
	}
	if e.graph != nil {
		closeQuietly("graph", e.graph)
	}
	if e.kv != nil {
		closeQuietly("kv", e.kv)
	}
	if e.embedder != nil {
		closeQuietly("embedder", e.embedder)
	}
	if e.reranker != nil {
		closeQuietly("reranker", e.reranker)
	}
	if e.lock != nil {
		_ = e.lock.Unlock()
	}
}
