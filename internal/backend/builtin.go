package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Built-in backend names.
const (
	GraphSQLite  = "sqlite"
	GraphMemory  = "memory"
	GraphNeo4j   = "neo4j"
	GraphNone    = "none"
	VectorHNSW   = "hnsw"
	VectorSQLite = "sqlite"
	VectorMemory = "memory"
	VectorQdrant = "qdrant"
)

// Default registries, populated with the built-in backends.
var (
	Graph   = NewRegistry[store.GraphStore]("graph")
	Vector  = NewRegistry[store.VectorStore]("vector")
	Keyword = NewRegistry[store.KeywordIndex]("keyword")
)

func init() {
	Graph.Register(GraphSQLite, func(_ context.Context, o Options) (store.GraphStore, error) {
		return store.NewSQLiteGraphStore(pathIn(o.WorkingDir, "graph.db"))
	})
	Graph.Register(GraphMemory, func(_ context.Context, o Options) (store.GraphStore, error) {
		return store.NewMemoryGraphStore(pathIn(o.WorkingDir, "graph.gob"))
	})
	Graph.Register(GraphNeo4j, func(ctx context.Context, o Options) (store.GraphStore, error) {
		nc := neo4jSettings(o.Config)
		return store.NewNeo4jGraphStore(ctx, store.Neo4jConfig{
			URI:       nc.URI,
			Username:  nc.Username,
			Password:  nc.Password,
			Database:  nc.Database,
			Workspace: workspaceName(o.WorkingDir),
		})
	})
	// none disables the graph; the engine then only answers naive queries.
	Graph.Register(GraphNone, func(context.Context, Options) (store.GraphStore, error) {
		return nil, nil
	})
	Graph.Alias("Neo4JStorage", GraphNeo4j)
	Graph.Alias("NetworkXStorage", GraphMemory)

	Vector.Register(VectorHNSW, func(_ context.Context, o Options) (store.VectorStore, error) {
		return store.NewHNSWStore(vectorConfig(o, ".hnsw"))
	})
	Vector.Register(VectorSQLite, func(_ context.Context, o Options) (store.VectorStore, error) {
		return store.NewSQLiteVectorStore(vectorConfig(o, ".db"))
	})
	Vector.Register(VectorMemory, func(_ context.Context, o Options) (store.VectorStore, error) {
		return store.NewMemoryVectorStore(vectorConfig(o, ""))
	})
	Vector.Register(VectorQdrant, func(_ context.Context, o Options) (store.VectorStore, error) {
		qc := qdrantSettings(o.Config)
		return store.NewQdrantStore(vectorConfig(o, ""), store.QdrantConfig{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: fmt.Sprintf("%s_%s_%s", qc.CollectionPrefix, workspaceName(o.WorkingDir), o.Namespace),
		})
	})
	Vector.Alias("FaissVectorDBStorage", VectorHNSW)
	Vector.Alias("NanoVectorDBStorage", VectorHNSW)
	Vector.Alias("ChromaVectorDBStorage", VectorSQLite)
	Vector.Alias("QdrantVectorDBStorage", VectorQdrant)

	Keyword.Register(store.KeywordBackendSQLite, func(_ context.Context, o Options) (store.KeywordIndex, error) {
		return store.NewKeywordIndex(o.WorkingDir, store.KeywordBackendSQLite, store.DefaultKeywordConfig())
	})
	Keyword.Register(store.KeywordBackendBleve, func(_ context.Context, o Options) (store.KeywordIndex, error) {
		return store.NewKeywordIndex(o.WorkingDir, store.KeywordBackendBleve, store.DefaultKeywordConfig())
	})
}

// Validate checks every backend name in cfg against the default registries.
func Validate(cfg config.EngineConfig) error {
	if _, err := Graph.Canonical(cfg.GraphBackend); err != nil {
		return err
	}
	if _, err := Vector.Canonical(cfg.VectorBackend); err != nil {
		return err
	}
	if _, err := Keyword.Canonical(cfg.KeywordBackend); err != nil {
		return err
	}
	return nil
}

func pathIn(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

func vectorConfig(o Options, ext string) store.VectorStoreConfig {
	path := ""
	if ext != "" {
		path = pathIn(o.WorkingDir, "vdb_"+o.Namespace+ext)
	}
	return store.VectorStoreConfig{
		Dimensions: o.Dimensions,
		Namespace:  o.Namespace,
		Path:       path,
	}
}

func workspaceName(dir string) string {
	if dir == "" {
		return "default"
	}
	return filepath.Base(dir)
}

func neo4jSettings(cfg *config.Config) config.Neo4jConfig {
	if cfg == nil {
		return config.NewConfig().Neo4j
	}
	return cfg.Neo4j
}

func qdrantSettings(cfg *config.Config) config.QdrantConfig {
	if cfg == nil {
		return config.NewConfig().Qdrant
	}
	return cfg.Qdrant
}
