// Package config loads amanrag configuration from defaults, config files,
// a .env file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Config is the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version" toml:"version" json:"version"`
	Engine     EngineConfig     `yaml:"engine" toml:"engine" json:"engine"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm" json:"llm"`
	Rerank     RerankConfig     `yaml:"rerank" toml:"rerank" json:"rerank"`
	Extraction ExtractionConfig `yaml:"extraction" toml:"extraction" json:"extraction"`
	Neo4j      Neo4jConfig      `yaml:"neo4j" toml:"neo4j" json:"neo4j"`
	Qdrant     QdrantConfig     `yaml:"qdrant" toml:"qdrant" json:"qdrant"`
	Server     ServerConfig     `yaml:"server" toml:"server" json:"server"`
}

// EngineConfig selects storage backends and retrieval sizing. It is the part
// of the configuration that binds an Engine for its lifetime.
type EngineConfig struct {
	// GraphBackend is a graph registry name (sqlite, memory, neo4j, none).
	GraphBackend string `yaml:"graph_backend" toml:"graph_backend" json:"graph_backend"`
	// VectorBackend is a vector registry name (hnsw, sqlite, memory, qdrant).
	VectorBackend string `yaml:"vector_backend" toml:"vector_backend" json:"vector_backend"`
	// KeywordBackend is a keyword registry name (sqlite, bleve).
	KeywordBackend string `yaml:"keyword_backend" toml:"keyword_backend" json:"keyword_backend"`

	ChunkTokenSize        int `yaml:"chunk_token_size" toml:"chunk_token_size" json:"chunk_token_size"`
	ChunkOverlapTokenSize int `yaml:"chunk_overlap_token_size" toml:"chunk_overlap_token_size" json:"chunk_overlap_token_size"`

	// TopK is the number of entities (local) or relations (global) retrieved.
	TopK int `yaml:"top_k" toml:"top_k" json:"top_k"`
	// ChunkTopK is the number of text chunks kept in the final context.
	ChunkTopK int `yaml:"chunk_top_k" toml:"chunk_top_k" json:"chunk_top_k"`
	// MaxContextTokens bounds the context handed to the completion model.
	MaxContextTokens int `yaml:"max_context_tokens" toml:"max_context_tokens" json:"max_context_tokens"`
	// RRFConstant is the reciprocal rank fusion smoothing constant.
	RRFConstant int `yaml:"rrf_constant" toml:"rrf_constant" json:"rrf_constant"`
	// MaxParallelInsert bounds concurrent extraction calls during ingest.
	MaxParallelInsert int `yaml:"max_parallel_insert" toml:"max_parallel_insert" json:"max_parallel_insert"`
}

// PathsConfig locates the document and storage directories.
type PathsConfig struct {
	// DataDir holds raw/ and texts/.
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	// UploadDir receives files saved by upload-and-index.
	UploadDir string `yaml:"upload_dir" toml:"upload_dir" json:"upload_dir"`
	// WorkingDir holds backend-internal state.
	WorkingDir string `yaml:"working_dir" toml:"working_dir" json:"working_dir"`
}

// RawDir is where binary originals are copied.
func (p PathsConfig) RawDir() string { return filepath.Join(p.DataDir, "raw") }

// TextDir is where normalized text files are written.
func (p PathsConfig) TextDir() string { return filepath.Join(p.DataDir, "texts") }

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is openai, ollama, static, or auto.
	Provider   string `yaml:"provider" toml:"provider" json:"provider"`
	Model      string `yaml:"model" toml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	OllamaHost string `yaml:"ollama_host" toml:"ollama_host" json:"ollama_host"`
	BaseURL    string `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIKey     string `yaml:"-" toml:"-" json:"-"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// Provider is openai, ollama, extractive, or auto.
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	Model    string `yaml:"model" toml:"model" json:"model"`
	BaseURL  string `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIKey   string `yaml:"-" toml:"-" json:"-"`
	// Timeout is a duration string ("60s").
	Timeout string `yaml:"timeout" toml:"timeout" json:"timeout"`
	// RequestsPerSecond caps outgoing completion calls; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Temperature       float32 `yaml:"temperature" toml:"temperature" json:"temperature"`
}

// RerankConfig configures the optional reranker used by hybrid queries.
type RerankConfig struct {
	// Provider is none or cohere.
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	Model    string `yaml:"model" toml:"model" json:"model"`
	Host     string `yaml:"host" toml:"host" json:"host"`
	APIKey   string `yaml:"-" toml:"-" json:"-"`
	TopN     int    `yaml:"top_n" toml:"top_n" json:"top_n"`
}

// ExtractionConfig configures entity and relation extraction at ingest.
type ExtractionConfig struct {
	// Mode is llm, pattern, or auto (llm when a real completion model is set).
	Mode string `yaml:"mode" toml:"mode" json:"mode"`
	// EntityTypes restricts the types the LLM extractor may assign.
	EntityTypes []string `yaml:"entity_types" toml:"entity_types" json:"entity_types"`
}

// Neo4jConfig holds connection settings for the neo4j graph backend.
type Neo4jConfig struct {
	URI      string `yaml:"uri" toml:"uri" json:"uri"`
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"-" toml:"-" json:"-"`
	Database string `yaml:"database" toml:"database" json:"database"`
}

// QdrantConfig holds connection settings for the qdrant vector backend.
type QdrantConfig struct {
	URL              string `yaml:"url" toml:"url" json:"url"`
	APIKey           string `yaml:"-" toml:"-" json:"-"`
	CollectionPrefix string `yaml:"collection_prefix" toml:"collection_prefix" json:"collection_prefix"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	Transport     string `yaml:"transport" toml:"transport" json:"transport"`
	LogLevel      string `yaml:"log_level" toml:"log_level" json:"log_level"`
	WatchDebounce string `yaml:"watch_debounce" toml:"watch_debounce" json:"watch_debounce"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			GraphBackend:          "sqlite",
			VectorBackend:         "hnsw",
			KeywordBackend:        "sqlite",
			ChunkTokenSize:        1500,
			ChunkOverlapTokenSize: 200,
			TopK:                  40,
			ChunkTopK:             10,
			MaxContextTokens:      12000,
			RRFConstant:           60,
			MaxParallelInsert:     4,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			UploadDir:  "uploaded_files",
			WorkingDir: "rag_storage",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "auto",
			BatchSize: 32,
			CacheSize: 1000,
		},
		LLM: LLMConfig{
			Provider:          "auto",
			Model:             "gpt-4o-mini",
			Timeout:           "60s",
			RequestsPerSecond: 5,
		},
		Rerank: RerankConfig{
			Provider: "none",
			TopN:     10,
		},
		Extraction: ExtractionConfig{
			Mode:        "auto",
			EntityTypes: []string{"person", "organization", "location", "event", "concept"},
		},
		Neo4j: Neo4jConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Qdrant: QdrantConfig{
			URL:              "http://localhost:6333",
			CollectionPrefix: "amanrag",
		},
		Server: ServerConfig{
			Transport:     "stdio",
			LogLevel:      "info",
			WatchDebounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the user-level config path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// projectConfigNames are tried in order; the first one present wins.
var projectConfigNames = []string{".amanrag.yaml", ".amanrag.yml", ".amanrag.toml"}

// Load builds the configuration for a project directory:
// defaults < user config < project config < .env < environment.
// The result is validated once here.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range projectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	// A missing .env is fine; existing environment variables win over it.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes a YAML or TOML file over the current values, so keys
// absent from the file keep their previous value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// resolvePaths anchors relative directories at the project directory.
func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	for _, p := range []*string{&c.Paths.DataDir, &c.Paths.UploadDir, &c.Paths.WorkingDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.Engine.GraphBackend, "AMANRAG_GRAPH_BACKEND")
	setString(&c.Engine.VectorBackend, "AMANRAG_VECTOR_BACKEND")
	setString(&c.Engine.KeywordBackend, "AMANRAG_KEYWORD_BACKEND")
	setInt(&c.Engine.ChunkTokenSize, "AMANRAG_CHUNK_TOKEN_SIZE")
	setInt(&c.Engine.ChunkOverlapTokenSize, "AMANRAG_CHUNK_OVERLAP_TOKEN_SIZE")
	setInt(&c.Engine.TopK, "AMANRAG_TOP_K")

	setString(&c.Paths.DataDir, "AMANRAG_DATA_DIR")
	setString(&c.Paths.UploadDir, "AMANRAG_UPLOAD_DIR")
	setString(&c.Paths.WorkingDir, "AMANRAG_WORKING_DIR")

	setString(&c.Embeddings.Provider, "AMANRAG_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "AMANRAG_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.OllamaHost, "AMANRAG_OLLAMA_HOST", "OLLAMA_HOST")
	setString(&c.Embeddings.APIKey, "AMANRAG_EMBEDDINGS_API_KEY", "OPENAI_API_KEY")

	setString(&c.LLM.Provider, "AMANRAG_LLM_PROVIDER")
	setString(&c.LLM.Model, "AMANRAG_LLM_MODEL")
	setString(&c.LLM.BaseURL, "AMANRAG_LLM_BASE_URL", "OPENAI_BASE_URL")
	setString(&c.LLM.APIKey, "AMANRAG_LLM_API_KEY", "OPENAI_API_KEY")

	setString(&c.Rerank.Model, "RERANK_MODEL")
	setString(&c.Rerank.APIKey, "RERANK_BINDING_API_KEY")
	setString(&c.Rerank.Host, "RERANK_BINDING_HOST")
	setString(&c.Rerank.Provider, "AMANRAG_RERANK_PROVIDER")
	if c.Rerank.Provider == "none" && c.Rerank.Model != "" && c.Rerank.APIKey != "" {
		c.Rerank.Provider = "cohere"
	}

	setString(&c.Neo4j.URI, "NEO4J_URI")
	setString(&c.Neo4j.Username, "NEO4J_USERNAME")
	setString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&c.Neo4j.Database, "NEO4J_DATABASE")

	setString(&c.Qdrant.URL, "QDRANT_URL")
	setString(&c.Qdrant.APIKey, "QDRANT_API_KEY")

	setString(&c.Server.LogLevel, "AMANRAG_LOG_LEVEL")
	setString(&c.Server.Transport, "AMANRAG_TRANSPORT")
}

// Validate checks the configuration. Backend names are checked against the
// registries by the engine, which owns them.
func (c *Config) Validate() error {
	e := c.Engine
	if e.ChunkTokenSize <= 0 {
		return amerrors.InvalidConfig(fmt.Sprintf("engine.chunk_token_size must be positive, got %d", e.ChunkTokenSize))
	}
	if e.ChunkOverlapTokenSize < 0 || e.ChunkOverlapTokenSize >= e.ChunkTokenSize {
		return amerrors.InvalidConfig(fmt.Sprintf(
			"engine.chunk_overlap_token_size must be in [0, %d), got %d", e.ChunkTokenSize, e.ChunkOverlapTokenSize))
	}
	if e.TopK <= 0 || e.ChunkTopK <= 0 {
		return amerrors.InvalidConfig("engine.top_k and engine.chunk_top_k must be positive")
	}
	if e.MaxContextTokens <= 0 {
		return amerrors.InvalidConfig("engine.max_context_tokens must be positive")
	}
	if c.Paths.WorkingDir == "" || c.Paths.DataDir == "" {
		return amerrors.InvalidConfig("paths.working_dir and paths.data_dir are required")
	}

	if !oneOf(c.Embeddings.Provider, "auto", "openai", "ollama", "static") {
		return amerrors.InvalidConfig(fmt.Sprintf("embeddings.provider must be auto, openai, ollama or static, got %s", c.Embeddings.Provider))
	}
	if !oneOf(c.LLM.Provider, "auto", "openai", "ollama", "extractive") {
		return amerrors.InvalidConfig(fmt.Sprintf("llm.provider must be auto, openai, ollama or extractive, got %s", c.LLM.Provider))
	}
	if !oneOf(c.Rerank.Provider, "none", "cohere") {
		return amerrors.InvalidConfig(fmt.Sprintf("rerank.provider must be none or cohere, got %s", c.Rerank.Provider))
	}
	if !oneOf(c.Extraction.Mode, "auto", "llm", "pattern") {
		return amerrors.InvalidConfig(fmt.Sprintf("extraction.mode must be auto, llm or pattern, got %s", c.Extraction.Mode))
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.APIKey == "" {
		return amerrors.New(amerrors.ErrCodeMissingProvider, "embeddings.provider openai requires OPENAI_API_KEY", nil)
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return amerrors.New(amerrors.ErrCodeMissingProvider, "llm.provider openai requires OPENAI_API_KEY", nil)
	}
	if c.Rerank.Provider == "cohere" && c.Rerank.Model == "" {
		return amerrors.InvalidConfig("rerank.provider cohere requires RERANK_MODEL")
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		return amerrors.InvalidConfig(fmt.Sprintf("llm.timeout is not a duration: %s", c.LLM.Timeout))
	}
	if !oneOf(c.Server.Transport, "stdio") {
		return amerrors.InvalidConfig(fmt.Sprintf("server.transport must be stdio, got %s", c.Server.Transport))
	}
	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return amerrors.InvalidConfig(fmt.Sprintf("server.log_level must be debug, info, warn or error, got %s", c.Server.LogLevel))
	}
	return nil
}

// LLMTimeout returns the parsed completion timeout.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// WatchDebounce returns the parsed watcher debounce window.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Server.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Diff lists the EngineConfig fields that differ between a and b.
func (a EngineConfig) Diff(b EngineConfig) []string {
	var fields []string
	add := func(name string, x, y any) {
		if x != y {
			fields = append(fields, name)
		}
	}
	add("graph_backend", a.GraphBackend, b.GraphBackend)
	add("vector_backend", a.VectorBackend, b.VectorBackend)
	add("keyword_backend", a.KeywordBackend, b.KeywordBackend)
	add("chunk_token_size", a.ChunkTokenSize, b.ChunkTokenSize)
	add("chunk_overlap_token_size", a.ChunkOverlapTokenSize, b.ChunkOverlapTokenSize)
	add("top_k", a.TopK, b.TopK)
	add("chunk_top_k", a.ChunkTopK, b.ChunkTopK)
	add("max_context_tokens", a.MaxContextTokens, b.MaxContextTokens)
	add("rrf_constant", a.RRFConstant, b.RRFConstant)
	add("max_parallel_insert", a.MaxParallelInsert, b.MaxParallelInsert)
	return fields
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, strings.ToLower(v))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
