package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// isolate points the user config at an empty dir so host files never leak in.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: defaults match the documented engine settings
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Engine.GraphBackend)
	assert.Equal(t, "hnsw", cfg.Engine.VectorBackend)
	assert.Equal(t, "sqlite", cfg.Engine.KeywordBackend)
	assert.Equal(t, 1500, cfg.Engine.ChunkTokenSize)
	assert.Equal(t, 200, cfg.Engine.ChunkOverlapTokenSize)
	assert.Equal(t, 60, cfg.Engine.RRFConstant)
	assert.Equal(t, "rag_storage", cfg.Paths.WorkingDir)
	assert.Equal(t, filepath.Join("data", "raw"), cfg.Paths.RawDir())
	assert.Equal(t, filepath.Join("data", "texts"), cfg.Paths.TextDir())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_AnchorsPathsAtDir(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rag_storage"), cfg.Paths.WorkingDir)
	assert.Equal(t, filepath.Join(dir, "uploaded_files"), cfg.Paths.UploadDir)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a project yaml that sets some engine fields
	dir := isolate(t)
	content := `
engine:
  graph_backend: memory
  chunk_token_size: 300
  chunk_overlap_token_size: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte(content), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: set keys change, unset keys keep defaults
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Engine.GraphBackend)
	assert.Equal(t, 300, cfg.Engine.ChunkTokenSize)
	assert.Equal(t, 50, cfg.Engine.ChunkOverlapTokenSize)
	assert.Equal(t, "hnsw", cfg.Engine.VectorBackend)
}

func TestLoad_TomlFile_IsRecognized(t *testing.T) {
	dir := isolate(t)
	content := `
[engine]
vector_backend = "memory"
top_k = 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.toml"), []byte(content), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Engine.VectorBackend)
	assert.Equal(t, 7, cfg.Engine.TopK)
}

func TestLoad_InvalidYaml_ReturnsConfigError(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte("engine: [unclosed"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.ErrorIs(t, err, amerrors.ErrInvalidConfig)
}

func TestLoad_OverlapNotSmallerThanSize_IsInvalid(t *testing.T) {
	dir := isolate(t)
	t.Setenv("AMANRAG_CHUNK_TOKEN_SIZE", "100")
	t.Setenv("AMANRAG_CHUNK_OVERLAP_TOKEN_SIZE", "100")

	_, err := Load(dir)

	require.Error(t, err)
	assert.ErrorIs(t, err, amerrors.ErrInvalidConfig)
}

func TestLoad_EnvOverridesUseOriginalNames(t *testing.T) {
	// Given: neo4j and rerank settings in the environment
	dir := isolate(t)
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("NEO4J_USERNAME", "alice")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("RERANK_MODEL", "rerank-v3.5")
	t.Setenv("RERANK_BINDING_API_KEY", "k")
	t.Setenv("RERANK_BINDING_HOST", "https://rerank.example/v1/rerank")

	cfg, err := Load(dir)

	// Then: they land in their sections and enable the reranker
	require.NoError(t, err)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "alice", cfg.Neo4j.Username)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "cohere", cfg.Rerank.Provider)
	assert.Equal(t, "rerank-v3.5", cfg.Rerank.Model)
}

func TestLoad_DotEnvFile_IsApplied(t *testing.T) {
	dir := isolate(t)
	t.Setenv("AMANRAG_GRAPH_BACKEND", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AMANRAG_GRAPH_BACKEND=none\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("AMANRAG_GRAPH_BACKEND") })

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Engine.GraphBackend)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.LLM.Provider = "gpt-local"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := NewConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	err := cfg.Validate()

	assert.Equal(t, amerrors.ErrCodeMissingProvider, amerrors.GetCode(err))
}

func TestEngineConfig_Diff(t *testing.T) {
	a := NewConfig().Engine
	b := a
	b.GraphBackend = "neo4j"
	b.TopK = 3

	assert.Empty(t, a.Diff(a))
	assert.Equal(t, []string{"graph_backend", "top_k"}, a.Diff(b))
}

func TestDurations(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
	cfg.Server.WatchDebounce = "bad"
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
}
