package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.UploadDir = filepath.Join(dir, "uploaded_files")
	cfg.Paths.WorkingDir = filepath.Join(dir, "rag_storage")
	cfg.Engine.GraphBackend = "memory"
	cfg.Engine.VectorBackend = "memory"
	cfg.Embeddings.Provider = "static"
	cfg.LLM.Provider = "extractive"

	engine, err := rag.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := NewServer(app.NewService(cfg, app.WithEngine(engine)), cfg)
	require.NoError(t, err)
	return srv, cfg
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
	}

	assert.Equal(t, []string{ToolUploadAndIndex, ToolQuery, ToolIndexStatus}, names)
	assert.NotNil(t, srv.MCPServer())
}

func TestUploadThenQuery(t *testing.T) {
	// Given: a text document uploaded through the tool
	srv, cfg := newTestServer(t)
	ctx := context.Background()

	text, err := srv.CallTool(ctx, ToolUploadAndIndex, map[string]any{
		"filename": "alpha.txt",
		"content":  "Alpha loves Beta.",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "## Indexed alpha.txt")
	assert.Contains(t, text, app.StatusSavedAndIndexed)
	assert.FileExists(t, filepath.Join(cfg.Paths.UploadDir, "alpha.txt"))

	// When: querying with the default mode
	text, err = srv.CallTool(ctx, ToolQuery, map[string]any{"query": "Who does Alpha love?"})

	// Then
	require.NoError(t, err)
	assert.Contains(t, text, "## Answer (hybrid)")
	assert.Contains(t, text, "Alpha loves Beta.")
	assert.Contains(t, text, "### Sources")

	// And: status reflects the document
	text, err = srv.CallTool(ctx, ToolIndexStatus, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "| 1 | 1 | 2 | 1 |")
}

func TestUpload_Base64AndPath(t *testing.T) {
	srv, cfg := newTestServer(t)
	ctx := context.Background()

	_, err := srv.CallTool(ctx, ToolUploadAndIndex, map[string]any{
		"filename":       "b.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("Gamma admires Delta.")),
	})
	require.NoError(t, err)

	text, err := srv.CallTool(ctx, ToolUploadAndIndex, map[string]any{
		"path": filepath.Join(cfg.Paths.UploadDir, "b.txt"),
	})
	require.NoError(t, err)
	assert.Contains(t, text, app.StatusIndexed)
}

func TestUpload_InvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{"nothing", map[string]any{}, ErrCodeInvalidParams},
		{"content without name", map[string]any{"content": "x"}, ErrCodeInvalidParams},
		{"bad base64", map[string]any{"filename": "a.pdf", "content_base64": "%%%"}, ErrCodeInvalidParams},
		{"unsupported", map[string]any{"filename": "a.docx", "content": "x"}, ErrCodeUnsupportedType},
		{"missing path", map[string]any{"path": "/nonexistent/a.txt"}, ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.CallTool(ctx, ToolUploadAndIndex, tt.args)
			var mcpErr *MCPError
			require.True(t, errors.As(err, &mcpErr), "got %v", err)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestQuery_InvalidModeAndEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.CallTool(ctx, ToolQuery, map[string]any{"query": "x", "mode": "mix"})
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, err = srv.CallTool(ctx, ToolQuery, map[string]any{"query": "  "})
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestQuery_NoContext(t *testing.T) {
	srv, _ := newTestServer(t)

	text, err := srv.CallTool(context.Background(), ToolQuery, map[string]any{"query": "anything", "mode": "naive"})

	require.NoError(t, err)
	assert.Contains(t, text, rag.FailResponse)
}

func TestCallTool_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.CallTool(context.Background(), "search_code", nil)
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestReadText(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	_, err := srv.CallTool(ctx, ToolUploadAndIndex, map[string]any{"filename": "alpha.txt", "content": "Alpha."})
	require.NoError(t, err)

	res, err := srv.readText(ctx, textURIPrefix+"alpha.txt")
	require.NoError(t, err)
	assert.Equal(t, "Alpha.", res.Contents[0].Text)
	assert.Equal(t, "text/plain", res.Contents[0].MIMEType)

	_, err = srv.readText(ctx, textURIPrefix+"../../etc/passwd")
	assert.Error(t, err)

	_, err = srv.readText(ctx, textURIPrefix+"missing.txt")
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestReadStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	res, err := srv.readStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, `"documents": 0`)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"not found", amerrors.NotFound("a.txt", nil), ErrCodeFileNotFound},
		{"unsupported", amerrors.UnsupportedType("a.doc", ".doc"), ErrCodeUnsupportedType},
		{"indexing", amerrors.Indexing("embed", errors.New("x")), ErrCodeIndexingFailed},
		{"invalid mode", amerrors.InvalidMode("mix"), ErrCodeInvalidParams},
		{"config", amerrors.InvalidConfig("bad"), ErrCodeInternalError},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(99, 10, 1, 50))
	assert.Equal(t, 7, clampLimit(7, 10, 1, 50))
}

func TestMimeTypeForPath(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeTypeForPath("x/report.PDF"))
	assert.Equal(t, "text/plain", MimeTypeForPath("notes.txt"))
	assert.Equal(t, "text/plain", MimeTypeForPath("unknown.bin"))
}
