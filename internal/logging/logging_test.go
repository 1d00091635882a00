package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: file-only logging in a temp dir
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When: a record is logged
	logger.Debug("document_indexed", slog.String("doc_id", "doc-1"))
	cleanup()

	// Then: the file holds one JSON line with the attributes
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "document_indexed", rec["msg"])
	assert.Equal(t, "doc-1", rec["doc_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer with a 1MB limit
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: more than the limit is written in several chunks
	chunk := []byte(strings.Repeat("x", 400*1024))
	for i := 0; i < 6; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	// Then: rotated files exist and the oldest beyond MaxFiles is dropped
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}
