package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/lifecycle"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

const testProjectConfig = `engine:
  chunk_token_size: 64
  chunk_overlap_token_size: 8
embeddings:
  provider: static
llm:
  provider: extractive
extraction:
  mode: pattern
`

// newProject creates a project directory with an offline configuration.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte(testProjectConfig), 0o644))
	t.Cleanup(func() { _ = lifecycle.Shutdown() })
	return dir
}

// run executes the CLI against dir and returns stdout.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--dir", dir, "--log-file", filepath.Join(dir, "amanrag.log")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	out, err := run(t, t.TempDir(), "", "--help")

	require.NoError(t, err)
	for _, sub := range []string{"ingest", "query", "status", "serve", "watch", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestIngestThenQuery(t *testing.T) {
	// Given: a project with one ingested document
	dir := newProject(t)
	doc := writeDoc(t, dir, "alpha.txt", "Alpha loves Beta.")

	out, err := run(t, dir, "", "ingest", doc)
	require.NoError(t, err)
	assert.Contains(t, out, app.StatusIndexed)
	assert.Contains(t, out, "alpha.txt")

	// When: querying in every mode
	for _, mode := range []string{"naive", "local", "global", "hybrid"} {
		out, err = run(t, dir, "", "query", "--mode", mode, "Who does Alpha love?")

		// Then
		require.NoError(t, err, mode)
		assert.Contains(t, out, "Alpha loves Beta.", mode)
	}
	assert.FileExists(t, filepath.Join(dir, "amanrag.log"))
}

func TestIngest_UploadCopiesIntoUploadDir(t *testing.T) {
	dir := newProject(t)
	doc := writeDoc(t, t.TempDir(), "notes.txt", "Gamma admires Delta.")

	out, err := run(t, dir, "", "ingest", "--upload", "--json", doc)

	require.NoError(t, err)
	var results []app.UploadResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, app.StatusSavedAndIndexed, results[0].Status)
	assert.FileExists(t, filepath.Join(dir, "uploaded_files", "notes.txt"))
	assert.Equal(t, "Gamma admires Delta.", results[0].TextPreview)
}

func TestIngest_Errors(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "", "ingest", filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, amerrors.ErrNotFound)

	_, err = run(t, dir, "", "ingest", "--upload", filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, amerrors.ErrNotFound)

	doc := writeDoc(t, dir, "sheet.xlsx", "x")
	_, err = run(t, dir, "", "ingest", doc)
	assert.ErrorIs(t, err, amerrors.ErrUnsupportedType)

	_, err = run(t, dir, "", "ingest")
	assert.Error(t, err)
}

func TestQuery_ReadsQuestionFromStdin(t *testing.T) {
	dir := newProject(t)
	_, err := run(t, dir, "", "ingest", writeDoc(t, dir, "a.txt", "Alpha loves Beta."))
	require.NoError(t, err)

	out, err := run(t, dir, "Who does Alpha love?\n", "query", "--json")

	require.NoError(t, err)
	var res app.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Who does Alpha love?", res.Query)
	assert.Equal(t, rag.ModeHybrid, res.Mode)
	assert.Equal(t, rag.StatusOK, res.Response.Status)
}

func TestQuery_ContextOnlyAndSources(t *testing.T) {
	dir := newProject(t)
	_, err := run(t, dir, "", "ingest", writeDoc(t, dir, "a.txt", "Alpha loves Beta."))
	require.NoError(t, err)

	out, err := run(t, dir, "", "query", "--context-only", "--mode", "naive", "Alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "-----Sources-----")

	out, err = run(t, dir, "", "query", "--sources", "--mode", "naive", "Alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Sources:")
}

func TestQuery_Failures(t *testing.T) {
	dir := newProject(t)

	// Invalid mode is rejected before the engine runs.
	_, err := run(t, dir, "", "query", "--mode", "mix", "x")
	assert.ErrorIs(t, err, amerrors.ErrInvalidMode)

	// An empty question comes back as an error answer.
	out, err := run(t, dir, "   ", "query", "--json")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeQueryEmpty, amerrors.GetCode(err))
	assert.Contains(t, out, `"status": "error"`)
}

func TestQuery_NoContext(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "", "query", "anything at all")

	require.NoError(t, err)
	assert.Contains(t, out, rag.FailResponse)
}

func TestStatus(t *testing.T) {
	dir := newProject(t)
	_, err := run(t, dir, "", "ingest", writeDoc(t, dir, "a.txt", "Alpha loves Beta."))
	require.NoError(t, err)

	out, err := run(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "graph=sqlite")

	out, err = run(t, dir, "", "status", "--json")
	require.NoError(t, err)
	var st rag.IndexStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Documents)
}

func TestServe_UnknownTransport(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "", "serve", "--transport", "http")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestConfigErrorsSurface(t *testing.T) {
	dir := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanrag.yaml"), []byte("engine:\n  graph_backend: cassandra\n"), 0o644))

	_, err := run(t, dir, "", "status")

	assert.ErrorIs(t, err, amerrors.ErrUnknownBackend)
	assert.Contains(t, amerrors.FormatForCLI(err), "Code:")
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"full", []string{"version"}, "amanrag "},
		{"short", []string{"version", "--short"}, ""},
		{"json", []string{"version", "--json"}, `"go_version"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, t.TempDir(), "", tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestProfileFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	_, err := run(t, dir, "", "--profile-cpu", cpu, "--profile-mem", heap, "version")

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestInitCmd(t *testing.T) {
	// Given: an empty project and a private user config dir
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	// When: init runs
	out, err := run(t, dir, "", "init")

	// Then: the template is written and loads with the defaults
	require.NoError(t, err)
	assert.Contains(t, out, ".amanrag.yaml")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Engine, cfg.Engine)

	// And: a second run refuses to overwrite
	_, err = run(t, dir, "", "init")
	assert.ErrorIs(t, err, amerrors.ErrInvalidConfig)
	_, err = run(t, dir, "", "init", "--force")
	assert.NoError(t, err)

	// And: --user writes the user config
	_, err = run(t, dir, "", "init", "--user")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "xdg", "amanrag", "config.yaml"))
}

func TestPrintError(t *testing.T) {
	// Given: a command that failed with --json set
	root := NewRootCmd()
	query, _, err := root.Find([]string{"query"})
	require.NoError(t, err)
	require.NoError(t, query.Flags().Set("json", "true"))
	failure := amerrors.InvalidMode("mix")

	// When
	var buf bytes.Buffer
	printError(&buf, query, failure)

	// Then: the error is JSON
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, amerrors.ErrCodeInvalidMode, parsed["code"])

	// And: without --json it is the CLI text form
	buf.Reset()
	printError(&buf, root, failure)
	assert.Contains(t, buf.String(), "Code: "+amerrors.ErrCodeInvalidMode)
}
