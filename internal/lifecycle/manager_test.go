package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.WorkingDir = filepath.Join(dir, "rag_storage")
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Engine.GraphBackend = "memory"
	cfg.Engine.VectorBackend = "memory"
	cfg.Embeddings.Provider = "static"
	cfg.LLM.Provider = "extractive"
	return cfg
}

// countingFactory wraps rag.New, failing the first failures calls.
func countingFactory(calls *atomic.Int32, failures int32) Factory {
	return func(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
		n := calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		if n <= failures {
			return nil, errors.New("backend unavailable")
		}
		return rag.New(ctx, cfg)
	}
}

func TestManager_ConcurrentGetBuildsOnce(t *testing.T) {
	// Given
	var calls atomic.Int32
	m := NewManager(WithFactory(countingFactory(&calls, 0)))
	t.Cleanup(func() { _ = m.Close() })
	cfg := testConfig(t)

	// When: many callers race for the engine
	var wg sync.WaitGroup
	engines := make([]*rag.Engine, 16)
	for i := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := m.Get(context.Background(), cfg)
			assert.NoError(t, err)
			engines[i] = e
		}()
	}
	wg.Wait()

	// Then: one build, one shared instance
	assert.Equal(t, int32(1), calls.Load())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}
	assert.Equal(t, StateReady, m.State())
}

func TestManager_FailedBuildIsRetried(t *testing.T) {
	// Given: a factory that fails once
	var calls atomic.Int32
	m := NewManager(WithFactory(countingFactory(&calls, 1)))
	t.Cleanup(func() { _ = m.Close() })
	cfg := testConfig(t)

	// When
	_, err := m.Get(context.Background(), cfg)

	// Then: nothing is published
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, m.State())

	// And: the next call builds again
	e, err := m.Get(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, int32(2), calls.Load())
}

func TestManager_DifferentConfigIsIgnoredWithWarning(t *testing.T) {
	// Given: a ready manager
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := NewManager(WithLogger(logger))
	t.Cleanup(func() { _ = m.Close() })
	first := testConfig(t)
	e1, err := m.Get(context.Background(), first)
	require.NoError(t, err)

	// When: a later caller asks for other settings
	second := testConfig(t)
	second.Engine.ChunkTokenSize = 800
	second.Engine.GraphBackend = "sqlite"
	e2, err := m.Get(context.Background(), second)

	// Then: same engine, first settings, one warning naming the fields
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Equal(t, 1500, e2.Config().Engine.ChunkTokenSize)
	out := buf.String()
	assert.Contains(t, out, `"msg":"engine_config_ignored"`)
	assert.Contains(t, out, "chunk_token_size")
	assert.Contains(t, out, "graph_backend")
	assert.Contains(t, out, "working_dir")
}

func TestManager_SameConfigDoesNotWarn(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	t.Cleanup(func() { _ = m.Close() })
	cfg := testConfig(t)

	_, err := m.Get(context.Background(), cfg)
	require.NoError(t, err)
	_, err = m.Get(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "engine_config_ignored")
}

func TestManager_CloseAllowsRebuild(t *testing.T) {
	m := NewManager()
	cfg := testConfig(t)

	e1, err := m.Get(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.Equal(t, StateUninitialized, m.State())

	e2, err := m.Get(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotSame(t, e1, e2)
	require.NoError(t, m.Close())
}

func TestManager_CancelledCallerDoesNotAbortBuild(t *testing.T) {
	// Given: a slow build and a caller that gives up
	var calls atomic.Int32
	m := NewManager(WithFactory(countingFactory(&calls, 0)))
	t.Cleanup(func() { _ = m.Close() })
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When
	_, err := m.Get(ctx, cfg)

	// Then
	assert.ErrorIs(t, err, context.Canceled)
	e, err := m.Get(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_SecondManagerSeesAlreadyInitialized(t *testing.T) {
	m1 := NewManager()
	t.Cleanup(func() { _ = m1.Close() })
	_, err := m1.Get(context.Background(), testConfig(t))
	require.NoError(t, err)

	_, err = NewManager().Get(context.Background(), testConfig(t))
	assert.True(t, errors.Is(err, amerrors.ErrAlreadyInitialized))
}

func TestInstance(t *testing.T) {
	t.Cleanup(func() { _ = Shutdown() })
	cfg := testConfig(t)

	e1, err := Instance(context.Background(), cfg)
	require.NoError(t, err)
	e2, err := Instance(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, e1, e2)
}

func TestGet_NilConfig(t *testing.T) {
	_, err := NewManager().Get(context.Background(), nil)
	assert.True(t, errors.Is(err, amerrors.ErrInvalidConfig))
}
