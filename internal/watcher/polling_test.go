package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPolling(t *testing.T, dir string, accept func(string, bool) bool) (*PollingWatcher, chan error) {
	t.Helper()
	p := NewPollingWatcher(20*time.Millisecond, accept)
	done := make(chan error, 1)
	go func() { done <- p.Start(context.Background(), dir) }()
	t.Cleanup(func() { _ = p.Stop() })
	// Let the baseline scan finish.
	time.Sleep(60 * time.Millisecond)
	return p, done
}

// collectEvents reads until n events arrive or timeout passes.
func collectEvents(ch <-chan FileEvent, n int, timeout time.Duration) []FileEvent {
	var out []FileEvent
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestPollingWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a watched directory with one document
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	p, _ := startPolling(t, dir, nil)

	// When: a document is created
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("%PDF"), 0o644))
	events := collectEvents(p.Events(), 1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, FileEvent{Path: "b.pdf", Operation: OpCreate}, FileEvent{Path: events[0].Path, Operation: events[0].Operation})

	// When: the existing one grows
	require.NoError(t, os.WriteFile(path, []byte("one two"), 0o644))
	events = collectEvents(p.Events(), 1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)

	// When: it is removed
	require.NoError(t, os.Remove(path))
	events = collectEvents(p.Events(), 1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpDelete, events[0].Operation)
	assert.Equal(t, "a.txt", events[0].Path)
}

func TestPollingWatcher_SkipsHiddenAndRejected(t *testing.T) {
	// Given: a watcher that only accepts .txt files
	dir := t.TempDir()
	accept := func(rel string, isDir bool) bool { return isDir || strings.HasSuffix(rel, ".txt") }
	p, _ := startPolling(t, dir, accept)

	// When: a hidden file, an unsupported file and a document appear
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a.txt.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.docx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	// Then: only the document is reported
	events := collectEvents(p.Events(), 2, 300*time.Millisecond)
	require.Len(t, events, 1)
	assert.Equal(t, "a.txt", events[0].Path)
}

func TestPollingWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	p, done := startPolling(t, dir, nil)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	_, ok := <-p.Events()
	assert.False(t, ok)
}

func TestPollingWatcher_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPollingWatcher(20*time.Millisecond, nil)
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx, dir) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestPollingWatcher_Start_InvalidPath(t *testing.T) {
	p := NewPollingWatcher(time.Second, nil)
	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, p.Start(context.Background(), file))
}
