package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/app"
)

// fakeWatcher lets a test push batches by hand.
type fakeWatcher struct {
	events chan []FileEvent
	errors chan error
	once   sync.Once
	stop   chan struct{}
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan []FileEvent, 10),
		errors: make(chan error, 10),
		stop:   make(chan struct{}),
	}
}

func (f *fakeWatcher) Start(ctx context.Context, _ string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stop:
		return nil
	}
}

func (f *fakeWatcher) Stop() error {
	f.once.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeWatcher) Events() <-chan []FileEvent { return f.events }
func (f *fakeWatcher) Errors() <-chan error       { return f.errors }

type recordingIndexer struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	calls chan string
}

func newRecordingIndexer() *recordingIndexer {
	return &recordingIndexer{fail: map[string]bool{}, calls: make(chan string, 20)}
}

func (r *recordingIndexer) IndexFile(_ context.Context, path string) (*app.UploadResult, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	defer func() { r.calls <- path }()
	if r.fail[filepath.Base(path)] {
		return nil, errors.New("boom")
	}
	return &app.UploadResult{Status: app.StatusIndexed, JobID: "job"}, nil
}

func (r *recordingIndexer) wait(t *testing.T, n int) []string {
	t.Helper()
	var got []string
	for range n {
		select {
		case p := <-r.calls:
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout after %d of %d index calls", len(got), n)
		}
	}
	return got
}

func runInbox(t *testing.T, inbox *Inbox, dir string) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx, dir) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestInbox_IndexesExistingDocumentsFirst(t *testing.T) {
	// Given: an inbox holding a document, an unsupported file and a hidden folder
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".trash"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".trash", "c.txt"), []byte("x"), 0o644))
	idx := newRecordingIndexer()

	// When
	runInbox(t, NewInbox(newFakeWatcher(), idx, docsOnly), dir)

	// Then: only the visible document is swept
	got := idx.wait(t, 1)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, got)
}

func TestInbox_IndexesCreatedAndModifiedOnly(t *testing.T) {
	// Given: a running inbox without the startup sweep
	dir := t.TempDir()
	w := newFakeWatcher()
	idx := newRecordingIndexer()
	inbox := NewInbox(w, idx, docsOnly, WithIndexExisting(false))
	runInbox(t, inbox, dir)

	// When: a batch of mixed events arrives
	w.events <- []FileEvent{
		{Path: "new.pdf", Operation: OpCreate},
		{Path: "sub", Operation: OpCreate, IsDir: true},
		{Path: "gone.txt", Operation: OpDelete},
		{Path: "old.txt", Operation: OpRename},
		{Path: "edited.txt", Operation: OpModify},
	}

	// Then: the created and modified files are indexed in order
	got := idx.wait(t, 2)
	assert.Equal(t, []string{filepath.Join(dir, "new.pdf"), filepath.Join(dir, "edited.txt")}, got)
	assert.Equal(t, int64(2), inbox.Indexed())
}

func TestInbox_FailureDoesNotStopTheLoop(t *testing.T) {
	// Given: an indexer that rejects one file
	dir := t.TempDir()
	w := newFakeWatcher()
	idx := newRecordingIndexer()
	idx.fail["bad.pdf"] = true
	inbox := NewInbox(w, idx, docsOnly, WithIndexExisting(false))
	runInbox(t, inbox, dir)

	// When
	w.events <- []FileEvent{{Path: "bad.pdf", Operation: OpCreate}}
	w.errors <- errors.New("watch hiccup")
	w.events <- []FileEvent{{Path: "good.txt", Operation: OpCreate}}

	// Then
	idx.wait(t, 2)
	assert.Equal(t, int64(1), inbox.Failed())
	assert.Equal(t, int64(1), inbox.Indexed())
}

func TestInbox_ExcludedDirectoryIsSkipped(t *testing.T) {
	// Given: a data directory nested inside the inbox
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(data, "texts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "texts", "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	w := newFakeWatcher()
	idx := newRecordingIndexer()
	runInbox(t, NewInbox(w, idx, docsOnly, WithExcludeDirs(data)), dir)

	// When: the loader's output shows up as an event
	w.events <- []FileEvent{{Path: filepath.Join("data", "texts", "c.txt"), Operation: OpCreate}, {Path: "d.txt", Operation: OpCreate}}

	// Then: nothing under the data directory is indexed
	got := idx.wait(t, 2)
	assert.Equal(t, []string{filepath.Join(dir, "b.txt"), filepath.Join(dir, "d.txt")}, got)
}

func TestInbox_CancelReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cancel, done := runInbox(t, NewInbox(newFakeWatcher(), newRecordingIndexer(), docsOnly), dir)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestInbox_CancelDuringSweepReturnsNil(t *testing.T) {
	// Given: documents waiting in the inbox and a context that is already done
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	idx := newRecordingIndexer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When
	err := NewInbox(newFakeWatcher(), idx, docsOnly).Run(ctx, dir)

	// Then: the sweep stops early without reporting the cancel as a failure
	assert.NoError(t, err)
	assert.Empty(t, idx.paths)
}

func TestInbox_DeadlineDuringSweepReturnsNil(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	assert.NoError(t, NewInbox(newFakeWatcher(), newRecordingIndexer(), docsOnly).Run(ctx, dir))
}

func TestInbox_MissingDirectory(t *testing.T) {
	inbox := NewInbox(newFakeWatcher(), newRecordingIndexer(), docsOnly)
	assert.Error(t, inbox.Run(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestInbox_WithHybridWatcher(t *testing.T) {
	// Given: an inbox backed by a real watcher
	dir := t.TempDir()
	w, err := NewHybridWatcher(Options{DebounceWindow: 30 * time.Millisecond, PollInterval: 20 * time.Millisecond, Filter: docsOnly})
	require.NoError(t, err)
	idx := newRecordingIndexer()
	runInbox(t, NewInbox(w, idx, docsOnly), dir)
	time.Sleep(100 * time.Millisecond)

	// When: a document is dropped in
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.txt"), []byte("Alpha loves Beta."), 0o644))

	// Then
	got := idx.wait(t, 1)
	assert.Equal(t, filepath.Join(dir, "drop.txt"), got[0])
}
