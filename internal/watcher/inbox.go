package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/Aman-CERP/amanrag/internal/app"
)

// Indexer indexes a document that already sits on disk.
type Indexer interface {
	IndexFile(ctx context.Context, path string) (*app.UploadResult, error)
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger.
func WithInboxLogger(l *slog.Logger) InboxOption { return func(i *Inbox) { i.logger = l } }

// WithIndexExisting controls whether Run indexes the files already present
// before it starts watching. Enabled by default.
func WithIndexExisting(on bool) InboxOption { return func(i *Inbox) { i.indexExisting = on } }

// WithExcludeDirs skips files under dirs, such as a data directory that
// lives inside the inbox and receives the loader's own output.
func WithExcludeDirs(dirs ...string) InboxOption {
	return func(i *Inbox) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				i.exclude = append(i.exclude, abs)
			}
		}
	}
}

// Inbox indexes every document created or modified under a directory.
type Inbox struct {
	watcher       Watcher
	indexer       Indexer
	filter        func(string) bool
	logger        *slog.Logger
	indexExisting bool
	exclude       []string

	indexed atomic.Int64
	failed  atomic.Int64
}

// NewInbox wires a watcher to an indexer. filter decides which existing files
// are picked up on startup and should match the watcher's own filter.
func NewInbox(w Watcher, idx Indexer, filter func(string) bool, opts ...InboxOption) *Inbox {
	i := &Inbox{
		watcher:       w,
		indexer:       idx,
		filter:        filter,
		logger:        slog.Default(),
		indexExisting: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run indexes dir's current contents, then watches it until ctx is done.
// Index failures are logged and do not stop the loop.
func (i *Inbox) Run(ctx context.Context, dir string) error {
	root, err := watchRoot(dir)
	if err != nil {
		return err
	}
	if i.indexExisting {
		if err := i.sweep(ctx, root); err != nil {
			if stopped(err) {
				return nil
			}
			return err
		}
	}

	started := make(chan error, 1)
	go func() { started <- i.watcher.Start(ctx, root) }()

	events, errs := i.watcher.Events(), i.watcher.Errors()
	for {
		select {
		case err := <-started:
			_ = i.watcher.Stop()
			if stopped(err) {
				return nil
			}
			return err
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			for _, ev := range batch {
				if ev.IsDir || (ev.Operation != OpCreate && ev.Operation != OpModify) {
					continue
				}
				i.index(ctx, filepath.Join(root, ev.Path))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			i.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// sweep indexes the documents already in root.
func (i *Inbox) sweep(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}
		if hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if i.excluded(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if i.filter != nil && !i.filter(path) {
			return nil
		}
		i.index(ctx, path)
		return nil
	})
}

// stopped reports whether err only means the caller's context ended.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (i *Inbox) excluded(path string) bool {
	for _, dir := range i.exclude {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (i *Inbox) index(ctx context.Context, path string) {
	if i.excluded(path) {
		return
	}
	res, err := i.indexer.IndexFile(ctx, path)
	if err != nil {
		i.failed.Add(1)
		i.logger.Error("inbox_index_failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	i.indexed.Add(1)
	i.logger.Info("inbox_indexed", slog.String("path", path), slog.String("job_id", res.JobID))
}

// Indexed returns how many files were indexed successfully.
func (i *Inbox) Indexed() int64 { return i.indexed.Load() }

// Failed returns how many files failed to index.
func (i *Inbox) Failed() int64 { return i.failed.Load() }
