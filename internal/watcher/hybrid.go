package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches with fsnotify and falls back to polling when an
// fsnotify watcher cannot be created.
type HybridWatcher struct {
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	debouncer *Debouncer
	opts      Options
	logger    *slog.Logger

	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	mu             sync.RWMutex
	root           string
	stopped        bool
	droppedBatches atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a watcher with opts applied over the defaults.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		logger:    slog.Default(),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		h.logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		h.poller = NewPollingWatcher(opts.PollInterval, h.accept)
	} else {
		h.fsWatcher = fsw
	}
	return h, nil
}

// Start watches path until Stop is called or ctx is done. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	root, err := watchRoot(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return fmt.Errorf("watcher stopped")
	}
	h.root = root
	h.mu.Unlock()

	go h.forward(ctx)

	if h.fsWatcher == nil {
		return h.startPolling(ctx)
	}
	return h.startFsnotify(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addTree(h.root, false); err != nil {
		return fmt.Errorf("watch %s: %w", h.root, err)
	}
	h.logger.Info("watcher_started", slog.String("root", h.root), slog.String("type", h.WatcherType()))

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handle(ev)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		events, errs := h.poller.Events(), h.poller.Errors()
		for events != nil || errs != nil {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				h.debouncer.Add(ev)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				h.emitError(err)
			}
		}
	}()
	h.logger.Info("watcher_started", slog.String("root", h.root), slog.String("type", h.WatcherType()))
	return h.poller.Start(ctx, h.root)
}

// handle converts an fsnotify event and queues it on the debouncer.
func (h *HybridWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(h.root, ev.Name)
	if err != nil || rel == "." {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if hidden(rel) || !h.opts.accepts(rel, isDir) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// Files can land in a new directory before it is watched.
			if err := h.addTree(ev.Name, true); err != nil {
				h.emitError(err)
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	h.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addTree watches dir and every visible subdirectory. With announce set, the
// files already present are reported as created.
func (h *HybridWatcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel, _ := filepath.Rel(h.root, path)
		if rel != "." && hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return h.fsWatcher.Add(path)
		}
		if announce && h.opts.accepts(rel, false) {
			h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (h *HybridWatcher) accept(rel string, isDir bool) bool {
	return h.opts.accepts(rel, isDir)
}

// forward moves debounced batches to the events channel.
func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				h.emitEvents(batch)
			}
		}
	}
}

func (h *HybridWatcher) emitEvents(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		total := h.droppedBatches.Add(1)
		h.logger.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", total))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// DroppedBatches returns how many batches were lost to a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

// Stop stops the watcher and closes its channels. Safe to call more than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()

	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.poller != nil {
		_ = h.poller.Stop()
	}
	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the batch channel.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the error channel.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory, empty before Start.
func (h *HybridWatcher) Root() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.root
}
