package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on a fixed interval.
// HybridWatcher falls back to it when fsnotify is unavailable.
type PollingWatcher struct {
	interval time.Duration
	accept   func(rel string, isDir bool) bool
	logger   *slog.Logger

	mu       sync.Mutex
	snapshot map[string]fileState
	root     string
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	stopped  bool
}

type fileState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. accept may be nil.
func NewPollingWatcher(interval time.Duration, accept func(rel string, isDir bool) bool) *PollingWatcher {
	if accept == nil {
		accept = func(string, bool) bool { return true }
	}
	return &PollingWatcher{
		interval: interval,
		accept:   accept,
		logger:   slog.Default(),
		snapshot: make(map[string]fileState),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then polls until Stop or ctx is done.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	root, err := watchRoot(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.root = root
	p.snapshot, err = p.scan()
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop halts polling and closes both channels.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the unbatched event channel.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the error channel.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// scan walks the tree. Must be called with p.mu held.
func (p *PollingWatcher) scan() (map[string]fileState, error) {
	files := make(map[string]fileState)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if hidden(rel) || !p.accept(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[rel] = fileState{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return files, err
}

// poll diffs a fresh scan against the previous snapshot.
func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	current, err := p.scan()
	if err != nil {
		return fmt.Errorf("rescan %s: %w", p.root, err)
	}

	now := time.Now()
	for rel, st := range current {
		prev, seen := p.snapshot[rel]
		switch {
		case !seen:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, IsDir: st.isDir, Timestamp: now})
		case !st.isDir && (prev.modTime != st.modTime || prev.size != st.size):
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, st := range p.snapshot {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, IsDir: st.isDir, Timestamp: now})
		}
	}
	p.snapshot = current
	return nil
}

// emit must be called with p.mu held.
func (p *PollingWatcher) emit(ev FileEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("poll_event_dropped",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()))
	}
}

// watchRoot resolves path and checks that it is a directory.
func watchRoot(path string) (string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("watch %s: not a directory", path)
	}
	return root, nil
}

// hidden reports whether any element of a relative path starts with a dot.
// Editors and downloaders write temporary files that way.
func hidden(rel string) bool {
	for part := range strings.SplitSeq(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
