package watcher

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Debouncer holds events until their path has been quiet for a window, then
// emits everything pending as one batch sorted by path. Successive events for
// a path merge as follows:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE drops the path
//   - DELETE then CREATE becomes MODIFY
//   - anything else keeps the latest event
type Debouncer struct {
	window  time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		logger:  slog.Default(),
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		if merged, keep := merge(prev, event); keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge folds next into prev. keep is false when the two cancel out.
func merge(prev, next FileEvent) (merged FileEvent, keep bool) {
	switch {
	case prev.Operation == OpCreate && next.Operation == OpModify:
		prev.Timestamp = next.Timestamp
		return prev, true
	case prev.Operation == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case prev.Operation == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	slices.SortFunc(batch, func(a, b FileEvent) int { return strings.Compare(a.Path, b.Path) })
	clear(d.pending)

	select {
	case d.output <- batch:
	default:
		d.logger.Warn("debounce_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Pending returns the number of paths waiting for their window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the batch channel.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
