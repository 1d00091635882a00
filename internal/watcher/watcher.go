package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate is a new file or directory.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removed file or directory.
	OpDelete
	// OpRename is the old name of a moved file. The new name arrives as OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single observed change.
type FileEvent struct {
	// Path is relative to the watched root.
	Path string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher reports changes under a directory tree.
type Watcher interface {
	// Start watches path until Stop is called or ctx is done.
	Start(ctx context.Context, path string) error

	// Stop releases resources. Safe to call more than once.
	Stop() error

	// Events delivers debounced batches. Closed by Stop.
	Events() <-chan []FileEvent

	// Errors delivers non-fatal watch errors. Closed by Stop.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before it is emitted.
	DebounceWindow time.Duration

	// PollInterval is the scan period of the polling fallback.
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel.
	EventBufferSize int

	// Filter selects the files to report. Directories are never filtered.
	// Nil reports every file.
	Filter func(path string) bool
}

// DefaultOptions returns the defaults used for zero-valued fields.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// accepts reports whether a file at path passes the filter.
func (o Options) accepts(path string, isDir bool) bool {
	if isDir || o.Filter == nil {
		return true
	}
	return o.Filter(path)
}
