package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only the debounce window set
	opts := Options{DebounceWindow: time.Second}

	// When
	got := opts.WithDefaults()

	// Then: the window is kept and the rest defaulted
	assert.Equal(t, time.Second, got.DebounceWindow)
	assert.Equal(t, DefaultOptions().PollInterval, got.PollInterval)
	assert.Equal(t, DefaultOptions().EventBufferSize, got.EventBufferSize)
}

func TestOptions_Accepts(t *testing.T) {
	opts := Options{Filter: func(p string) bool { return p == "a.pdf" }}

	assert.True(t, opts.accepts("a.pdf", false))
	assert.False(t, opts.accepts("a.doc", false))
	assert.True(t, opts.accepts("sub", true), "directories are never filtered")
	assert.True(t, Options{}.accepts("anything", false))
}

func TestHidden(t *testing.T) {
	assert.True(t, hidden(".a.pdf.part"))
	assert.True(t, hidden("sub/.cache/x.txt"))
	assert.False(t, hidden("sub/x.txt"))
	assert.False(t, hidden("notes.v2.txt"))
}
