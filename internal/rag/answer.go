package rag

import (
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeNaive searches chunk vectors only.
	ModeNaive Mode = "naive"
	// ModeLocal starts from matching entities and their graph neighbourhood.
	ModeLocal Mode = "local"
	// ModeGlobal starts from matching relations.
	ModeGlobal Mode = "global"
	// ModeHybrid merges local and global retrieval.
	ModeHybrid Mode = "hybrid"
)

// Modes lists the valid retrieval modes.
var Modes = []Mode{ModeNaive, ModeLocal, ModeGlobal, ModeHybrid}

// ParseMode accepts exactly the four lowercase mode names.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNaive, ModeLocal, ModeGlobal, ModeHybrid:
		return m, nil
	}
	return "", amerrors.InvalidMode(s)
}

// Status tags an Answer.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoContext Status = "no_context"
	StatusError     Status = "error"
)

// FailResponse is the answer text when retrieval finds nothing.
const FailResponse = "Sorry, I'm not able to provide an answer to that question.[no-context]"

// QueryParam tunes one query. Zero values use the engine configuration.
type QueryParam struct {
	Mode Mode
	// TopK is the number of entities (local) or relations (global) matched.
	TopK int
	// ChunkTopK is the number of chunks kept in the context.
	ChunkTopK int
	// MaxContextTokens bounds the assembled context.
	MaxContextTokens int
	// OnlyNeedContext returns the assembled context without calling the model.
	OnlyNeedContext bool
}

// Source is a chunk that went into the context.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Answer is the tagged result of a query. Failures are carried in Error
// with StatusError; Query never returns a Go error.
type Answer struct {
	Mode      Mode     `json:"mode"`
	Status    Status   `json:"status"`
	Text      string   `json:"text,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Context   string   `json:"context,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Relations []string `json:"relations,omitempty"`
}

// OK reports whether the answer came from the model or the context.
func (a *Answer) OK() bool { return a != nil && a.Status == StatusOK }

func errorAnswer(mode Mode, err error) *Answer {
	return &Answer{
		Mode:      mode,
		Status:    StatusError,
		Error:     err.Error(),
		ErrorCode: amerrors.GetCode(err),
	}
}
