package store

import (
	"fmt"
	"path/filepath"
)

// Keyword backend names.
const (
	KeywordBackendSQLite = "sqlite"
	KeywordBackendBleve  = "bleve"
)

// NewKeywordIndex opens a keyword index under dir using backend. An empty
// dir creates an in-memory index.
func NewKeywordIndex(dir, backend string, cfg KeywordConfig) (KeywordIndex, error) {
	base := ""
	if dir != "" {
		base = filepath.Join(dir, "keywords")
	}
	switch backend {
	case KeywordBackendSQLite, "":
		if base != "" {
			base += ".db"
		}
		return NewSQLiteBM25Index(base, cfg)
	case KeywordBackendBleve:
		if base != "" {
			base += ".bleve"
		}
		return NewBleveBM25Index(base, cfg)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", backend)
	}
}
