package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
)

// SQLiteVectorStore keeps vectors as BLOBs in a mattn/go-sqlite3 database
// and searches by brute-force cosine distance.
type SQLiteVectorStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dim    int
	path   string
	closed bool
}

var _ VectorStore = (*SQLiteVectorStore)(nil)

// NewSQLiteVectorStore opens the database at cfg.Path (":memory:" if empty).
func NewSQLiteVectorStore(cfg VectorStoreConfig) (*SQLiteVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimensions)
	}
	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		dim INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		content TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var stored int
	err = db.QueryRow(`SELECT dim FROM vectors LIMIT 1`).Scan(&stored)
	if err == nil && stored != cfg.Dimensions {
		_ = db.Close()
		return nil, ErrDimensionMismatch{Expected: cfg.Dimensions, Got: stored}
	}
	return &SQLiteVectorStore{db: db, dim: cfg.Dimensions, path: cfg.Path}, nil
}

func (s *SQLiteVectorStore) Upsert(ctx context.Context, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, it := range items {
		if len(it.Vector) != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: len(it.Vector)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(id, dim, embedding, content) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dim = excluded.dim, embedding = excluded.embedding, content = excluded.content`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, s.dim, encodeVector(it.Vector), it.Content); err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.dim {
		return nil, ErrDimensionMismatch{Expected: s.dim, Got: len(query)}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to read vector: %w", err)
		}
		ids = append(ids, id)
		vecs = append(vecs, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankByCosine(query, ids, vecs, k)
}

func (s *SQLiteVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in, args := inClause(ids)
	_, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE id IN ("+in+")", args...)
	return err
}

func (s *SQLiteVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Finalize checkpoints the WAL.
func (s *SQLiteVectorStore) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.path == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *SQLiteVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
