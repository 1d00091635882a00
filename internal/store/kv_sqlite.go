package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteKVStore keeps chunk text and document pipeline state in
// modernc.org/sqlite.
type SQLiteKVStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ KVStore = (*SQLiteKVStore)(nil)

// NewSQLiteKVStore opens or creates the store at path. An empty path keeps
// everything in memory.
func NewSQLiteKVStore(path string) (*SQLiteKVStore, error) {
	db, err := openSQLite(path, "documents")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		length INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		content TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		ord INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteKVStore{db: db, path: path}, nil
}

func (s *SQLiteKVStore) GetDoc(ctx context.Context, id string) (*DocRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("kv store is closed")
	}
	var d DocRecord
	var status string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, summary, length, chunk_count, status, error, created_at, updated_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Summary, &d.Length, &d.ChunkCount, &status, &d.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	d.Status = DocStatus(status)
	d.CreatedAt = time.Unix(0, created)
	d.UpdatedAt = time.Unix(0, updated)
	return &d, nil
}

// PutDoc inserts or replaces a document record. CreatedAt is kept from the
// first write.
func (s *SQLiteKVStore) PutDoc(ctx context.Context, doc *DocRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kv store is closed")
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, summary, length, chunk_count, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			length = excluded.length,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Summary, doc.Length, doc.ChunkCount, string(doc.Status), doc.Error,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteKVStore) PutChunks(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kv store is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(id, doc_id, content, tokens, ord) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id, content = excluded.content,
			tokens = excluded.tokens, ord = excluded.ord`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.Content, c.Tokens, c.Order); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteKVStore) GetChunks(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("kv store is closed")
	}
	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, doc_id, content, tokens, ord FROM chunks WHERE id IN ("+in+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*ChunkRecord, len(ids))
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.DocID, &c.Content, &c.Tokens, &c.Order); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*ChunkRecord, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *SQLiteKVStore) Counts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, fmt.Errorf("kv store is closed")
	}
	var docs, chunks int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docs); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return docs, chunks, nil
}

// Finalize checkpoints the WAL into the main database file.
func (s *SQLiteKVStore) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kv store is closed")
	}
	if s.path == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *SQLiteKVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
