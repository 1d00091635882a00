package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"
)

// SQLiteBM25Index implements KeywordIndex with SQLite FTS5.
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
}

var _ KeywordIndex = (*SQLiteBM25Index)(nil)

// NewSQLiteBM25Index opens or creates an FTS5 index at path. An empty path
// creates an in-memory index.
func NewSQLiteBM25Index(path string, cfg KeywordConfig) (*SQLiteBM25Index, error) {
	db, err := openSQLite(path, "fts_content")
	if err != nil {
		return nil, err
	}

	idx := &SQLiteBM25Index{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(cfg.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

// openSQLite opens a modernc.org/sqlite database with WAL pragmas. When
// table is set and an existing file fails its integrity check or lacks
// table, the file is cleared and recreated.
func openSQLite(path, table string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if table != "" {
			if verr := validateSQLiteIntegrity(path, table); verr != nil {
				slog.Warn("sqlite_store_corrupted",
					slog.String("path", path),
					slog.String("error", verr.Error()))
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, err, verr)
				}
				_ = os.Remove(path + "-wal")
				_ = os.Remove(path + "-shm")
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps :memory: on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

func validateSQLiteIntegrity(path, table string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, table).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table %q missing", table)
	}
	return nil
}

func (s *SQLiteBM25Index) initSchema() error {
	_, err := s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);`)
	return err
}

// Index adds or replaces documents. Content is tokenized and stop words
// are removed before it reaches FTS5.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		content := strings.Join(FilterStopWords(TokenizeText(doc.Content), s.stopWords), " ")
		// FTS5 has no REPLACE
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`, doc.ID, content); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO doc_ids(doc_id) VALUES (?)`, doc.ID); err != nil {
			return fmt.Errorf("failed to track document ID %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns documents matching any query term, best BM25 first.
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	tokens := FilterStopWords(TokenizeText(query), s.stopWords)
	if len(tokens) == 0 {
		return []*KeywordResult{}, nil
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}

	// bm25() is negative; lower is better
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, strings.Join(quoted, " OR "), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordResult{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*KeywordResult
	for rows.Next() {
		var r KeywordResult
		var score float64
		if err := rows.Scan(&r.DocID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Score = -score
		r.MatchedTerms = tokens
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *SQLiteBM25Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	in, args := inClause(ids)
	if _, err := tx.ExecContext(ctx, "DELETE FROM fts_content WHERE doc_id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_ids WHERE doc_id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("failed to delete from doc_ids: %w", err)
	}
	return tx.Commit()
}

// Count returns the number of indexed documents.
func (s *SQLiteBM25Index) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Finalize checkpoints the WAL into the main database file.
func (s *SQLiteBM25Index) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}
	if s.path == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the database. Idempotent.
func (s *SQLiteBM25Index) Close() error {
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

// inClause builds "?,?,?" and its argument list.
func inClause(ids []string) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}
