package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// SQLiteGraphStore keeps the knowledge graph in two modernc.org/sqlite
// tables. Merges run inside one transaction per upsert call.
type SQLiteGraphStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ GraphStore = (*SQLiteGraphStore)(nil)

// NewSQLiteGraphStore opens or creates the graph database at path. An empty
// path keeps the graph in memory.
func NewSQLiteGraphStore(path string) (*SQLiteGraphStore, error) {
	db, err := openSQLite(path, "nodes")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS nodes (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		source_ids TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS edges (
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		description TEXT NOT NULL,
		keywords TEXT NOT NULL,
		weight REAL NOT NULL,
		source_ids TEXT NOT NULL,
		PRIMARY KEY (source, target)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteGraphStore{db: db, path: path}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var ids string
	if err := row.Scan(&e.Name, &e.Type, &e.Description, &ids); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &e.SourceIDs); err != nil {
		return nil, fmt.Errorf("corrupt source ids for %s: %w", e.Name, err)
	}
	return &e, nil
}

func scanRelation(row rowScanner) (*Relation, error) {
	var r Relation
	var ids string
	if err := row.Scan(&r.Source, &r.Target, &r.Description, &r.Keywords, &r.Weight, &ids); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &r.SourceIDs); err != nil {
		return nil, fmt.Errorf("corrupt source ids for %s-%s: %w", r.Source, r.Target, err)
	}
	return &r, nil
}

func (s *SQLiteGraphStore) UpsertEntities(ctx context.Context, entities []*Entity) error {
	if len(entities) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, in := range entities {
		if in == nil || in.Name == "" {
			continue
		}
		existing, err := scanEntity(tx.QueryRowContext(ctx,
			`SELECT name, type, description, source_ids FROM nodes WHERE name = ?`, in.Name))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read entity %s: %w", in.Name, err)
		}
		merged := mergeEntity(existing, in)
		ids, _ := json.Marshal(merged.SourceIDs)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes(name, type, description, source_ids) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				type = excluded.type,
				description = excluded.description,
				source_ids = excluded.source_ids`,
			merged.Name, merged.Type, merged.Description, string(ids)); err != nil {
			return fmt.Errorf("failed to upsert entity %s: %w", in.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) UpsertRelations(ctx context.Context, relations []*Relation) error {
	if len(relations) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, in := range relations {
		if in == nil || in.Source == "" || in.Target == "" {
			continue
		}
		key := in.Key()
		existing, err := scanRelation(tx.QueryRowContext(ctx, `
			SELECT source, target, description, keywords, weight, source_ids
			FROM edges WHERE source = ? AND target = ?`, key.Source, key.Target))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read relation %s-%s: %w", key.Source, key.Target, err)
		}
		merged := mergeRelation(existing, in)
		ids, _ := json.Marshal(merged.SourceIDs)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges(source, target, description, keywords, weight, source_ids)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source, target) DO UPDATE SET
				description = excluded.description,
				keywords = excluded.keywords,
				weight = excluded.weight,
				source_ids = excluded.source_ids`,
			merged.Source, merged.Target, merged.Description, merged.Keywords, merged.Weight, string(ids)); err != nil {
			return fmt.Errorf("failed to upsert relation %s-%s: %w", key.Source, key.Target, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteGraphStore) GetEntities(ctx context.Context, names []string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}
	out := make([]*Entity, 0, len(names))
	for _, name := range names {
		e, err := scanEntity(s.db.QueryRowContext(ctx,
			`SELECT name, type, description, source_ids FROM nodes WHERE name = ?`, name))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read entity %s: %w", name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteGraphStore) GetRelations(ctx context.Context, keys []EdgeKey) ([]*Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		k = NewEdgeKey(k.Source, k.Target)
		r, err := scanRelation(s.db.QueryRowContext(ctx, `
			SELECT source, target, description, keywords, weight, source_ids
			FROM edges WHERE source = ? AND target = ?`, k.Source, k.Target))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read relation %s-%s: %w", k.Source, k.Target, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLiteGraphStore) EntityRelations(ctx context.Context, name string) ([]*Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, description, keywords, weight, source_ids
		FROM edges WHERE source = ? OR target = ?
		ORDER BY weight DESC, source, target`, name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteGraphStore) Counts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, fmt.Errorf("graph store is closed")
	}
	var nodes, edges int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&nodes); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&edges); err != nil {
		return 0, 0, err
	}
	return nodes, edges, nil
}

// Finalize checkpoints the WAL into the main database file.
func (s *SQLiteGraphStore) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}
	if s.path == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *SQLiteGraphStore) Close() error {
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
