package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for Neo4jGraphStore.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	// Workspace labels every node so several working dirs can share one
	// database.
	Workspace string
}

// Neo4jGraphStore keeps entities as :Entity nodes and relations as
// :RELATED edges stored source->target in normalized order. Each upsert
// call merges inside one write transaction.
type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
	cfg    Neo4jConfig

	mu     sync.Mutex
	closed bool
}

var _ GraphStore = (*Neo4jGraphStore)(nil)

// NewNeo4jGraphStore connects and verifies connectivity.
func NewNeo4jGraphStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jGraphStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "default"
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable at %s: %w", cfg.URI, err)
	}
	s := &Neo4jGraphStore{driver: driver, cfg: cfg}
	if _, err := s.exec(ctx, `CREATE INDEX entity_name IF NOT EXISTS FOR (n:Entity) ON (n.workspace, n.name)`, nil); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to create neo4j index: %w", err)
	}
	return s, nil
}

func (s *Neo4jGraphStore) exec(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	if params == nil {
		params = map[string]any{}
	}
	params["ws"] = s.cfg.Workspace
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.cfg.Database))
}

func (s *Neo4jGraphStore) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.cfg.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() { _ = session.Close(ctx) }()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

func (s *Neo4jGraphStore) UpsertEntities(ctx context.Context, entities []*Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, in := range entities {
			if in == nil || in.Name == "" {
				continue
			}
			res, err := tx.Run(ctx, `
				MATCH (n:Entity {workspace: $ws, name: $name})
				RETURN n.name AS name, n.type AS type, n.description AS description, n.source_ids AS source_ids`,
				map[string]any{"ws": s.cfg.Workspace, "name": in.Name})
			if err != nil {
				return err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return err
			}
			var existing *Entity
			if len(recs) > 0 {
				existing = entityFromRecord(recs[0])
			}
			merged := mergeEntity(existing, in)
			if _, err := tx.Run(ctx, `
				MERGE (n:Entity {workspace: $ws, name: $name})
				SET n.type = $type, n.description = $description, n.source_ids = $source_ids`,
				map[string]any{
					"ws":          s.cfg.Workspace,
					"name":        merged.Name,
					"type":        merged.Type,
					"description": merged.Description,
					"source_ids":  merged.SourceIDs,
				}); err != nil {
				return fmt.Errorf("failed to upsert entity %s: %w", in.Name, err)
			}
		}
		return nil
	})
}

func (s *Neo4jGraphStore) UpsertRelations(ctx context.Context, relations []*Relation) error {
	if len(relations) == 0 {
		return nil
	}
	return s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, in := range relations {
			if in == nil || in.Source == "" || in.Target == "" {
				continue
			}
			key := in.Key()
			res, err := tx.Run(ctx, `
				MATCH (a:Entity {workspace: $ws, name: $src})-[r:RELATED]->(b:Entity {workspace: $ws, name: $tgt})
				RETURN a.name AS source, b.name AS target, r.description AS description,
					r.keywords AS keywords, r.weight AS weight, r.source_ids AS source_ids`,
				map[string]any{"ws": s.cfg.Workspace, "src": key.Source, "tgt": key.Target})
			if err != nil {
				return err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return err
			}
			var existing *Relation
			if len(recs) > 0 {
				existing = relationFromRecord(recs[0])
			}
			merged := mergeRelation(existing, in)
			if _, err := tx.Run(ctx, `
				MERGE (a:Entity {workspace: $ws, name: $src})
				ON CREATE SET a.type = $unknown, a.description = '', a.source_ids = []
				MERGE (b:Entity {workspace: $ws, name: $tgt})
				ON CREATE SET b.type = $unknown, b.description = '', b.source_ids = []
				MERGE (a)-[r:RELATED]->(b)
				SET r.description = $description, r.keywords = $keywords,
					r.weight = $weight, r.source_ids = $source_ids`,
				map[string]any{
					"ws":          s.cfg.Workspace,
					"src":         merged.Source,
					"tgt":         merged.Target,
					"unknown":     UnknownEntityType,
					"description": merged.Description,
					"keywords":    merged.Keywords,
					"weight":      merged.Weight,
					"source_ids":  merged.SourceIDs,
				}); err != nil {
				return fmt.Errorf("failed to upsert relation %s-%s: %w", key.Source, key.Target, err)
			}
		}
		return nil
	})
}

func (s *Neo4jGraphStore) GetEntities(ctx context.Context, names []string) ([]*Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}
	res, err := s.exec(ctx, `
		MATCH (n:Entity {workspace: $ws}) WHERE n.name IN $names
		RETURN n.name AS name, n.type AS type, n.description AS description, n.source_ids AS source_ids`,
		map[string]any{"names": names})
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	byName := make(map[string]*Entity, len(res.Records))
	for _, rec := range res.Records {
		e := entityFromRecord(rec)
		byName[e.Name] = e
	}
	out := make([]*Entity, 0, len(names))
	for _, n := range names {
		if e, ok := byName[n]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Neo4jGraphStore) GetRelations(ctx context.Context, keys []EdgeKey) ([]*Relation, error) {
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		k = NewEdgeKey(k.Source, k.Target)
		res, err := s.exec(ctx, `
			MATCH (a:Entity {workspace: $ws, name: $src})-[r:RELATED]->(b:Entity {workspace: $ws, name: $tgt})
			RETURN a.name AS source, b.name AS target, r.description AS description,
				r.keywords AS keywords, r.weight AS weight, r.source_ids AS source_ids`,
			map[string]any{"src": k.Source, "tgt": k.Target})
		if err != nil {
			return nil, fmt.Errorf("failed to read relation %s-%s: %w", k.Source, k.Target, err)
		}
		if len(res.Records) > 0 {
			out = append(out, relationFromRecord(res.Records[0]))
		}
	}
	return out, nil
}

func (s *Neo4jGraphStore) EntityRelations(ctx context.Context, name string) ([]*Relation, error) {
	res, err := s.exec(ctx, `
		MATCH (a:Entity {workspace: $ws})-[r:RELATED]->(b:Entity {workspace: $ws})
		WHERE a.name = $name OR b.name = $name
		RETURN a.name AS source, b.name AS target, r.description AS description,
			r.keywords AS keywords, r.weight AS weight, r.source_ids AS source_ids
		ORDER BY r.weight DESC, source, target`,
		map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to query relations of %s: %w", name, err)
	}
	out := make([]*Relation, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, relationFromRecord(rec))
	}
	return out, nil
}

func (s *Neo4jGraphStore) Counts(ctx context.Context) (int, int, error) {
	res, err := s.exec(ctx, `
		MATCH (n:Entity {workspace: $ws})
		OPTIONAL MATCH (n)-[r:RELATED]->()
		RETURN count(DISTINCT n) AS nodes, count(r) AS edges`, nil)
	if err != nil {
		return 0, 0, err
	}
	if len(res.Records) == 0 {
		return 0, 0, nil
	}
	nodes, _ := res.Records[0].Get("nodes")
	edges, _ := res.Records[0].Get("edges")
	n, _ := nodes.(int64)
	e, _ := edges.(int64)
	return int(n), int(e), nil
}

// Finalize is a no-op: each upsert commits its own transaction.
func (s *Neo4jGraphStore) Finalize(context.Context) error { return nil }

func (s *Neo4jGraphStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.driver.Close(context.Background())
}

func entityFromRecord(rec *neo4j.Record) *Entity {
	e := &Entity{}
	e.Name = recordString(rec, "name")
	e.Type = recordString(rec, "type")
	e.Description = recordString(rec, "description")
	e.SourceIDs = recordStrings(rec, "source_ids")
	return e
}

func relationFromRecord(rec *neo4j.Record) *Relation {
	r := &Relation{
		Source:      recordString(rec, "source"),
		Target:      recordString(rec, "target"),
		Description: recordString(rec, "description"),
		Keywords:    recordString(rec, "keywords"),
		SourceIDs:   recordStrings(rec, "source_ids"),
	}
	if v, ok := rec.Get("weight"); ok {
		switch w := v.(type) {
		case float64:
			r.Weight = w
		case int64:
			r.Weight = float64(w)
		}
	}
	return r
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
