package history

import (
	"context"
	"fmt"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Neo4jStore keeps entries as :QueryRecord nodes.
type Neo4jStore struct {
	driver     neo4j.DriverWithContext
	database   string
	newSession func(ctx context.Context) runner // for testing
}

var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore creates a store writing to database (the default database when empty).
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

func (s *Neo4jStore) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})}
}

// EnsureIndex creates the ordering index used by Recent.
func (s *Neo4jStore) EnsureIndex(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)
	_, err := sess.Run(ctx, "CREATE INDEX query_record_at IF NOT EXISTS FOR (n:QueryRecord) ON (n.at_ms)", nil)
	if err != nil {
		return fmt.Errorf("history: ensure index: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Append(ctx context.Context, e Entry) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	props := map[string]any{
		"id":            e.ID,
		"query":         e.Query,
		"query_type":    string(e.QueryType),
		"cache_hit":     e.CacheHit,
		"response_time": e.ResponseTime,
		"error":         e.Error,
		"at_ms":         e.At.UnixMilli(),
	}
	if _, err := sess.Run(ctx, "CREATE (n:QueryRecord $props)", map[string]any{"props": props}); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "MATCH (n:QueryRecord) RETURN n ORDER BY n.at_ms DESC LIMIT $limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	out := []Entry{}
	for res.Next(ctx) {
		e, err := entryFromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func entryFromRecord(rec *neo4j.Record) (Entry, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return Entry{}, fmt.Errorf("history: record has no node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return Entry{}, fmt.Errorf("history: unexpected value %T", raw)
	}
	p := node.Props
	e := Entry{}
	e.ID, _ = p["id"].(string)
	e.Query, _ = p["query"].(string)
	qt, _ := p["query_type"].(string)
	e.QueryType = domain.QueryType(qt)
	e.CacheHit, _ = p["cache_hit"].(bool)
	e.ResponseTime, _ = p["response_time"].(float64)
	e.Error, _ = p["error"].(string)
	if ms, ok := p["at_ms"].(int64); ok {
		e.At = time.UnixMilli(ms).UTC()
	}
	return e, nil
}
