package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func TestMemoryStoreRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	if got, _ := s.Recent(ctx, 10); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
	for i := 0; i < 5; i++ {
		s.Append(ctx, Entry{ID: fmt.Sprint(i), Query: fmt.Sprintf("q%d", i)})
	}

	got, _ := s.Recent(ctx, 0)
	want := []string{"4", "3", "2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if got, _ := s.Recent(ctx, 1); len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("limit not applied: %v", got)
	}
}

// --- Neo4j fakes ---

type fakeResult struct {
	records []*neo4j.Record
	i       int
}

func (r *fakeResult) Next(context.Context) bool {
	if r.i >= len(r.records) {
		return false
	}
	r.i++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.i-1] }

type fakeRunner struct {
	cypher []string
	params []map[string]any
	res    *fakeResult
	err    error
	closed int
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	f.cypher = append(f.cypher, cypher)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if f.res == nil {
		return &fakeResult{}, nil
	}
	return f.res, nil
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed++
	return nil
}

func storeWith(r *fakeRunner) *Neo4jStore {
	s := NewNeo4jStore(nil, "")
	s.newSession = func(context.Context) runner { return r }
	return s
}

func TestNeo4jAppend(t *testing.T) {
	r := &fakeRunner{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := storeWith(r).Append(context.Background(), Entry{
		ID: "e1", Query: "how many employees", QueryType: domain.QuerySQL, ResponseTime: 0.12, At: at,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(r.cypher[0], "CREATE (n:QueryRecord") {
		t.Fatalf("unexpected cypher %q", r.cypher[0])
	}
	props := r.params[0]["props"].(map[string]any)
	if props["query_type"] != "SQL" || props["at_ms"] != at.UnixMilli() {
		t.Fatalf("unexpected props %v", props)
	}
	if r.closed != 1 {
		t.Fatal("session should be closed")
	}
}

func TestNeo4jRecent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	node := neo4j.Node{Props: map[string]any{
		"id": "e1", "query": "resume skills", "query_type": "DOCUMENT",
		"cache_hit": true, "response_time": 0.05, "error": "", "at_ms": at.UnixMilli(),
	}}
	r := &fakeRunner{res: &fakeResult{records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{node}}}}}

	got, err := storeWith(r).Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.ID != "e1" || e.QueryType != domain.QueryDocument || !e.CacheHit || !e.At.Equal(at) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if r.params[0]["limit"] != 5 {
		t.Fatalf("unexpected params %v", r.params[0])
	}
}

func TestNeo4jErrors(t *testing.T) {
	r := &fakeRunner{err: errors.New("service unavailable")}
	s := storeWith(r)
	if err := s.Append(context.Background(), Entry{}); err == nil {
		t.Fatal("expected append error")
	}
	if _, err := s.Recent(context.Background(), 1); err == nil {
		t.Fatal("expected recent error")
	}
	if err := s.EnsureIndex(context.Background()); err == nil {
		t.Fatal("expected index error")
	}

	bad := &fakeRunner{res: &fakeResult{records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{"not a node"}}}}}
	if _, err := storeWith(bad).Recent(context.Background(), 1); err == nil {
		t.Fatal("expected decode error")
	}
}
