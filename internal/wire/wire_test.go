package wire

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/pkg/config"
	"github.com/WessleyAI/nlq-engine/pkg/metrics"
	"github.com/WessleyAI/nlq-engine/pkg/resilience"
)

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

type constLLM struct{}

func (constLLM) Generate(context.Context, string) (string, error) {
	return "SELECT name FROM employees ORDER BY name", nil
}

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hr.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO employees (name) VALUES ('Grace'), ('Ada');`); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = "sqlite://" + seedDB(t)
	ctx := context.Background()

	app, err := Build(ctx, cfg, nil, WithEmbedBackend(constEmbedder{}), WithGenerateBackend(constLLM{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	s, err := app.Engine.CurrentSchema()
	if err != nil || len(s.Tables) != 1 {
		t.Fatalf("schema %+v, %v", s, err)
	}

	res := app.Engine.Process(ctx, "list employees")
	if res.Failed() {
		t.Fatalf("query failed: %s", res.Error)
	}
	rows := res.Results.([]domain.Row)
	if len(rows) != 2 || rows[0]["name"] != "Ada" {
		t.Fatalf("rows %#v", rows)
	}

	doc := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(doc, []byte("first\n\nsecond"), 0o644); err != nil {
		t.Fatal(err)
	}
	job, err := app.Pipeline.Run(ctx, "j1", []string{doc})
	if err != nil || job.Status != ingest.StatusComplete || job.Chunks != 2 {
		t.Fatalf("job %+v, %v", job, err)
	}
	if n, _ := app.Index.Count(ctx); n != 2 {
		t.Fatalf("index holds %d chunks", n)
	}
}

func TestBuildBadDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = "sqlite://" + filepath.Join(t.TempDir(), "missing.db")
	_, err := Build(context.Background(), cfg, nil, WithEmbedBackend(constEmbedder{}), WithGenerateBackend(constLLM{}))
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CACHE_CAPACITY=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("CACHE_CAPACITY") })

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Capacity != 7 {
		t.Fatalf("capacity = %d", cfg.Cache.Capacity)
	}
}

func TestBreakerStateExported(t *testing.T) {
	reg := metrics.New()
	b := newBreaker("generate", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !strings.Contains(reg.Render(), `nlq_backend_breaker_state{backend="generate"} 0`) {
		t.Fatalf("gauge not registered:\n%s", reg.Render())
	}
	for range resilience.DefaultBreakerOpts.FailThreshold {
		_ = b.Call(context.Background(), func(context.Context) error { return errors.New("down") })
	}
	if !strings.Contains(reg.Render(), `nlq_backend_breaker_state{backend="generate"} 1`) {
		t.Fatalf("open state not exported:\n%s", reg.Render())
	}
}
