package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/internal/wire"
	"github.com/WessleyAI/nlq-engine/pkg/config"
	"github.com/WessleyAI/nlq-engine/pkg/natsutil"
)

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0.5}
	}
	return out, nil
}

type noLLM struct{}

func (noLLM) Generate(context.Context, string) (string, error) { return "SELECT 1", nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func buildApp(t *testing.T, natsURL string) *wire.App {
	t.Helper()
	cfg := config.Default()
	cfg.NATS.URL = natsURL
	opts := []wire.Option{wire.WithEmbedBackend(constEmbedder{}), wire.WithGenerateBackend(noLLM{})}
	if natsURL == "" {
		opts = append(opts, wire.WithoutNATS())
	}
	app, err := wire.Build(context.Background(), cfg, quietLogger(), opts...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func TestRunRequiresASource(t *testing.T) {
	w := worker{app: buildApp(t, ""), log: quietLogger()}
	if err := w.run(context.Background()); !errors.Is(err, errNoSource) {
		t.Fatalf("err = %v", err)
	}
}

func TestWorkerServesNATSRequests(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}

	app := buildApp(t, srv.ClientURL())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker{app: app, log: quietLogger()}.run(ctx) }()

	doc := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(doc, []byte("First paragraph.\n\nSecond paragraph."), 0o644); err != nil {
		t.Fatal(err)
	}

	// The consumer subscribes asynchronously; retry until it responds.
	var acc ingest.Accepted
	deadline := time.Now().Add(3 * time.Second)
	for {
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		acc, err = natsutil.Request[ingest.Request, ingest.Accepted](reqCtx, app.NATS,
			app.Config.NATS.RequestSubject, ingest.Request{JobID: "job-1", Paths: []string{doc}})
		reqCancel()
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if acc.JobID != "job-1" {
		t.Fatalf("accepted %+v", acc)
	}

	app.Pipeline.Wait()
	job, err := app.Pipeline.Jobs().Get("job-1")
	if err != nil || job.Status != ingest.StatusComplete || job.Chunks != 2 {
		t.Fatalf("job %+v, %v", job, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
}
