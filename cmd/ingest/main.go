// Command ingest is a document ingestion worker. It accepts ingestion
// requests over NATS and, optionally, submits files dropped into a watched
// directory. Job snapshots are published on the status subject.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/internal/wire"
)

// queueGroup lets several workers share the request subject.
const queueGroup = "nlq-ingest"

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("NLQ_CONFIG"), "path to YAML config file")
		watchDir    = flag.String("watch", "", "directory to watch for new documents")
		metricsAddr = flag.String("metrics", ":9091", "metrics listen address (empty disables)")
	)
	flag.Parse()

	cfg, err := wire.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := wire.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wire.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	w := worker{app: app, watchDir: *watchDir, metricsAddr: *metricsAddr, log: logger}
	if err := w.run(ctx); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

type worker struct {
	app         *wire.App
	watchDir    string
	metricsAddr string
	log         *slog.Logger
}

var errNoSource = errors.New("ingest: nothing to consume: configure NATS_URL or pass -watch")

// run serves until ctx is done, then waits for in-flight jobs.
func (w worker) run(ctx context.Context) error {
	if w.app.NATS == nil && w.watchDir == "" {
		return errNoSource
	}
	g, ctx := errgroup.WithContext(ctx)

	if w.metricsAddr != "" {
		g.Go(func() error { return w.app.Metrics.Serve(ctx, w.metricsAddr, w.log) })
	}

	if w.app.NATS != nil {
		subject := w.app.Config.NATS.RequestSubject
		sub, err := ingest.StartConsumer(w.app.NATS, subject, queueGroup, w.app.Pipeline)
		if err != nil {
			return err
		}
		w.log.Info("consuming ingestion requests", "subject", sub.Subject, "queue", queueGroup)
		g.Go(func() error {
			<-ctx.Done()
			return sub.Drain()
		})
	}

	if w.watchDir != "" {
		if err := os.MkdirAll(w.watchDir, 0o755); err != nil {
			return err
		}
		watcher := ingest.NewWatcher(w.app.Pipeline, w.watchDir, w.log)
		g.Go(func() error { return watcher.Run(ctx, nil) })
	}

	err := g.Wait()
	w.log.Info("waiting for in-flight jobs")
	w.app.Pipeline.Wait()
	return err
}
