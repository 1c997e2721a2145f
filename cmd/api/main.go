// Command api serves the query engine over HTTP: database connection,
// document upload and ingestion status, natural-language queries, schema
// and query history.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/nlq-engine/internal/wire"
	"github.com/WessleyAI/nlq-engine/pkg/config"
	"github.com/WessleyAI/nlq-engine/pkg/mid"
)

func main() {
	configPath := flag.String("config", os.Getenv("NLQ_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := wire.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := wire.NewLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wire.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newServer(app, logger).handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	app.Pipeline.Wait()
	return nil
}

func (s *server) handler() http.Handler {
	return mid.Chain(s.routes(),
		mid.Recover(s.log),
		mid.Logger(s.log),
		mid.CORS(mid.SplitOrigins(s.app.Config.Server.CORSOrigin)...),
		mid.BodyLimit(s.app.Config.Server.MaxUploadBytes),
		mid.OTel("nlq-api"),
		mid.Metrics(s.app.Metrics),
	)
}
