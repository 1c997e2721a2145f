// Package wire assembles the engine from configuration for the binaries.
package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/nlq-engine/engine/cache"
	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/engine/embed"
	"github.com/WessleyAI/nlq-engine/engine/extract"
	"github.com/WessleyAI/nlq-engine/engine/history"
	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/engine/query"
	"github.com/WessleyAI/nlq-engine/engine/rag"
	"github.com/WessleyAI/nlq-engine/engine/schema"
	"github.com/WessleyAI/nlq-engine/engine/semantic"
	"github.com/WessleyAI/nlq-engine/engine/sqlgen"
	"github.com/WessleyAI/nlq-engine/pkg/config"
	"github.com/WessleyAI/nlq-engine/pkg/fn"
	"github.com/WessleyAI/nlq-engine/pkg/metrics"
	"github.com/WessleyAI/nlq-engine/pkg/ollama"
	"github.com/WessleyAI/nlq-engine/pkg/resilience"
)

// LoadConfig reads .env (when present) into the environment and then loads
// the configuration file at path.
func LoadConfig(path string) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("wire: load .env: %w", err)
	}
	return config.Load(path)
}

// NewLogger builds the JSON logger used by every binary and installs it as
// the slog default.
func NewLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

// App is a fully wired engine.
type App struct {
	Config    config.Config
	Metrics   *metrics.Registry
	Embedder  *embed.Adapter
	Index     semantic.Index
	Pipeline  *ingest.Pipeline
	Retriever *rag.Retriever
	Engine    *query.Engine
	History   history.Store
	NATS      *nats.Conn

	closers []func()
}

// Close releases every connection opened by Build, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type options struct {
	embedBackend embed.Backend
	genBackend   sqlgen.Backend
	index        semantic.Index
	noNATS       bool
}

// Option overrides a collaborator chosen by Build.
type Option func(*options)

// WithEmbedBackend replaces the Ollama embedding client.
func WithEmbedBackend(b embed.Backend) Option { return func(o *options) { o.embedBackend = b } }

// WithGenerateBackend replaces the Ollama generation client.
func WithGenerateBackend(b sqlgen.Backend) Option { return func(o *options) { o.genBackend = b } }

// WithIndex replaces the configured vector index.
func WithIndex(idx semantic.Index) Option { return func(o *options) { o.index = idx } }

// WithoutNATS skips the NATS connection even when a URL is configured.
func WithoutNATS() Option { return func(o *options) { o.noNATS = true } }

// Build wires every component from cfg. On error, whatever was already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{Config: cfg, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if o.embedBackend == nil {
		o.embedBackend = ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel, cfg.Embedding.Timeout)
	}
	app.Embedder = embed.New(o.embedBackend,
		embed.Options{
			BatchSize: cfg.Embedding.BatchSize,
			Timeout:   cfg.Embedding.Timeout,
			Retry: fn.RetryOpts{
				MaxAttempts: cfg.Embedding.Attempts,
				InitialWait: 500 * time.Millisecond,
				MaxWait:     5 * time.Second,
				Jitter:      true,
			},
		},
		embed.WithBreaker(newBreaker("embed", app.Metrics, logger)),
		embed.WithLimiter(resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.Embedding.Rate, Burst: cfg.Embedding.Burst})),
		embed.WithLogger(logger.With("component", "embed")),
	)

	if app.Index = o.index; app.Index == nil {
		if app.Index, err = openIndex(ctx, app, cfg.Vector, logger); err != nil {
			return nil, err
		}
	}

	var notifier ingest.Notifier
	if cfg.NATS.URL != "" && !o.noNATS {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("nlq-engine"))
		if err != nil {
			return nil, fmt.Errorf("wire: nats connect %s: %w", cfg.NATS.URL, err)
		}
		app.NATS = nc
		app.closers = append(app.closers, func() { _ = nc.Drain() })
		notifier = ingest.NewNATSNotifier(nc, cfg.NATS.StatusSubject, logger)
		logger.Info("connected to NATS", "url", cfg.NATS.URL)
	}

	app.Pipeline, err = ingest.NewPipeline(ingest.Deps{
		Extractor: extract.New(),
		Embedder:  app.Embedder,
		Index:     app.Index,
		Notifier:  notifier,
		Metrics:   app.Metrics,
		Logger:    logger.With("component", "ingest"),
	})
	if err != nil {
		return nil, err
	}

	app.Retriever, err = rag.New(app.Embedder, app.Index, rag.Options{
		TopK:          cfg.Retrieval.TopK,
		SearchTimeout: cfg.Retrieval.SearchTimeout,
	}, logger.With("component", "rag"))
	if err != nil {
		return nil, err
	}

	if o.genBackend == nil {
		o.genBackend = ollama.NewGenerateClient(cfg.Ollama.URL, cfg.Ollama.GenerateModel, cfg.Generation.Timeout)
	}
	generator := sqlgen.New(o.genBackend,
		sqlgen.WithTimeout(cfg.Generation.Timeout),
		sqlgen.WithBreaker(newBreaker("generate", app.Metrics, logger)),
		sqlgen.WithLimiter(resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.Generation.Rate, Burst: cfg.Generation.Burst})),
		sqlgen.WithLogger(logger.With("component", "sqlgen")),
	)

	if app.History, err = openHistory(ctx, app, cfg.History, logger); err != nil {
		return nil, err
	}

	dbOpts := schema.Options{MaxOpenConns: cfg.Database.MaxOpenConns, StatementTimeout: cfg.Database.StatementTimeout}
	app.Engine, err = query.New(query.Deps{
		Classifier: query.NewClassifier(cfg.Classifier.DocumentTerms, cfg.Classifier.SQLTerms),
		Generator:  generator,
		Retriever:  app.Retriever,
		Cache:      cache.New[string, domain.QueryResult](cfg.Cache.Capacity),
		History:    app.History,
		Connector: func(ctx context.Context, target string) (query.Database, error) {
			s, err := schema.Open(ctx, target, dbOpts)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Metrics: app.Metrics,
		Logger:  logger.With("component", "query"),
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Engine.Close)

	if cfg.Database.URL != "" {
		if _, err := app.Engine.Connect(ctx, cfg.Database.URL); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// newBreaker guards one backend and exports its state as
// nlq_backend_breaker_state{backend} (0 closed, 1 open, 2 half-open).
func newBreaker(backend string, reg *metrics.Registry, logger *slog.Logger) *resilience.Breaker {
	gauge := reg.Gauge(metrics.WithLabels("nlq_backend_breaker_state", "backend", backend), "Circuit breaker state per backend")
	opts := resilience.DefaultBreakerOpts
	opts.Name = backend
	opts.OnStateChange = func(name string, from, to resilience.State) {
		gauge.Set(int64(to))
		logger.Warn("backend circuit breaker changed state", "backend", name, "from", from.String(), "to", to.String())
	}
	return resilience.NewBreaker(opts)
}

func openIndex(ctx context.Context, app *App, cfg config.VectorConfig, logger *slog.Logger) (semantic.Index, error) {
	if cfg.Backend != "qdrant" {
		return semantic.NewMemoryIndex(), nil
	}
	vs, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = vs.Close() })
	if err := vs.EnsureCollection(ctx, cfg.Dims); err != nil {
		return nil, err
	}
	logger.Info("connected to Qdrant", "addr", cfg.QdrantAddr, "collection", cfg.Collection, "dims", cfg.Dims)
	return vs, nil
}

func openHistory(ctx context.Context, app *App, cfg config.HistoryConfig, logger *slog.Logger) (history.Store, error) {
	if cfg.Backend != "neo4j" {
		return history.NewMemoryStore(cfg.Capacity), nil
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("wire: neo4j driver: %w", err)
	}
	app.closers = append(app.closers, func() { _ = driver.Close(context.Background()) })
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("wire: neo4j connect %s: %w", cfg.Neo4jURL, err)
	}
	store := history.NewNeo4jStore(driver, "")
	if err := store.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	logger.Info("connected to Neo4j", "url", cfg.Neo4jURL)
	return store, nil
}
