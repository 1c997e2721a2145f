// Package query routes natural-language questions to SQL generation or
// document retrieval and assembles the unified response.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/WessleyAI/nlq-engine/engine/cache"
	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/engine/history"
	"github.com/WessleyAI/nlq-engine/engine/rag"
	"github.com/WessleyAI/nlq-engine/engine/schema"
	"github.com/WessleyAI/nlq-engine/engine/sqlgen"
	"github.com/WessleyAI/nlq-engine/pkg/metrics"
)

// Database is a live connection with a discovered schema.
type Database interface {
	Schema() domain.Schema
	Execute(ctx context.Context, stmt string) ([]domain.Row, error)
}

// Generator turns a question into SQL for a schema.
type Generator interface {
	Generate(ctx context.Context, question string, s domain.Schema) (string, error)
}

// Retriever answers document questions.
type Retriever interface {
	Search(ctx context.Context, question string) ([]rag.Match, error)
}

// Connector opens a Database for a connection target.
type Connector func(ctx context.Context, target string) (Database, error)

// Deps wires an Engine. Generator and Retriever are required.
type Deps struct {
	Classifier *Classifier
	Generator  Generator
	Retriever  Retriever
	Cache      *cache.LRU[string, domain.QueryResult]
	History    history.Store
	Connector  Connector
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

// Engine is the query processor. It is safe for concurrent use.
type Engine struct {
	classifier *Classifier
	generator  Generator
	retriever  Retriever
	cache      *cache.LRU[string, domain.QueryResult]
	history    history.Store
	connect    Connector
	metrics    *engineMetrics
	logger     *slog.Logger

	db       atomic.Pointer[dbHolder]
	inflight singleflight.Group

	// generation counts Attach calls. Results computed against an older
	// generation are never cached. cacheMu orders Put against Purge.
	generation atomic.Uint64
	cacheMu    sync.Mutex
}

type dbHolder struct{ db Database }

// New builds an Engine from deps.
func New(d Deps) (*Engine, error) {
	if d.Generator == nil {
		return nil, errors.New("query: generator is required")
	}
	if d.Retriever == nil {
		return nil, errors.New("query: retriever is required")
	}
	e := &Engine{
		classifier: d.Classifier,
		generator:  d.Generator,
		retriever:  d.Retriever,
		cache:      d.Cache,
		history:    d.History,
		connect:    d.Connector,
		metrics:    newEngineMetrics(d.Metrics),
		logger:     d.Logger,
	}
	if e.classifier == nil {
		e.classifier = NewClassifier(nil, nil)
	}
	if e.cache == nil {
		e.cache = cache.New[string, domain.QueryResult](128)
	}
	if e.history == nil {
		e.history = history.NewMemoryStore(200)
	}
	if e.connect == nil {
		e.connect = func(ctx context.Context, target string) (Database, error) {
			return schema.Open(ctx, target, schema.DefaultOptions())
		}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Connect opens target, replaces the current database and clears the
// cache. The previous database is closed if it can be.
func (e *Engine) Connect(ctx context.Context, target string) (domain.Schema, error) {
	if err := domain.ValidateConnectionTarget(target); err != nil {
		return domain.Schema{}, err
	}
	db, err := e.connect(ctx, target)
	if err != nil {
		return domain.Schema{}, err
	}
	e.Attach(db)
	s := db.Schema()
	e.logger.Info("database connected", "tables", len(s.Tables))
	return s, nil
}

// Attach installs db as the current database and clears the cache.
func (e *Engine) Attach(db Database) {
	var old *dbHolder
	if db == nil {
		old = e.db.Swap(nil)
	} else {
		old = e.db.Swap(&dbHolder{db: db})
	}
	e.cacheMu.Lock()
	e.generation.Add(1)
	e.cache.Purge()
	e.cacheMu.Unlock()
	if old != nil {
		if c, ok := old.db.(io.Closer); ok {
			if err := c.Close(); err != nil {
				e.logger.Warn("close previous database", "err", err)
			}
		}
	}
}

// Close releases the current database.
func (e *Engine) Close() { e.Attach(nil) }

// CurrentSchema returns the schema of the connected database.
func (e *Engine) CurrentSchema() (domain.Schema, error) {
	db := e.database()
	if db == nil {
		return domain.Schema{}, domain.ErrSchemaNotAvailable
	}
	return db.Schema(), nil
}

// CacheStats reports query cache counters.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// History lists up to limit recent queries, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return e.history.Recent(ctx, limit)
}

func (e *Engine) database() Database {
	if h := e.db.Load(); h != nil {
		return h.db
	}
	return nil
}

// Process answers q. Failures are reported in the result, never as a Go
// error. Successful results are cached by exact query text.
//
// Concurrent identical queries share one dispatch. The shared work runs
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (e *Engine) Process(ctx context.Context, q string) domain.QueryResult {
	start := time.Now()

	if err := domain.ValidateQueryText(q); err != nil {
		e.metrics.errors.Inc()
		res := domain.ErrorResult(err)
		e.record(ctx, q, res, false, time.Since(start))
		return res
	}

	if cached, ok := e.cache.Get(q); ok {
		e.metrics.cacheHits.Inc()
		res := withMetrics(cached, time.Since(start), true)
		e.record(ctx, q, res, true, time.Since(start))
		return res
	}
	e.metrics.cacheMisses.Inc()

	gen := e.generation.Load()
	shared := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(fmt.Sprintf("%d\x00%s", gen, q), func() (any, error) {
		res := e.dispatch(shared, q)
		if !res.Failed() {
			e.cachePut(gen, q, res)
		}
		return res, nil
	})
	var res domain.QueryResult
	select {
	case r := <-ch:
		res = r.Val.(domain.QueryResult)
	case <-ctx.Done():
		res = domain.ErrorResult(fmt.Errorf("query: %w", ctx.Err()))
	}

	elapsed := time.Since(start)
	if res.Failed() {
		e.metrics.errors.Inc()
	} else {
		res = withMetrics(res, elapsed, false)
	}
	e.metrics.duration.Observe(elapsed.Seconds())
	e.record(ctx, q, res, false, elapsed)
	return res
}

// cachePut stores res unless a database was attached after gen was read.
func (e *Engine) cachePut(gen uint64, q string, res domain.QueryResult) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.generation.Load() == gen {
		e.cache.Put(q, res)
	}
}

func (e *Engine) dispatch(ctx context.Context, q string) (res domain.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query panicked", "panic", r)
			res = domain.ErrorResult(fmt.Errorf("query: internal error: %v", r))
		}
	}()

	qt := e.classifier.Classify(q)
	e.metrics.routed(qt)
	e.logger.Debug("query classified", "type", qt)

	if qt == domain.QuerySQL {
		return e.runSQL(ctx, q)
	}
	matches, err := e.retriever.Search(ctx, q)
	if err != nil {
		e.logger.Warn("document search failed", "err", err)
		return domain.ErrorResult(err)
	}
	return domain.QueryResult{Results: matches, QueryType: qt}
}

func (e *Engine) runSQL(ctx context.Context, q string) domain.QueryResult {
	db := e.database()
	if db == nil {
		return domain.ErrorResult(domain.ErrNotConnected)
	}
	stmt, err := e.generator.Generate(ctx, q, db.Schema())
	if err != nil {
		e.logger.Warn("sql generation failed", "err", err)
		return domain.ErrorResult(err)
	}
	if err := sqlgen.Validate(stmt); err != nil {
		e.logger.Warn("rejected generated sql", "sql", stmt)
		return domain.ErrorResult(err)
	}
	rows, err := db.Execute(ctx, stmt)
	if err != nil {
		e.logger.Warn("sql execution failed", "err", err)
		return domain.ErrorResult(err)
	}
	return domain.QueryResult{Results: rows, QueryType: domain.QuerySQL, GeneratedSQL: stmt}
}

func (e *Engine) record(ctx context.Context, q string, res domain.QueryResult, hit bool, elapsed time.Duration) {
	entry := history.Entry{
		ID:           uuid.NewString(),
		Query:        q,
		QueryType:    res.QueryType,
		CacheHit:     hit,
		ResponseTime: roundSeconds(elapsed),
		Error:        res.Error,
		At:           time.Now().UTC(),
	}
	if err := e.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("append query history", "err", err)
	}
}

func withMetrics(res domain.QueryResult, elapsed time.Duration, hit bool) domain.QueryResult {
	res.PerformanceMetrics = &domain.PerformanceMetrics{
		ResponseTimeSeconds: roundSeconds(elapsed),
		CacheHit:            hit,
	}
	return res
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
