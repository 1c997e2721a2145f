// Package embed adapts an embedding backend into batched, order-preserving
// vector generation for chunks and queries.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/pkg/fn"
	"github.com/WessleyAI/nlq-engine/pkg/resilience"
)

// Backend produces one vector per input text.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures the Adapter.
type Options struct {
	BatchSize int
	Timeout   time.Duration
	Retry     fn.RetryOpts
}

// DefaultOptions returns a batch size of 32, a 30s per-batch timeout and no retries.
func DefaultOptions() Options {
	return Options{
		BatchSize: 32,
		Timeout:   30 * time.Second,
		Retry: fn.RetryOpts{
			MaxAttempts: 1,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
			Retryable:   retryable,
		},
	}
}

// Adapter is the sole caller of the embedding backend.
type Adapter struct {
	backend Backend
	opts    Options
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	logger  *slog.Logger
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithBreaker guards backend calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option { return func(a *Adapter) { a.breaker = b } }

// WithLimiter throttles backend calls.
func WithLimiter(l *resilience.Limiter) Option { return func(a *Adapter) { a.limiter = l } }

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New creates an Adapter. Zero option fields fall back to DefaultOptions.
func New(backend Backend, opts Options, options ...Option) *Adapter {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = retryable
	}
	a := &Adapter{backend: backend, opts: opts}
	for _, o := range options {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Embed returns one vector per text, in input order. Any failure wraps
// domain.ErrEmbedding.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	dims := 0
	for i, batch := range fn.Chunk(texts, a.opts.BatchSize) {
		vecs, err := a.embedBatch(ctx, batch)
		if err != nil {
			a.logger.Warn("embed: batch failed", "batch", i, "size", len(batch), "err", err)
			return nil, fmt.Errorf("embed: batch %d: %w", i, err)
		}
		for j, v := range vecs {
			if dims == 0 {
				dims = len(v)
			}
			if len(v) == 0 || len(v) != dims {
				return nil, fmt.Errorf("embed: batch %d item %d: %w: got %d dimensions, want %d",
					i, j, domain.ErrEmbedding, len(v), dims)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// retryable skips retries once the breaker is open or the caller cancelled.
func retryable(err error) bool {
	return !errors.Is(err, resilience.ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled)
}

// EmbedOne embeds a single text, typically a user query.
func (a *Adapter) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (a *Adapter) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	res := fn.Retry(ctx, a.opts.Retry, func(ctx context.Context) fn.Result[[][]float32] {
		if err := a.limiter.Wait(ctx); err != nil {
			return fn.Err[[][]float32](err)
		}
		return resilience.CallResult(a.breaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
			callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
			defer cancel()
			vecs, err := a.backend.Embed(callCtx, batch)
			if err != nil {
				return fn.Err[[][]float32](err)
			}
			if len(vecs) != len(batch) {
				return fn.Errf[[][]float32]("backend returned %d vectors for %d texts", len(vecs), len(batch))
			}
			return fn.Ok(vecs)
		})
	})
	vecs, err := res.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	return vecs, nil
}
