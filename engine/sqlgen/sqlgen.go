// Package sqlgen turns questions into SQL through a generation backend and
// validates that the result is a read-only SELECT.
package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/pkg/resilience"
)

// Backend completes a prompt.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// Generator is the sole caller of the generation backend.
type Generator struct {
	backend Backend
	timeout time.Duration
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	logger  *slog.Logger
}

// Option customises a Generator.
type Option func(*Generator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker guards backend calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option { return func(g *Generator) { g.breaker = b } }

// WithLimiter throttles backend calls.
func WithLimiter(l *resilience.Limiter) Option { return func(g *Generator) { g.limiter = l } }

// WithLogger sets the generator logger.
func WithLogger(l *slog.Logger) Option { return func(g *Generator) { g.logger = l } }

// New creates a Generator.
func New(backend Backend, opts ...Option) *Generator {
	g := &Generator{backend: backend, timeout: DefaultTimeout}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate asks the backend for SQL answering question and returns it with
// code fences removed. The output is not validated; call Validate.
func (g *Generator) Generate(ctx context.Context, question string, schema domain.Schema) (string, error) {
	prompt := BuildPrompt(question, schema)

	var raw string
	err := g.limiter.Wait(ctx)
	if err == nil {
		err = g.breaker.Call(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			var err error
			raw, err = g.backend.Generate(callCtx, prompt)
			return err
		})
	}
	if err != nil {
		g.logger.Warn("sqlgen: generation failed", "err", err)
		return "", fmt.Errorf("sqlgen: %w: %w", domain.ErrGeneration, err)
	}

	sql := StripFences(raw)
	if sql == "" {
		return "", fmt.Errorf("sqlgen: %w: empty output", domain.ErrGeneration)
	}
	g.logger.Debug("sqlgen: generated", "sql", sql)
	return sql, nil
}

var fence = regexp.MustCompile("(?i)```(?:sql)?")

// StripFences removes markdown code fences (``` and ```sql) and trims whitespace.
func StripFences(s string) string {
	return strings.TrimSpace(fence.ReplaceAllString(s, ""))
}

// ErrNotSelect is the cause attached to ErrUnsafeQuery by Validate.
var ErrNotSelect = errors.New("LLM generated an invalid query. Only SELECT statements are allowed")

// Validate accepts sql only when its trimmed, lower-cased text starts with
// "select". It never rewrites the statement.
func Validate(sql string) error {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "select") {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrUnsafeQuery, ErrNotSelect)
}
