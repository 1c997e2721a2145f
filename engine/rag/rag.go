// Package rag retrieves the document passages most similar to a question.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/semantic"
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Options configures retrieval.
type Options struct {
	TopK          int
	SearchTimeout time.Duration
}

// DefaultOptions returns top-3 retrieval with a 5s search timeout.
func DefaultOptions() Options {
	return Options{TopK: 3, SearchTimeout: 5 * time.Second}
}

// Match is one retrieved passage.
type Match struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Retriever embeds questions and searches the vector index.
type Retriever struct {
	embed  QueryEmbedder
	index  semantic.Index
	opts   Options
	logger *slog.Logger
}

// New creates a Retriever. Zero option fields fall back to DefaultOptions.
func New(embed QueryEmbedder, index semantic.Index, opts Options, logger *slog.Logger) (*Retriever, error) {
	if embed == nil || index == nil {
		return nil, errors.New("rag: embedder and index are required")
	}
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, index: index, opts: opts, logger: logger}, nil
}

// Search returns at most TopK passages ordered by descending similarity.
// An empty index yields an empty slice without embedding the question.
func (r *Retriever) Search(ctx context.Context, question string) ([]Match, error) {
	if r.indexEmpty(ctx) {
		r.logger.Debug("rag: index empty, skipping search")
		return []Match{}, nil
	}

	vec, err := r.embed.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()

	results, err := r.index.Search(searchCtx, vec, r.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: semantic search: %w", err)
	}
	r.logger.Debug("rag: semantic search done", "results", len(results))

	matches := make([]Match, len(results))
	for i, res := range results {
		matches[i] = Match{Content: res.Content, Source: res.Source, Similarity: res.Score}
	}
	return matches, nil
}

// indexEmpty reports a successful zero count. A failed count is not treated
// as empty; the search that follows surfaces the index error.
func (r *Retriever) indexEmpty(ctx context.Context) bool {
	countCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()
	n, err := r.index.Count(countCtx)
	if err != nil {
		r.logger.Warn("rag: count index", "err", err)
		return false
	}
	return n == 0
}
