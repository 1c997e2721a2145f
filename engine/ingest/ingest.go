// Package ingest runs documents through extraction, chunking, embedding and
// index storage as asynchronous, individually tracked jobs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/engine/extract"
	"github.com/WessleyAI/nlq-engine/engine/semantic"
	"github.com/WessleyAI/nlq-engine/pkg/fn"
	"github.com/WessleyAI/nlq-engine/pkg/metrics"
	"github.com/google/uuid"
)

// Extractor reads a file into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Document, error)
}

// Embedder turns chunk texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Notifier is told about every job status change.
type Notifier interface {
	Notify(ctx context.Context, job Job)
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Extractor Extractor
	Embedder  Embedder
	Index     semantic.Index
	Jobs      *JobStore
	Notifier  Notifier
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Pipeline ingests batches of files. Jobs run in background goroutines;
// Wait blocks until all of them have finished.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
	wg   sync.WaitGroup

	filesOK     func() *metrics.Counter
	filesFailed func() *metrics.Counter
	chunksTotal *metrics.Counter
	inProgress  *metrics.Gauge
}

// NewPipeline creates a Pipeline. Extractor, Embedder and Index are required.
func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Extractor == nil || deps.Embedder == nil || deps.Index == nil {
		return nil, errors.New("ingest: extractor, embedder and index are required")
	}
	if deps.Jobs == nil {
		deps.Jobs = NewJobStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	met := deps.Metrics
	return &Pipeline{
		deps: deps,
		log:  deps.Logger,
		filesOK: func() *metrics.Counter {
			return met.Counter(metrics.WithLabels("nlq_ingest_files_total", "status", "ok"), "Files ingested by outcome")
		},
		filesFailed: func() *metrics.Counter {
			return met.Counter(metrics.WithLabels("nlq_ingest_files_total", "status", "failed"), "Files ingested by outcome")
		},
		chunksTotal: met.Counter("nlq_ingest_chunks_total", "Chunks written to the vector index"),
		inProgress:  met.Gauge("nlq_jobs_in_progress", "Ingestion jobs currently running"),
	}, nil
}

// Jobs returns the job store backing the pipeline.
func (p *Pipeline) Jobs() *JobStore { return p.deps.Jobs }

// NewJobID returns a fresh job identifier.
func NewJobID() string { return uuid.NewString() }

// Submit creates a job for paths, starts it in the background and returns
// its id immediately.
func (p *Pipeline) Submit(ctx context.Context, paths []string) (string, error) {
	id := NewJobID()
	if err := p.Start(ctx, id, paths); err != nil {
		return "", err
	}
	return id, nil
}

// Start registers job id and processes paths in the background. The work is
// detached from ctx cancellation but keeps its values.
func (p *Pipeline) Start(ctx context.Context, id string, paths []string) error {
	if len(paths) == 0 {
		return domain.NewValidationError("files", "", errors.New("at least one file is required"))
	}
	paths = uniquePaths(paths)
	job, err := p.deps.Jobs.Create(id, len(paths))
	if err != nil {
		return err
	}
	p.notify(ctx, job)

	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(bg, id, paths)
	}()
	return nil
}

// Run creates job id and processes paths synchronously, returning the final job.
func (p *Pipeline) Run(ctx context.Context, id string, paths []string) (Job, error) {
	paths = uniquePaths(paths)
	job, err := p.deps.Jobs.Create(id, len(paths))
	if err != nil {
		return Job{}, err
	}
	p.notify(ctx, job)
	return p.run(ctx, id, paths), nil
}

// Wait blocks until every background job has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) run(ctx context.Context, id string, paths []string) (final Job) {
	log := p.log.With("job_id", id)
	p.inProgress.Inc()
	start := time.Now()
	defer p.inProgress.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error("ingest: job panicked", "panic", r)
			final = p.finish(ctx, id, StatusFailed(fmt.Sprintf("panic: %v", r)))
		}
	}()

	pipeline := p.filePipeline(id, log)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			log.Warn("ingest: job cancelled", "err", err)
			return p.finish(ctx, id, StatusFailed(err.Error()))
		}

		n, err := pipeline(ctx, path).Unwrap()
		if err != nil {
			if errors.Is(err, domain.ErrIndexWrite) || ctx.Err() != nil {
				log.Error("ingest: job failed", "file", path, "err", err)
				return p.finish(ctx, id, StatusFailed(err.Error()))
			}
			p.filesFailed().Inc()
			log.Warn("ingest: file skipped", "file", path, "err", err)
			reason := err
			var fe *domain.FileError
			if errors.As(err, &fe) {
				reason = fe.Err
			}
			job, _ := p.deps.Jobs.Update(id, func(j *Job) {
				j.Processed++
				j.Failures = append(j.Failures, FileFailure{File: filepath.Base(path), Error: reason.Error()})
			})
			p.notify(ctx, job)
			continue
		}

		p.filesOK().Inc()
		p.chunksTotal.Add(int64(n))
		p.deps.Jobs.Update(id, func(j *Job) {
			j.Processed++
			j.Chunks += n
		})
	}

	final = p.finish(ctx, id, StatusComplete)
	log.Info("ingest: job complete", "files", final.Files, "chunks", final.Chunks,
		"failures", len(final.Failures), "duration", time.Since(start))
	return final
}

func (p *Pipeline) finish(ctx context.Context, id string, status Status) Job {
	job, _ := p.deps.Jobs.Update(id, func(j *Job) { j.Status = status })
	p.notify(ctx, job)
	return job
}

func (p *Pipeline) notify(ctx context.Context, job Job) {
	if p.deps.Notifier != nil {
		p.deps.Notifier.Notify(ctx, job)
	}
}

// --- Pipeline Stages ---

// filePipeline composes Extract → Chunk → Embed → Store for one job, with
// logging taps between stages. The result is the number of chunks stored.
func (p *Pipeline) filePipeline(jobID string, log *slog.Logger) fn.Stage[string, int] {
	extracted := fn.Then(LoggedTap[string]("extract", log), NewExtract(p.deps.Extractor))
	chunked := fn.Then(extracted, fn.Then(LoggedTap[extract.Document]("chunk", log), ChunkDoc))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[chunkedFile]("embed", log), NewEmbed(p.deps.Embedder)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[embeddedFile]("store", log), NewStore(p.deps.Index, jobID)))
	return fn.TracedStage("ingest.file", stored)
}

// NewExtract creates a stage reading a file into a Document.
func NewExtract(ex Extractor) fn.Stage[string, extract.Document] {
	return func(ctx context.Context, path string) fn.Result[extract.Document] {
		doc, err := ex.Extract(ctx, path)
		if err != nil {
			return fn.Err[extract.Document](&domain.FileError{Path: filepath.Base(path), Err: err})
		}
		if doc.Path == "" {
			doc.Path = path
		}
		if doc.Name == "" {
			doc.Name = filepath.Base(path)
		}
		return fn.Ok(doc)
	}
}

// ChunkDoc splits a Document into passages.
var ChunkDoc fn.Stage[extract.Document, chunkedFile] = func(_ context.Context, doc extract.Document) fn.Result[chunkedFile] {
	return fn.Ok(chunkedFile{Document: doc, Chunks: ChunkText(doc.Text, doc.Kind)})
}

// NewEmbed creates a stage embedding every chunk of a document.
func NewEmbed(e Embedder) fn.Stage[chunkedFile, embeddedFile] {
	return func(ctx context.Context, doc chunkedFile) fn.Result[embeddedFile] {
		if len(doc.Chunks) == 0 {
			return fn.Ok(embeddedFile{chunkedFile: doc})
		}
		vecs, err := e.Embed(ctx, doc.Chunks)
		if err != nil {
			return fn.Err[embeddedFile](&domain.FileError{Path: doc.Name, Err: err})
		}
		if len(vecs) != len(doc.Chunks) {
			return fn.Err[embeddedFile](&domain.FileError{Path: doc.Name,
				Err: fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrEmbedding, len(vecs), len(doc.Chunks))})
		}
		return fn.Ok(embeddedFile{chunkedFile: doc, Embeddings: vecs})
	}
}

// NewStore creates a stage inserting a document's chunks into the index.
// Chunk ids are deterministic in (job, file path, chunk index), so files
// sharing a base name in one job never collide.
func NewStore(idx semantic.Index, jobID string) fn.Stage[embeddedFile, int] {
	return func(ctx context.Context, doc embeddedFile) fn.Result[int] {
		if len(doc.Chunks) == 0 {
			return fn.Ok(0)
		}
		docID := jobID + "/" + doc.Path
		records := make([]semantic.VectorRecord, len(doc.Chunks))
		for i, text := range doc.Chunks {
			records[i] = semantic.VectorRecord{
				ID:         ChunkID(jobID, doc.Path, i),
				DocID:      docID,
				Source:     doc.Name,
				Content:    text,
				ChunkIndex: i,
				Embedding:  doc.Embeddings[i],
			}
		}
		if err := idx.Insert(ctx, records...); err != nil {
			return fn.Err[int](fmt.Errorf("%w: %s: %w", domain.ErrIndexWrite, doc.Name, err))
		}
		return fn.Ok(len(records))
	}
}

// ChunkID derives the stable point id of chunk i of the file at path in job.
func ChunkID(jobID, path string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%s#%d", jobID, path, i))).String()
}

// uniquePaths drops repeated paths, keeping the first occurrence.
func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if key := filepath.Clean(p); !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// LoggedTap returns a pass-through stage that logs when a file reaches name.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return fn.Tap(func(ctx context.Context, _ T) {
		log.DebugContext(ctx, "ingest: stage", "stage", name)
	})
}
