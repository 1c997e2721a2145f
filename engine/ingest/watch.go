package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/extract"
	"github.com/fsnotify/fsnotify"
)

// Watcher submits supported files to a Pipeline as they appear in a directory.
// Events for the same path within Debounce are coalesced into one job.
type Watcher struct {
	p        *Pipeline
	dir      string
	Debounce time.Duration
	log      *slog.Logger
}

// NewWatcher creates a Watcher for dir.
func NewWatcher(p *Pipeline, dir string, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{p: p, dir: dir, Debounce: 500 * time.Millisecond, log: log}
}

// Run watches until ctx is cancelled. Each settled file becomes its own job;
// submitted job ids are sent to jobs when it is non-nil.
func (w *Watcher) Run(ctx context.Context, jobs chan<- string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", w.dir, err)
	}
	w.log.Info("ingest: watching directory", "dir", w.dir)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = time.Millisecond
	}
	pending := make(map[string]time.Time)
	tick := time.NewTicker(max(debounce/2, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !extract.Supported(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("ingest: watcher error", "err", err)
		case now := <-tick.C:
			for path, seen := range pending {
				if now.Sub(seen) < debounce {
					continue
				}
				delete(pending, path)
				id, err := w.p.Submit(ctx, []string{path})
				if err != nil {
					w.log.Error("ingest: submit failed", "file", path, "err", err)
					continue
				}
				w.log.Info("ingest: file submitted", "file", path, "job_id", id)
				if jobs != nil {
					select {
					case jobs <- id:
					case <-ctx.Done():
						return nil
					}
				}
			}
		}
	}
}
