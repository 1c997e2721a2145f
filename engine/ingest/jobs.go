package ingest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

// ErrJobExists is returned when creating a job whose id is already taken.
var ErrJobExists = errors.New("ingest: job already exists")

// JobStore tracks ingestion jobs. It is safe for concurrent use.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job), now: time.Now}
}

// Create registers a new In Progress job.
func (s *JobStore) Create(id string, files int) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	now := s.now()
	j := &Job{ID: id, Status: StatusInProgress, Files: files, Failures: []FileFailure{}, CreatedAt: now, UpdatedAt: now}
	s.jobs[id] = j
	return j.clone(), nil
}

// Get returns a snapshot of the job or domain.ErrJobNotFound.
func (s *JobStore) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return j.clone(), nil
}

// Update applies f to the stored job under the lock and returns the result.
func (s *JobStore) Update(id string, f func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	f(j)
	j.UpdatedAt = s.now()
	return j.clone(), nil
}

// List returns all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

func (j *Job) clone() Job {
	c := *j
	c.Failures = append([]FileFailure{}, j.Failures...)
	return c
}
