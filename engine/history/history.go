// Package history records processed queries for the query log endpoint.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

// Entry is one processed query.
type Entry struct {
	ID           string           `json:"id"`
	Query        string           `json:"query"`
	QueryType    domain.QueryType `json:"query_type,omitempty"`
	CacheHit     bool             `json:"cache_hit"`
	ResponseTime float64          `json:"response_time_seconds"`
	Error        string           `json:"error,omitempty"`
	At           time.Time        `json:"at"`
}

// Store persists entries and lists the most recent ones, newest first.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryStore keeps the last Capacity entries in a ring buffer.
type MemoryStore struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a ring of the given capacity (minimum 1).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{buf: make([]Entry, capacity)}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = e
	m.next = (m.next + 1) % len(m.buf)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.next
	if m.full {
		n = len(m.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, m.buf[(m.next-i+len(m.buf))%len(m.buf)])
	}
	return out, nil
}
