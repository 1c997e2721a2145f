package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memEntry struct {
	rec  VectorRecord
	unit []float32 // nil for zero vectors
}

// MemoryIndex is an in-process Index doing a brute-force cosine scan.
// Entries are fully built before they are stored, so readers never observe
// a partial record. Inserting an existing id replaces that record in place,
// matching Qdrant upserts.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []memEntry
	byID    map[string]int
	dims    int
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Insert upserts records by id. The first inserted vector fixes the
// dimensionality.
func (m *MemoryIndex) Insert(_ context.Context, records ...VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	built := make([]memEntry, len(records))
	dims := len(records[0].Embedding)
	for i, r := range records {
		if len(r.Embedding) == 0 || len(r.Embedding) != dims {
			return fmt.Errorf("%w: record %q has %d dimensions", ErrDimensionMismatch, r.ID, len(r.Embedding))
		}
		emb := make([]float32, len(r.Embedding))
		copy(emb, r.Embedding)
		r.Embedding = emb
		built[i] = memEntry{rec: r, unit: normalize(emb)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims == 0 {
		m.dims = dims
	} else if dims != m.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, dims, m.dims)
	}
	if m.byID == nil {
		m.byID = make(map[string]int)
	}
	for _, e := range built {
		if i, ok := m.byID[e.rec.ID]; ok && e.rec.ID != "" {
			m.entries[i] = e
			continue
		}
		if e.rec.ID != "" {
			m.byID[e.rec.ID] = len(m.entries)
		}
		m.entries = append(m.entries, e)
	}
	return nil
}

// Search returns up to k records ordered by descending cosine similarity.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	q := normalize(vector)

	m.mu.RLock()
	if len(m.entries) == 0 {
		m.mu.RUnlock()
		return []SearchResult{}, nil
	}
	if len(vector) != m.dims {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), m.dims)
	}
	results := make([]SearchResult, len(m.entries))
	for i, e := range m.entries {
		results[i] = SearchResult{
			ID:         e.rec.ID,
			Score:      dot(q, e.unit),
			Content:    e.rec.Content,
			DocID:      e.rec.DocID,
			Source:     e.rec.Source,
			ChunkIndex: e.rec.ChunkIndex,
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored records.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// normalize returns v scaled to unit length, or nil when v has zero norm.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// dot is the cosine of two unit vectors; a nil operand scores 0.
func dot(a, b []float32) float64 {
	if a == nil || b == nil {
		return 0
	}
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
