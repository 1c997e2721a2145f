package query

import (
	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/pkg/metrics"
)

type engineMetrics struct {
	reg         *metrics.Registry
	errors      *metrics.Counter
	cacheHits   *metrics.Counter
	cacheMisses *metrics.Counter
	duration    *metrics.Histogram
}

func newEngineMetrics(reg *metrics.Registry) *engineMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	return &engineMetrics{
		reg:         reg,
		errors:      reg.Counter("nlq_query_errors_total", "Queries answered with an error"),
		cacheHits:   reg.Counter("nlq_cache_hits_total", "Query cache hits"),
		cacheMisses: reg.Counter("nlq_cache_misses_total", "Query cache misses"),
		duration:    reg.Histogram("nlq_query_duration_seconds", "End-to-end query latency", nil),
	}
}

func (m *engineMetrics) routed(t domain.QueryType) {
	m.reg.Counter(metrics.WithLabels("nlq_queries_total", "type", string(t)), "Queries by routing label").Inc()
}
