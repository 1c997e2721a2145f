// Package domain defines the core types and error taxonomy shared by the
// ingestion, retrieval and query-routing packages.
package domain

// QueryType is the routing label assigned to a query.
type QueryType string

const (
	QuerySQL      QueryType = "SQL"
	QueryDocument QueryType = "DOCUMENT"
	QueryHybrid   QueryType = "HYBRID"
)

// PerformanceMetrics is the timing block attached to every query result.
type PerformanceMetrics struct {
	ResponseTimeSeconds float64 `json:"response_time_seconds"`
	CacheHit            bool    `json:"cache_hit"`
}

// QueryResult is the unified answer returned for a natural-language query.
// On failure only Error is set.
type QueryResult struct {
	Results            any                 `json:"results,omitempty"`
	QueryType          QueryType           `json:"query_type,omitempty"`
	PerformanceMetrics *PerformanceMetrics `json:"performance_metrics,omitempty"`
	GeneratedSQL       string              `json:"generated_sql,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// Failed reports whether the result carries an error.
func (r QueryResult) Failed() bool { return r.Error != "" }

// ErrorResult builds the structured error form of a QueryResult.
func ErrorResult(err error) QueryResult {
	return QueryResult{Error: err.Error()}
}

// Row is a single relational result row keyed by column name.
type Row map[string]any
