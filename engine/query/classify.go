package query

import (
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

var (
	// DefaultDocumentTerms mark a query as needing document retrieval.
	DefaultDocumentTerms = []string{"review", "skills", "resume", "performance", "project"}
	// DefaultSQLTerms mark a query as needing relational data.
	DefaultSQLTerms = []string{"how many", "average", "list", "top 5", "department"}
)

// Classifier routes queries by case-insensitive substring matching.
// Both kinds of term present means HYBRID, document terms alone mean
// DOCUMENT, and everything else is SQL.
type Classifier struct {
	doc []string
	sql []string
}

// NewClassifier builds a Classifier. Empty lists fall back to the defaults.
func NewClassifier(docTerms, sqlTerms []string) *Classifier {
	if len(docTerms) == 0 {
		docTerms = DefaultDocumentTerms
	}
	if len(sqlTerms) == 0 {
		sqlTerms = DefaultSQLTerms
	}
	return &Classifier{doc: lowerAll(docTerms), sql: lowerAll(sqlTerms)}
}

// Classify labels q. It is deterministic and never fails.
func (c *Classifier) Classify(q string) domain.QueryType {
	q = strings.ToLower(q)
	doc, sql := containsAny(q, c.doc), containsAny(q, c.sql)
	switch {
	case doc && sql:
		return domain.QueryHybrid
	case doc:
		return domain.QueryDocument
	default:
		return domain.QuerySQL
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowerAll(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return out
}
