package sqlgen

import (
	"sort"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

// Synonyms groups natural-language terms that name the same kind of column.
var Synonyms = [][]string{
	{"salary", "pay", "compensation", "wage"},
	{"department", "dept", "division"},
	{"hire date", "start date", "joined", "hired"},
}

// TermMapping links a term in the question to a qualified column.
type TermMapping struct {
	Term   string
	Column string // table.column
}

// MapTerms finds synonyms mentioned in question and maps each to the columns
// whose names contain any synonym of the same group.
func MapTerms(question string, schema domain.Schema) []TermMapping {
	q := strings.ToLower(question)
	var out []TermMapping
	seen := make(map[TermMapping]bool)
	for _, group := range Synonyms {
		term := ""
		for _, s := range group {
			if strings.Contains(q, s) {
				term = s
				break
			}
		}
		if term == "" {
			continue
		}
		for _, t := range schema.Tables {
			for _, c := range t.Columns {
				name := strings.ToLower(c.Name)
				for _, s := range group {
					if strings.Contains(name, strings.ReplaceAll(s, " ", "_")) {
						m := TermMapping{Term: term, Column: t.Name + "." + c.Name}
						if !seen[m] {
							seen[m] = true
							out = append(out, m)
						}
						break
					}
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}
