package sqlgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

const promptTemplate = `You are an expert Text-to-SQL model. Your task is to generate a single, executable SQL query for a %s database.
You must only output the SQL query and nothing else. Do not include any explanations or markdown formatting.

Database Schema:
%s
%s
User Question: "%s"

SQL Query:`

// BuildPrompt renders the generation prompt for question over schema.
// Column hints from MapTerms are listed when the question uses a known synonym.
func BuildPrompt(question string, schema domain.Schema) string {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		schemaJSON = []byte("{}")
	}

	var hints strings.Builder
	if mapped := MapTerms(question, schema); len(mapped) > 0 {
		hints.WriteString("\nColumn hints:\n")
		for _, m := range mapped {
			fmt.Fprintf(&hints, "- %q refers to %s\n", m.Term, m.Column)
		}
	}
	return fmt.Sprintf(promptTemplate, dialectName(schema.Dialect), schemaJSON, hints.String(), question)
}

// dialectName names the target database in the prompt. Unknown dialects
// default to PostgreSQL.
func dialectName(d string) string {
	if d == "sqlite" {
		return "SQLite"
	}
	return "PostgreSQL"
}
