package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateQueryText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"ok", "how many employees", nil},
		{"empty", "", ErrEmptyQuery},
		{"blank", "  \t\n", ErrEmptyQuery},
		{"too long", strings.Repeat("a", MaxQueryLength+1), ErrQueryTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQueryText(tc.in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateConnectionTarget(t *testing.T) {
	if err := ValidateConnectionTarget("sqlite:///tmp/x.db"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateConnectionTarget(" ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Field != "connection_string" || !errors.Is(err, ErrMissingTarget) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestFileErrorUnwrap(t *testing.T) {
	err := &FileError{Path: "a.bin", Err: ErrUnsupportedFormat}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Error("expected errors.Is to see through FileError")
	}
	if err.Error() != "a.bin: unsupported format" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestQueryResultJSON(t *testing.T) {
	data, err := json.Marshal(ErrorResult(ErrNotConnected))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"error":"database not connected"}` {
		t.Errorf("unexpected error body %s", data)
	}

	r := QueryResult{
		Results:            []Row{{"n": 3}},
		QueryType:          QuerySQL,
		PerformanceMetrics: &PerformanceMetrics{ResponseTimeSeconds: 0.12, CacheHit: true},
		GeneratedSQL:       "SELECT count(*) AS n FROM employees",
	}
	data, _ = json.Marshal(r)
	for _, key := range []string{`"query_type":"SQL"`, `"cache_hit":true`, `"response_time_seconds":0.12`, `"generated_sql"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("missing %s in %s", key, data)
		}
	}
}
