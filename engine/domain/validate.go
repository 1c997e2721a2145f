package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxQueryLength bounds the size of a natural-language query in runes.
const MaxQueryLength = 2000

// ValidateQueryText checks a raw user query before it is routed.
func ValidateQueryText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyQuery
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxQueryLength {
		return NewValidationError("query", string([]rune(trimmed)[:64])+"...", ErrQueryTooLong)
	}
	return nil
}

// ValidateConnectionTarget checks that a connection string is present.
func ValidateConnectionTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return NewValidationError("connection_string", target, ErrMissingTarget)
	}
	return nil
}
