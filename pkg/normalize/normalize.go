// Package normalize canonicalizes entity names and identifier keys so they
// can be compared, blocked, and indexed consistently.
package normalize

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidIdentifier is returned when a string cannot be reduced to a valid
// identifier key.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, decomposes, strips combining marks (accents),
// collapses whitespace runs to a single space, and trims. It is idempotent
// and never errors; empty input yields an empty string.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	stripped, _, err := transform.String(accentStripper, s)
	if err == nil {
		s = stripped
	}

	var result strings.Builder
	result.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		result.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(result.String())
}

// Tokenize splits a name into lowercase tokens on space, underscore, hyphen,
// dot, and slash, plus camelCase boundaries. Empty input yields no tokens.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	prev := rune(0)
	for _, r := range s {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '.' || r == '/':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			// camelCase boundary
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()

	return tokens
}

// Identifier reduces a string to a bare identifier key: lowercase, spaces and
// hyphens become underscores, repeated underscores collapse, leading/trailing
// underscores are stripped. Returns ErrInvalidIdentifier when the result is
// empty, starts with a digit, or contains characters outside [a-z0-9_].
func Identifier(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")

	if s == "" {
		return "", ErrInvalidIdentifier
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "", ErrInvalidIdentifier
	}
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return "", ErrInvalidIdentifier
	}

	return s, nil
}
