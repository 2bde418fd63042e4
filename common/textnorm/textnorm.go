// Package textnorm canonicalises free-text chat input into the form every
// keyword rule matches against: lower-case, diacritics folded, whitespace
// collapsed.
//
// The raw message is never modified in place; callers keep it for display,
// audit and for extracting quoted values whose original casing matters.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the matching-friendly form of raw.
//
//	Normalize("  ¿Cuántos productos   SIN precio? ") == "¿cuantos productos sin precio?"
func Normalize(raw string) string {
	folded := Fold(raw)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Fold removes combining marks (accents, tildes, diaeresis) but keeps case
// and spacing. "Ñandú" becomes "Nandu".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens splits an already normalized string into words made of letters,
// digits, and the characters product identifiers use ('-', '_', '.', '#').
func Tokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		switch r {
		case '-', '_', '.', '#':
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsAny reports whether normalized contains any of the phrases.
// Phrases must already be normalized.
func ContainsAny(normalized string, phrases ...string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

// HasWord reports whether word appears in normalized as a whole token.
func HasWord(normalized, word string) bool {
	for _, tok := range Tokens(normalized) {
		if tok == word {
			return true
		}
	}
	return false
}

// IsOneOf reports whether the whole normalized message (ignoring trailing
// punctuation) equals one of the phrases, or starts with one followed by a
// space. It is the matcher used for short replies such as "si", "no",
// "cancelar".
func IsOneOf(normalized string, phrases ...string) bool {
	msg := strings.TrimRight(normalized, " .!?¡¿,;")
	msg = strings.TrimLeft(msg, "¡¿ ")
	for _, p := range phrases {
		if msg == p || strings.HasPrefix(msg, p+" ") || strings.HasPrefix(msg, p+",") {
			return true
		}
	}
	return false
}
