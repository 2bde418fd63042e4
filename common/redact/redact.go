// Package redact strips secrets from strings and structured payloads before
// they reach logs, audit rows or model error messages surfaced to users.
//
// Redaction is best-effort. Callers still keep credentials out of log
// call-sites; this package only catches what slips through.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// bearer and sk- style keys as they appear in HTTP error bodies.
var secretPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]{8,}|\bsk-[A-Za-z0-9_\-]{8,}`)

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Secrets replaces bearer tokens and API-key shaped substrings in s.
func Secrets(s string) string {
	return secretPattern.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(strings.ToLower(m), "bearer") {
			return "Bearer " + placeholder
		}
		return placeholder
	})
}

// Map returns a copy of m with string values replaced for every key whose
// name suggests a secret. Nested maps are redacted recursively.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case string:
			if isSensitiveKey(k) && tv != "" {
				out[k] = placeholder
				continue
			}
			out[k] = Secrets(tv)
		case map[string]any:
			out[k] = Map(tv)
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "api_key", "apikey", "credential", "authorization"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
