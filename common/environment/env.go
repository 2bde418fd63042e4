// Package environment reads prefixed configuration variables.
//
// Every lookup goes through an Env bound to a prefix, so "DB" on
// environment.New("CATALOGCHAT") reads CATALOGCHAT_DB. Unparseable values
// fall back to the default rather than failing; required variables return
// an error instead of exiting, keeping process control in main.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env resolves variables under a common prefix.
type Env struct {
	prefix string
}

// New returns an Env for prefix. An empty prefix reads names verbatim.
func New(prefix string) Env {
	prefix = strings.TrimSuffix(strings.ToUpper(prefix), "_")
	return Env{prefix: prefix}
}

// Name returns the fully qualified variable name for key.
func (e Env) Name(key string) string {
	if e.prefix == "" {
		return key
	}
	return e.prefix + "_" + key
}

// Lookup returns the raw value and whether it was set to a non-empty string.
func (e Env) Lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(e.Name(key)))
	return v, v != ""
}

// StringOr returns the value of key or def when unset.
func (e Env) StringOr(key, def string) string {
	if v, ok := e.Lookup(key); ok {
		return v
	}
	return def
}

// Required returns the value of key or an error naming the missing variable.
func (e Env) Required(key string) (string, error) {
	if v, ok := e.Lookup(key); ok {
		return v, nil
	}
	return "", fmt.Errorf("required environment variable %q is not set", e.Name(key))
}

// BoolOr parses key with strconv.ParseBool.
func (e Env) BoolOr(key string, def bool) bool {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntOr parses key as a decimal integer.
func (e Env) IntOr(key string, def int) int {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// FloatOr parses key as a float64.
func (e Env) FloatOr(key string, def float64) float64 {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// DurationOr parses key with time.ParseDuration ("8s", "30m").
func (e Env) DurationOr(key string, def time.Duration) time.Duration {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// StringSliceOr parses key as a comma-separated list, trimming blanks.
func (e Env) StringSliceOr(key string, def []string) []string {
	v, ok := e.Lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
