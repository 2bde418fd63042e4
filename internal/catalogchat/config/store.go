// Package config holds operator-tunable runtime knobs in the config table.
//
// Only the keys in Known may be written, and values are checked against
// the key's kind before they are stored. API keys never go here; they come
// from the environment at startup.
package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/store"
)

var (
	// ErrNotFound is returned by Get when the key has not been set.
	ErrNotFound = errors.New("config: key not found")
	// ErrUnknownKey is returned by Set for keys outside Known.
	ErrUnknownKey = errors.New("config: unknown key")
	// ErrInvalidValue is returned by Set when the value does not parse.
	ErrInvalidValue = errors.New("config: invalid value")
)

// Kind is the value type of a runtime key.
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindDuration Kind = "duration"
)

// Runtime keys.
const (
	KeyNLPModel          = "nlp.model"
	KeyNLPEndpoint       = "nlp.endpoint"
	KeyLowStockThreshold = "queries.low_stock_threshold"
	KeyPendingTTL        = "pending.ttl"
	KeyModelTimeout      = "nlp.timeout"
)

// Known lists every writable key and its kind.
var Known = map[string]Kind{
	KeyNLPModel:          KindString,
	KeyNLPEndpoint:       KindString,
	KeyLowStockThreshold: KindInt,
	KeyPendingTTL:        KindDuration,
	KeyModelTimeout:      KindDuration,
}

// KnownKeys returns the writable keys in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(Known))
	for k := range Known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store is the read/write interface for the runtime configuration table.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}

type sqliteStore struct {
	db *store.Store
}

// New returns a Store backed by the application database.
func New(db *store.Store) Store {
	return &sqliteStore{db: db}
}

// Validate checks value against the kind registered for key.
func Validate(key, value string) error {
	kind, ok := Known[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	switch kind {
	case KindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s wants a non-negative integer, got %q", ErrInvalidValue, key, value)
		}
	case KindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s wants a positive duration, got %q", ErrInvalidValue, key, value)
		}
	case KindString:
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
		}
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("config: get %q: %w", key, err)
	}
	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("config: set %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.DB().ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("config: delete %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("config: list: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("config: list scan: %w", err)
		}
		result[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: list rows: %w", err)
	}
	return result, nil
}

// StringOr returns the stored value or def when unset or unreadable.
func StringOr(ctx context.Context, s Store, key, def string) string {
	if s == nil {
		return def
	}
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// IntOr returns the stored integer or def.
func IntOr(ctx context.Context, s Store, key string, def int) int {
	v := StringOr(ctx, s, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DurationOr returns the stored duration or def.
func DurationOr(ctx context.Context, s Store, key string, def time.Duration) time.Duration {
	v := StringOr(ctx, s, key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
