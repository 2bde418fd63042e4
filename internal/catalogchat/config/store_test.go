package config_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/config"
	appstore "github.com/bdobrica/catalogchat/internal/catalogchat/store"
)

func newTestStore(t *testing.T) config.Store {
	t.Helper()
	s, err := appstore.New(filepath.Join(t.TempDir(), "config-test.db"))
	if err != nil {
		t.Fatalf("appstore.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return config.New(s)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), config.KeyNLPModel)
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestSetGetOverwriteDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, config.KeyNLPModel, "gpt-4o-mini"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, config.KeyNLPModel, "gpt-4o"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(ctx, config.KeyNLPModel)
	if err != nil || got != "gpt-4o" {
		t.Fatalf("Get: %q, %v", got, err)
	}

	if err := s.Delete(ctx, config.KeyNLPModel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, config.KeyNLPModel); err != nil {
		t.Fatalf("Delete must be idempotent: %v", err)
	}
	if _, err := s.Get(ctx, config.KeyNLPModel); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSet_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		key, value string
		want       error
	}{
		{"nlp.api_key", "sk-123", config.ErrUnknownKey},
		{config.KeyLowStockThreshold, "cinco", config.ErrInvalidValue},
		{config.KeyLowStockThreshold, "-1", config.ErrInvalidValue},
		{config.KeyPendingTTL, "30", config.ErrInvalidValue},
		{config.KeyNLPEndpoint, "", config.ErrInvalidValue},
		{config.KeyPendingTTL, "45m", nil},
		{config.KeyLowStockThreshold, "3", nil},
	}
	for _, tc := range cases {
		err := s.Set(ctx, tc.key, tc.value)
		if tc.want == nil && err != nil {
			t.Errorf("Set(%q, %q): unexpected error %v", tc.key, tc.value, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("Set(%q, %q): got %v, want %v", tc.key, tc.value, err, tc.want)
		}
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 stored keys, got %v", all)
	}
}

func TestTypedGetters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := config.IntOr(ctx, s, config.KeyLowStockThreshold, 5); got != 5 {
		t.Errorf("IntOr default: %d", got)
	}
	if err := s.Set(ctx, config.KeyLowStockThreshold, "2"); err != nil {
		t.Fatal(err)
	}
	if got := config.IntOr(ctx, s, config.KeyLowStockThreshold, 5); got != 2 {
		t.Errorf("IntOr stored: %d", got)
	}
	if err := s.Set(ctx, config.KeyPendingTTL, "10m"); err != nil {
		t.Fatal(err)
	}
	if got := config.DurationOr(ctx, s, config.KeyPendingTTL, time.Hour); got != 10*time.Minute {
		t.Errorf("DurationOr: %v", got)
	}
	if got := config.StringOr(ctx, nil, config.KeyNLPModel, "x"); got != "x" {
		t.Errorf("nil store must return default, got %q", got)
	}
}
