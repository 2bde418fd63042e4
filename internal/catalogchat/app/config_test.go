package app_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogchat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := app.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabasePath != app.DefaultDatabasePath {
		t.Errorf("database_path = %q", cfg.DatabasePath)
	}
	if cfg.Chat.PendingTTL != pending.DefaultTTL {
		t.Errorf("pending_ttl = %v", cfg.Chat.PendingTTL)
	}
	if !cfg.SerializeTurns() {
		t.Error("turns not serialized by default")
	}
	if cfg.Tracing.Enabled || cfg.Tracing.SampleRate != 1 {
		t.Errorf("tracing = %+v, want disabled with full sampling", cfg.Tracing)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
database_path: /tmp/file.db
http_addr: ":9000"
nlp:
  model: llama3
  timeout: 4s
chat:
  pending_ttl: 10m
  serialize: false
tracing:
  enabled: true
  otlp_endpoint: collector:4317
`)
	t.Setenv("CATALOGCHAT_HTTP_ADDR", ":9100")
	t.Setenv("CATALOGCHAT_NLP_API_KEY", "sk-test-123456789")
	t.Setenv("CATALOGCHAT_LOW_STOCK_THRESHOLD", "3")
	t.Setenv("CATALOGCHAT_TRACE_SAMPLE_RATE", "0.25")

	cfg, err := app.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	tests := []struct {
		name      string
		got, want any
	}{
		{"database_path", cfg.DatabasePath, "/tmp/file.db"},
		{"http_addr", cfg.HTTPAddr, ":9100"},
		{"nlp.model", cfg.NLP.Model, "llama3"},
		{"nlp.timeout", cfg.NLP.Timeout, 4 * time.Second},
		{"nlp.api_key", cfg.NLP.APIKey, "sk-test-123456789"},
		{"chat.pending_ttl", cfg.Chat.PendingTTL, 10 * time.Minute},
		{"chat.low_stock_threshold", cfg.Chat.LowStockThreshold, 3},
		{"serialize", cfg.SerializeTurns(), false},
		{"tracing.enabled", cfg.Tracing.Enabled, true},
		{"tracing.otlp_endpoint", cfg.Tracing.OTLPEndpoint, "collector:4317"},
		{"tracing.sample_rate", cfg.Tracing.SampleRate, 0.25},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadConfig_APIKeyNotReadFromFile(t *testing.T) {
	path := writeFile(t, "nlp:\n  api_key: sk-from-file-123456\n")
	cfg, err := app.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NLP.APIKey != "" {
		t.Errorf("api key read from file: %q", cfg.NLP.APIKey)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative ttl", "chat:\n  pending_ttl: -1m\n"},
		{"negative threshold", "chat:\n  low_stock_threshold: -2\n"},
		{"empty database", "database_path: \"\"\n"},
		{"tracing without endpoint", "tracing:\n  enabled: true\n"},
		{"sample rate above one", "tracing:\n  sample_rate: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.LoadConfig(writeFile(t, tt.content))
			if !errors.Is(err, app.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := app.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
