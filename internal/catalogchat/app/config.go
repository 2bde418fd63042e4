package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/catalogchat/common/environment"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/nlp"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CATALOGCHAT"

// DefaultDatabasePath is used when neither the file nor the environment set
// one.
const DefaultDatabasePath = "./catalogchat.db"

// Config holds the bootstrap configuration. Runtime knobs that may change
// without a restart live in the config store instead.
type Config struct {
	// DatabasePath is the SQLite file holding the catalog, conversation
	// state, runtime config and audit log.
	DatabasePath string `yaml:"database_path"`
	// HTTPAddr is the TCP address of the health/debug server. Empty
	// disables it.
	HTTPAddr string `yaml:"http_addr"`

	Log   LogConfig   `yaml:"log"`
	NLP   NLPConfig   `yaml:"nlp"`
	Chat  ChatConfig  `yaml:"chat"`
	Debug DebugConfig `yaml:"debug"`
	// Tracing exports router and model spans over OTLP when enabled.
	Tracing observability.TracingConfig `yaml:"tracing"`

	// Provider replaces the OpenAI adapter, mainly for tests. When nil and
	// NLP.APIKey is empty the model stages stay off.
	Provider nlp.Provider `yaml:"-"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NLPConfig configures the model service. APIKey is read from the
// environment only.
type NLPConfig struct {
	APIKey      string        `yaml:"-"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   int           `yaml:"rate_limit"`
	TokenBudget int           `yaml:"token_budget"`
}

// ChatConfig holds the conversation defaults.
type ChatConfig struct {
	PendingTTL        time.Duration `yaml:"pending_ttl"`
	LowStockThreshold int           `yaml:"low_stock_threshold"`
	// Serialize holds a per-conversation lock for the whole turn.
	Serialize *bool `yaml:"serialize"`
	// Strict panics on response contract violations instead of skipping
	// the offending stage.
	Strict bool `yaml:"strict"`
}

// DebugConfig gates the diagnostic endpoints.
type DebugConfig struct {
	// Context mounts /debug/context on the HTTP server.
	Context bool `yaml:"context"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DatabasePath: DefaultDatabasePath,
		Log:          LogConfig{Level: "info", Format: "text"},
		NLP: NLPConfig{
			Timeout:     nlp.DefaultTimeout,
			RateLimit:   nlp.DefaultRateLimit,
			TokenBudget: nlp.DefaultTokenBudget,
		},
		Chat: ChatConfig{
			PendingTTL:        pending.DefaultTTL,
			LowStockThreshold: catalog.DefaultLowStockThreshold,
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// SerializeTurns reports whether turns of one conversation are serialized.
func (c Config) SerializeTurns() bool {
	return c.Chat.Serialize == nil || *c.Chat.Serialize
}

// LoadConfig reads path (optional; a missing file is not an error when
// path is empty) and applies CATALOGCHAT_* overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("app: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("app: parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(environment.New(EnvPrefix))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env environment.Env) {
	c.DatabasePath = env.StringOr("DB", c.DatabasePath)
	c.HTTPAddr = env.StringOr("HTTP_ADDR", c.HTTPAddr)
	c.Log.Level = env.StringOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.StringOr("LOG_FORMAT", c.Log.Format)
	c.NLP.APIKey = env.StringOr("NLP_API_KEY", c.NLP.APIKey)
	c.NLP.Endpoint = env.StringOr("NLP_ENDPOINT", c.NLP.Endpoint)
	c.NLP.Model = env.StringOr("NLP_MODEL", c.NLP.Model)
	c.NLP.Timeout = env.DurationOr("MODEL_TIMEOUT", c.NLP.Timeout)
	c.NLP.RateLimit = env.IntOr("NLP_RATE_LIMIT", c.NLP.RateLimit)
	c.NLP.TokenBudget = env.IntOr("NLP_TOKEN_BUDGET", c.NLP.TokenBudget)
	c.Chat.PendingTTL = env.DurationOr("PENDING_TTL", c.Chat.PendingTTL)
	c.Chat.LowStockThreshold = env.IntOr("LOW_STOCK_THRESHOLD", c.Chat.LowStockThreshold)
	if _, ok := env.Lookup("SERIALIZE"); ok {
		v := env.BoolOr("SERIALIZE", true)
		c.Chat.Serialize = &v
	}
	c.Debug.Context = env.BoolOr("DEBUG_CONTEXT", c.Debug.Context)
	c.Tracing.Enabled = env.BoolOr("TRACING", c.Tracing.Enabled)
	c.Tracing.OTLPEndpoint = env.StringOr("OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	c.Tracing.Insecure = env.BoolOr("OTLP_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRate = env.FloatOr("TRACE_SAMPLE_RATE", c.Tracing.SampleRate)
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("app: invalid config")

// Validate rejects values the app cannot run with.
func (c Config) Validate() error {
	switch {
	case c.DatabasePath == "":
		return fmt.Errorf("%w: database_path is required", ErrInvalidConfig)
	case c.NLP.Timeout < 0:
		return fmt.Errorf("%w: nlp.timeout must not be negative", ErrInvalidConfig)
	case c.Chat.PendingTTL <= 0:
		return fmt.Errorf("%w: chat.pending_ttl must be positive", ErrInvalidConfig)
	case c.Chat.LowStockThreshold < 0:
		return fmt.Errorf("%w: chat.low_stock_threshold must not be negative", ErrInvalidConfig)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("%w: tracing: %w", ErrInvalidConfig, err)
	}
	return nil
}
