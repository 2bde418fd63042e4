// Package observability provides structured logging, the event sink used
// by the router and pending-action machine, and tracing helpers.
//
// Every log line emitted during a request carries the trace and
// conversation IDs when WithTrace is used.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/catalogchat/common/redact"
	"github.com/bdobrica/catalogchat/common/trace"
)

// Setup configures the global slog logger according to the provided level
// and format strings (e.g. level="info", format="json").
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps "debug", "warn" and "error" to their slog levels. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTrace returns a child logger that includes the trace_id and
// conversation_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := trace.FromContext(ctx); id != "" {
		logger = logger.With("trace_id", id)
	}
	if conv := trace.ConversationFromContext(ctx); conv != "" {
		logger = logger.With("conversation_id", conv)
	}
	return logger
}

// RedactSecrets replaces known-sensitive values in a log message with
// "[REDACTED]".
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.Secrets(redact.String(msg, sensitiveValues...))
}
