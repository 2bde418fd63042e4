package observability

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bdobrica/catalogchat/common/redact"
	"github.com/bdobrica/catalogchat/common/trace"
	"github.com/bdobrica/catalogchat/internal/catalogchat/store"
)

// Event names emitted by the core.
const (
	EventRouteDecided     = "route.decided"
	EventRouteStageFailed = "route.stage_failed"
	EventPendingProposed  = "pending.proposed"
	EventPendingConfirmed = "pending.confirmed"
	EventPendingCancelled = "pending.cancelled"
	EventPendingExpired   = "pending.expired"
	EventPendingFailed    = "pending.execute_failed"
	EventNLPRejected      = "nlp.rejected"
)

// Sink receives observability events. Emit must never influence routing;
// callers wrap sinks with Safe so neither errors nor panics reach them.
type Sink interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event string, payload map[string]any) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, event string, payload map[string]any) error {
	return f(ctx, event, payload)
}

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, string, map[string]any) error { return nil })

// LogSink writes events to slog at info level.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	clean := redact.Map(payload)
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys)+2)
	args = append(args, "event", event)
	for _, k := range keys {
		args = append(args, k, clean[k])
	}
	WithTrace(ctx).Info("event", args...)
	return nil
}

// AuditSink records events in the audit_log table.
type AuditSink struct {
	store *store.Store
}

// NewAuditSink returns a sink writing to s.
func NewAuditSink(s *store.Store) *AuditSink {
	return &AuditSink{store: s}
}

// Emit implements Sink. The "target", "result" and "error" payload keys
// fill the matching audit columns.
func (a *AuditSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	clean := redact.Map(payload)
	e := store.AuditEntry{
		TraceID:      trace.FromContext(ctx),
		Conversation: trace.ConversationFromContext(ctx),
		Event:        event,
		Payload:      clean,
		Result:       "ok",
	}
	if v, ok := clean["target"].(string); ok {
		e.Target = v
	}
	if v, ok := clean["result"].(string); ok {
		e.Result = v
	}
	if v, ok := clean["error"].(string); ok && v != "" {
		e.Result = "error"
		e.ErrorMessage = v
	}
	return a.store.WriteAudit(ctx, e)
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type safeSink struct {
	next Sink
}

// Safe wraps s so that Emit never returns an error and never panics.
// Failures are logged at warn level.
func Safe(s Sink) Sink {
	if s == nil {
		return Nop
	}
	if _, ok := s.(*safeSink); ok {
		return s
	}
	return &safeSink{next: s}
}

func (s *safeSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	defer func() {
		if r := recover(); r != nil {
			WithTrace(ctx).Warn("observability: sink panicked", "event", event, "panic", r)
		}
	}()
	if e := s.next.Emit(ctx, event, payload); e != nil {
		WithTrace(ctx).Warn("observability: sink failed", "event", event, "err", redact.Secrets(e.Error()))
	}
	return nil
}

// Recorder keeps events in memory. Tests use it to assert emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Event   string
	Payload map[string]any
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, event string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}
