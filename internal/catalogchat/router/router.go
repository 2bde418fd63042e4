// Package router runs the ordered flow stages for one turn. The first stage
// that returns a response wins; a stage that errors or panics is treated as
// if it had not matched.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/bdobrica/catalogchat/common/trace"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// RouteDefault labels the generic clarification used when no stage matches.
const RouteDefault = "router.default"

// DefaultQuestion is asked when no stage understood the message.
const DefaultQuestion = "No estoy seguro de qué necesitas. ¿Quieres consultar el catálogo " +
	"(por ejemplo «productos sin precio») o cambiar un producto (por ejemplo «cambia el precio del #12 a 25»)?"

// Turn is the input every stage sees. State is the snapshot read at the
// start of the request; stages that change memory write through their own
// collaborators.
type Turn struct {
	ConversationID string
	Raw            string
	Normalized     string
	Signal         *pending.Signal
	State          memory.ConversationState
	// NextHints is set by a stage that leaves a clarification open. It is
	// dropped when that stage does not win.
	NextHints *memory.Hints
}

// Handler handles a turn. (nil, nil) means no match.
type Handler func(ctx context.Context, t *Turn) (*response.RouteResponse, error)

// Stage is a named handler.
type Stage struct {
	Name   string
	Handle Handler
}

// Router tries its stages in registration order.
type Router struct {
	stages []Stage
	sink   observability.Sink
	tracer oteltrace.Tracer
	strict bool
}

// Option customises a Router.
type Option func(*Router)

// WithSink sets the event sink.
func WithSink(s observability.Sink) Option {
	return func(r *Router) { r.sink = observability.Safe(s) }
}

// WithStrict makes contract violations panic instead of being skipped.
// Tests use it to surface broken stages.
func WithStrict(strict bool) Option {
	return func(r *Router) { r.strict = strict }
}

// WithTracerProvider sends the turn and stage spans to tp instead of the
// global provider.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(r *Router) { r.tracer = observability.TracerFrom(tp) }
}

// New creates a router with no stages.
func New(opts ...Option) *Router {
	r := &Router{sink: observability.Nop, tracer: observability.Tracer()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a stage.
func (r *Router) Register(name string, h Handler) {
	r.stages = append(r.stages, Stage{Name: name, Handle: h})
}

// Stages returns the stage names in order.
func (r *Router) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// ErrStagePanic wraps a recovered stage panic.
var ErrStagePanic = errors.New("router: stage panicked")

// Route runs the stages and always returns a valid response. The returned
// response carries meta.route naming the stage that produced it.
func (r *Router) Route(ctx context.Context, t *Turn) *response.RouteResponse {
	ctx, span := r.tracer.Start(ctx, "router.route", oteltrace.WithAttributes(
		observability.AttrConversation.String(t.ConversationID),
		observability.AttrTraceID.String(trace.FromContext(ctx)),
	))
	defer span.End()
	log := observability.WithTrace(ctx)
	start := time.Now()

	for _, st := range r.stages {
		t.NextHints = nil
		resp, err := r.run(ctx, st, t)
		if err != nil {
			log.Warn("stage failed", "stage", st.Name, "err", err)
			_ = r.sink.Emit(ctx, observability.EventRouteStageFailed, map[string]any{
				"stage":  st.Name,
				"result": "error",
				"error":  err.Error(),
			})
			continue
		}
		if resp == nil {
			continue
		}
		if err := response.Validate(resp); err != nil {
			log.Error("stage broke the response contract", "stage", st.Name, "err", err)
			observability.AddSpanEvent(ctx, "contract_violation", observability.AttrStage.String(st.Name))
			_ = r.sink.Emit(ctx, observability.EventRouteStageFailed, map[string]any{
				"stage":  st.Name,
				"result": "contract_violation",
				"error":  err.Error(),
			})
			if r.strict {
				panic(fmt.Sprintf("router: stage %s: %v", st.Name, err))
			}
			continue
		}
		return r.decide(ctx, st.Name, resp, start)
	}

	t.NextHints = nil
	return r.decide(ctx, RouteDefault, Fallback(), start)
}

// run calls one stage under its own span with panic isolation.
func (r *Router) run(ctx context.Context, st Stage, t *Turn) (resp *response.RouteResponse, err error) {
	ctx, span := r.tracer.Start(ctx, "router.stage", oteltrace.WithAttributes(
		observability.AttrStage.String(st.Name),
		observability.AttrTraceID.String(trace.FromContext(ctx)),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("stage panic", "stage", st.Name, "panic", rec, "stack", string(debug.Stack()))
			resp, err = nil, fmt.Errorf("%w: %v", ErrStagePanic, rec)
		}
		if err != nil {
			observability.SetSpanStatus(ctx, err)
		} else if resp != nil {
			observability.AddSpanEvent(ctx, "matched", observability.AttrMode.String(string(resp.Mode)))
		}
	}()

	return st.Handle(ctx, t)
}

func (r *Router) decide(ctx context.Context, stage string, resp *response.RouteResponse, start time.Time) *response.RouteResponse {
	if resp.Route() == "" {
		resp.SetMeta(response.MetaRoute, stage)
	}
	if id := trace.FromContext(ctx); id != "" {
		resp.SetMeta(response.MetaTraceID, id)
	}
	oteltrace.SpanFromContext(ctx).SetAttributes(
		observability.AttrStage.String(stage),
		observability.AttrRoute.String(resp.Route()),
		observability.AttrMode.String(string(resp.Mode)),
	)
	_ = r.sink.Emit(ctx, observability.EventRouteDecided, map[string]any{
		"stage":       stage,
		"route":       resp.Route(),
		"mode":        string(resp.Mode),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return resp
}

// Fallback is the generic clarification returned when every stage declines.
func Fallback() *response.RouteResponse {
	resp, err := response.Clarify(DefaultQuestion, []string{"intent"}, []string{"consultar", "modificar"})
	if err != nil {
		// The fixed question always validates.
		panic(err)
	}
	return resp
}
