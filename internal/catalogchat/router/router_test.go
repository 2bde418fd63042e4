package router_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bdobrica/catalogchat/common/trace"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

func consult(msg string) router.Handler {
	return func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		return response.Consult(msg)
	}
}

func decline(calls *int) router.Handler {
	return func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		*calls++
		return nil, nil
	}
}

func TestRoute_FirstMatchWins(t *testing.T) {
	var declined int
	r := router.New()
	r.Register("a", decline(&declined))
	r.Register("b", consult("from b"))
	r.Register("c", consult("from c"))

	resp := r.Route(context.Background(), &router.Turn{Raw: "hola"})
	if resp.MessageToUser != "from b" {
		t.Errorf("message = %q, want from b", resp.MessageToUser)
	}
	if resp.Route() != "b" {
		t.Errorf("route = %q, want b", resp.Route())
	}
	if declined != 1 {
		t.Errorf("declining stage called %d times, want 1", declined)
	}
}

func TestRoute_KeepsStageRouteLabel(t *testing.T) {
	r := router.New()
	r.Register("queries", func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		return response.Consult("ok", response.WithMeta(response.MetaRoute, "queries.no_price"))
	})
	resp := r.Route(context.Background(), &router.Turn{})
	if resp.Route() != "queries.no_price" {
		t.Errorf("route = %q", resp.Route())
	}
}

func TestRoute_ErrorsAndPanicsAreNoMatch(t *testing.T) {
	rec := &observability.Recorder{}
	r := router.New(router.WithSink(rec))
	r.Register("boom", func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		panic("kaboom")
	})
	r.Register("fails", func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		return nil, errors.New("catalog down")
	})
	r.Register("ok", consult("still answered"))

	resp := r.Route(context.Background(), &router.Turn{})
	if resp.MessageToUser != "still answered" || resp.Route() != "ok" {
		t.Fatalf("got %q via %q", resp.MessageToUser, resp.Route())
	}

	names := rec.Names()
	want := []string{observability.EventRouteStageFailed, observability.EventRouteStageFailed, observability.EventRouteDecided}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if got := rec.Events()[0].Payload["stage"]; got != "boom" {
		t.Errorf("first failure stage = %v", got)
	}
}

func TestRoute_AllDeclineGivesGenericClarify(t *testing.T) {
	var calls int
	r := router.New()
	r.Register("a", decline(&calls))
	r.Register("b", decline(&calls))

	resp := r.Route(context.Background(), &router.Turn{Raw: "xyz"})
	if resp.Mode != response.ModeClarify {
		t.Fatalf("mode = %q, want clarify", resp.Mode)
	}
	if resp.Route() != router.RouteDefault {
		t.Errorf("route = %q", resp.Route())
	}
	if len(resp.Actions) != 0 {
		t.Errorf("clarify carries actions")
	}
	if err := response.Validate(resp); err != nil {
		t.Errorf("fallback invalid: %v", err)
	}
}

func TestRoute_NoStages(t *testing.T) {
	resp := router.New().Route(context.Background(), &router.Turn{})
	if resp.Route() != router.RouteDefault {
		t.Errorf("route = %q", resp.Route())
	}
}

func brokenExecute(context.Context, *router.Turn) (*response.RouteResponse, error) {
	// Execute without a confirmation block.
	return &response.RouteResponse{
		OK:            true,
		Mode:          response.ModeExecute,
		MessageToUser: "x",
		Actions: []action.Proposal{{
			Kind:         action.KindDeleteProduct,
			HumanSummary: "borrar",
			Target:       action.Target{ProductID: 1},
		}},
	}, nil
}

func TestRoute_ContractViolationIsSkipped(t *testing.T) {
	rec := &observability.Recorder{}
	r := router.New(router.WithSink(rec))
	r.Register("broken", brokenExecute)
	r.Register("next", consult("safe"))

	resp := r.Route(context.Background(), &router.Turn{})
	if resp.Route() != "next" {
		t.Fatalf("route = %q, want next", resp.Route())
	}
	ev := rec.Events()[0]
	if ev.Event != observability.EventRouteStageFailed || ev.Payload["result"] != "contract_violation" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRoute_ContractViolationPanicsInStrictMode(t *testing.T) {
	r := router.New(router.WithStrict(true))
	r.Register("broken", brokenExecute)

	defer func() {
		if recover() == nil {
			t.Error("expected panic in strict mode")
		}
	}()
	r.Route(context.Background(), &router.Turn{})
}

func TestRoute_CopiesTraceID(t *testing.T) {
	r := router.New()
	r.Register("a", consult("hi"))
	ctx := trace.WithTraceID(context.Background(), "t-123")

	resp := r.Route(ctx, &router.Turn{})
	if resp.Meta[response.MetaTraceID] != "t-123" {
		t.Errorf("trace id = %q", resp.Meta[response.MetaTraceID])
	}
}

func TestRoute_SinkFailureDoesNotChangeRouting(t *testing.T) {
	bad := observability.SinkFunc(func(context.Context, string, map[string]any) error {
		panic("sink down")
	})
	r := router.New(router.WithSink(bad))
	r.Register("a", consult("hi"))

	resp := r.Route(context.Background(), &router.Turn{})
	if resp.MessageToUser != "hi" {
		t.Errorf("message = %q", resp.MessageToUser)
	}
}

func TestStages(t *testing.T) {
	r := router.New()
	r.Register("one", consult("1"))
	r.Register("two", consult("2"))
	got := r.Stages()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("stages = %v", got)
	}
}

func TestRoute_DropsHintsOfLosingStages(t *testing.T) {
	r := router.New()
	r.Register("sets-and-fails", func(_ context.Context, turn *router.Turn) (*response.RouteResponse, error) {
		turn.NextHints = &memory.Hints{AwaitingSlot: memory.SlotField}
		return nil, errors.New("no")
	})
	r.Register("answers", consult("ok"))

	turn := &router.Turn{}
	r.Route(context.Background(), turn)
	if turn.NextHints != nil {
		t.Errorf("hints from a failed stage kept: %+v", turn.NextHints)
	}
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestRoute_RecordsTurnAndStageSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var declined int
	r := router.New(router.WithTracerProvider(tp))
	r.Register("boom", func(context.Context, *router.Turn) (*response.RouteResponse, error) {
		panic("kaboom")
	})
	r.Register("skip", decline(&declined))
	r.Register("ok", consult("answered"))
	r.Register("never", consult("unreachable"))

	ctx := trace.WithTraceID(context.Background(), "t-spans")
	r.Route(ctx, &router.Turn{ConversationID: "c9"})

	spans := sr.Ended()
	if len(spans) != 4 {
		t.Fatalf("ended spans = %d, want 3 stages and the turn", len(spans))
	}
	root := spans[3]
	if root.Name() != "router.route" {
		t.Fatalf("last span = %q, want router.route", root.Name())
	}
	if got := spanAttr(root, observability.AttrConversation); got != "c9" {
		t.Errorf("conversation = %q", got)
	}
	if got := spanAttr(root, observability.AttrRoute); got != "ok" {
		t.Errorf("route = %q", got)
	}

	wantStages := []string{"boom", "skip", "ok"}
	for i, s := range spans[:3] {
		if s.Name() != "router.stage" || spanAttr(s, observability.AttrStage) != wantStages[i] {
			t.Errorf("span %d = %s stage %q, want stage %q", i, s.Name(), spanAttr(s, observability.AttrStage), wantStages[i])
		}
		if s.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("stage %s is not a child of the turn span", wantStages[i])
		}
		if got := spanAttr(s, observability.AttrTraceID); got != "t-spans" {
			t.Errorf("stage %s trace id = %q", wantStages[i], got)
		}
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("panicking stage status = %v, want error", spans[0].Status().Code)
	}
	if evs := spans[1].Events(); len(evs) != 0 {
		t.Errorf("declining stage events = %v", evs)
	}
	if evs := spans[2].Events(); len(evs) != 1 || evs[0].Name != "matched" {
		t.Errorf("matching stage events = %v", evs)
	}
}
