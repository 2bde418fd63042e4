package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes set by the router and the model gate.
var (
	AttrTraceID      = attribute.Key("catalogchat.trace_id")
	AttrConversation = attribute.Key("catalogchat.conversation_id")
	AttrStage        = attribute.Key("catalogchat.stage")
	AttrRoute        = attribute.Key("catalogchat.route")
	AttrMode         = attribute.Key("catalogchat.mode")
	AttrPendingID    = attribute.Key("catalogchat.pending_id")
	AttrModel        = attribute.Key("catalogchat.nlp.model")
)

const instrumentation = "github.com/bdobrica/catalogchat"

// ErrTracingConfig is returned for an unusable tracing configuration.
var ErrTracingConfig = errors.New("observability: invalid tracing config")

// TracingConfig selects whether spans are exported and where to.
type TracingConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ServiceName  string        `yaml:"service_name"`
	Version      string        `yaml:"-"`
	OTLPEndpoint string        `yaml:"otlp_endpoint"` // host:port of an OTLP gRPC collector
	Insecure     bool          `yaml:"insecure"`
	SampleRate   float64       `yaml:"sample_rate"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// DefaultTracingConfig returns tracing switched off with sampling of every
// span once it is switched on.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:  "catalogchat",
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// Validate reports configuration errors.
func (c TracingConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample_rate %v outside [0,1]", ErrTracingConfig, c.SampleRate)
	}
	if c.Enabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("%w: otlp_endpoint is required when tracing is enabled", ErrTracingConfig)
	}
	return nil
}

// Sampler maps a sample rate to a parent-based sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// NewTracerProvider builds an SDK provider that batches spans to exporter.
func NewTracerProvider(cfg TracingConfig, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: tracing resource: %w", err)
	}
	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithSampler(Sampler(cfg.SampleRate)),
	), nil
}

// SetupTracing installs the global tracer provider and propagators. With
// tracing disabled it installs nothing and the spans stay no-ops. The
// returned shutdown flushes pending spans.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	if err := cfg.Validate(); err != nil {
		return nop, err
	}
	if !cfg.Enabled {
		return nop, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nop, fmt.Errorf("observability: trace exporter: %w", err)
	}
	tp, err := NewTracerProvider(cfg, exporter)
	if err != nil {
		return nop, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate, "insecure", cfg.Insecure)
	return tp.Shutdown, nil
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// TracerFrom returns the package tracer from tp.
func TracerFrom(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(instrumentation)
}

// StartSpan starts a child span of ctx on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
