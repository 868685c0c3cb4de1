package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jkaninda/signoffs/internal/config"
	"github.com/jkaninda/signoffs/internal/process"
)

const defaultServiceName = "signoffs"

// Span attribute keys for approval workflows.
const (
	AttrProcessID        = attribute.Key("signoffs.process.id")
	AttrApprovalID       = attribute.Key("signoffs.approval.id")
	AttrUserID           = attribute.Key("signoffs.user.id")
	AttrTransitionKind   = attribute.Key("signoffs.transition.kind")
	AttrTransitionResult = attribute.Key("signoffs.transition.result")
	AttrTransitionReason = attribute.Key("signoffs.transition.reason")
	AttrSignoffID        = attribute.Key("signoffs.signoff.id")
	AttrPermission       = attribute.Key("signoffs.permission")
)

// TracerSetup owns the TracerProvider used for approval spans. It is not
// registered globally; components receive it explicitly.
type TracerSetup struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerSetup exports spans over OTLP when cfg enables tracing, and
// returns nil otherwise.
func NewTracerSetup(cfg *config.TracingConfig) (*TracerSetup, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	ctx := context.Background()

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(name)))
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s trace exporter: %w", protocolOf(cfg), err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	return newTracerSetupFromProvider(tp, name), nil
}

func protocolOf(cfg *config.TracingConfig) string {
	if cfg.Protocol == "http" {
		return "http"
	}
	return "grpc"
}

func newExporter(ctx context.Context, cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	if protocolOf(cfg) == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// samplerFor samples root spans at rate and otherwise follows the parent.
// A rate outside (0, 1) samples everything.
func samplerFor(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func newTracerSetupFromProvider(tp *sdktrace.TracerProvider, name string) *TracerSetup {
	return &TracerSetup{provider: tp, tracer: tp.Tracer(name)}
}

// Tracer returns the tracer, or a no-op tracer on a nil setup.
func (t *TracerSetup) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return t.tracer
}

// Shutdown flushes pending spans.
func (t *TracerSetup) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// --- Transition spans ---

// attemptAttributes describes who is moving which approval of which process.
func attemptAttributes(at process.Attempt) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrTransitionKind.String(string(at.Kind)),
		AttrApprovalID.String(at.ApprovalID),
		AttrUserID.String(at.UserID),
	}
	if at.ProcessID != "" {
		attrs = append(attrs, AttrProcessID.String(at.ProcessID))
	}
	return attrs
}

// startTransitionSpan opens a span named process.approve or process.revoke.
func startTransitionSpan(ctx context.Context, tracer trace.Tracer, at process.Attempt) (context.Context, trace.Span) {
	return tracer.Start(ctx, "process."+string(at.Kind),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attemptAttributes(at)...),
	)
}

// endTransitionSpan records the outcome on span and ends it. Denials and
// state-machine rejections carry their reason; only errors mark the span
// failed.
func endTransitionSpan(span trace.Span, o process.Outcome) {
	span.SetAttributes(AttrTransitionResult.String(string(o.Result)))
	switch o.Result {
	case process.ResultDenied, process.ResultInvalid:
		span.SetAttributes(AttrTransitionReason.String(o.Reason.String()))
	case process.ResultError:
		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
		}
	case process.ResultApplied:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
