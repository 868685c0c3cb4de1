package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/signoffs/internal/process"
)

// --- Instrument ---

// Instrument records metrics, spans and anomaly samples for process
// transitions. It is a process.Observer; any component may be nil.
type Instrument struct {
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

var _ process.Observer = (*Instrument)(nil)

// NewInstrument builds an Instrument from whichever components are enabled.
func NewInstrument(metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *Instrument {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &Instrument{
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

// BeginTransition opens a process.approve or process.revoke span and
// returns the callback that closes it with the outcome.
func (i *Instrument) BeginTransition(ctx context.Context, at process.Attempt) (context.Context, func(process.Outcome)) {
	var span trace.Span
	if i.tracer != nil {
		ctx, span = startTransitionSpan(ctx, i.tracer, at)
	}
	if i.metrics != nil {
		i.metrics.ActiveTransitions.Inc()
	}

	return ctx, func(o process.Outcome) {
		if span != nil {
			endTransitionSpan(span, o)
		}

		if i.metrics != nil {
			i.metrics.ActiveTransitions.Dec()
			i.metrics.TransitionsTotal.WithLabelValues(string(o.Kind), string(o.Result)).Inc()
			i.metrics.TransitionDuration.WithLabelValues(string(o.Kind)).Observe(o.Duration.Seconds())
		}

		// Denials are user errors, not system failures.
		if i.anomaly != nil {
			op := "transition_" + string(o.Kind)
			if o.Result == process.ResultError {
				i.anomaly.RecordError(op)
			} else {
				i.anomaly.RecordSuccess(op)
			}
		}
	}
}

// RecordSignoff counts a signature attempt for signoffID.
func (i *Instrument) RecordSignoff(ctx context.Context, signoffID string, err error) {
	if i.tracer != nil {
		trace.SpanFromContext(ctx).AddEvent("signoff",
			trace.WithAttributes(AttrSignoffID.String(signoffID), attribute.Bool("signoffs.signoff.ok", err == nil)))
	}
	if i.metrics == nil {
		return
	}
	result := "signed"
	if err != nil {
		result = "rejected"
	}
	i.metrics.SignoffsTotal.WithLabelValues(signoffID, result).Inc()
}

// --- InstrumentedPermissions ---

// PermissionChecker is the permission surface shared by security.RBAC,
// security.StoreRBAC and security.Manager.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, perm string) error
	HasPerm(ctx context.Context, userID, perm string) bool
}

// InstrumentedPermissions wraps a PermissionChecker with metrics and tracing.
type InstrumentedPermissions struct {
	inner   PermissionChecker
	metrics *MetricsCollector
	tracer  trace.Tracer
}

var _ PermissionChecker = (*InstrumentedPermissions)(nil)

// NewInstrumentedPermissions wraps a permission checker with observability.
func NewInstrumentedPermissions(inner PermissionChecker, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedPermissions {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedPermissions{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (p *InstrumentedPermissions) CheckPermission(ctx context.Context, userID, perm string) error {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "security.check_permission",
			trace.WithAttributes(
				AttrUserID.String(userID),
				AttrPermission.String(perm),
			))
		defer span.End()
	}

	err := p.inner.CheckPermission(ctx, userID, perm)
	p.record(err == nil)
	return err
}

func (p *InstrumentedPermissions) HasPerm(ctx context.Context, userID, perm string) bool {
	ok := p.inner.HasPerm(ctx, userID, perm)
	p.record(ok)
	return ok
}

func (p *InstrumentedPermissions) record(allowed bool) {
	if p.metrics == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	p.metrics.SecurityChecksTotal.WithLabelValues(result).Inc()
}
