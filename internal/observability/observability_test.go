package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jkaninda/signoffs/internal/config"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/security"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Anomaly != nil {
		t.Error("anomaly should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerOrNil_Nil(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
}

func TestInstrument_NilObservability(t *testing.T) {
	var obs *Observability
	inst := obs.Instrument()
	ctx, done := inst.BeginTransition(context.Background(), process.Attempt{Kind: process.KindApprove})
	done(process.Outcome{Attempt: process.Attempt{Kind: process.KindApprove}, Result: process.ResultError, Err: errors.New("boom")})
	inst.RecordSignoff(ctx, "manager", nil)
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	// Vec metrics only appear in Gather after first use.
	m.TransitionsTotal.WithLabelValues("approve", "applied").Inc()
	m.SignoffsTotal.WithLabelValues("manager", "signed").Inc()
	m.SecurityChecksTotal.WithLabelValues("allowed").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"signoffs_transitions_total",
		"signoffs_signoffs_total",
		"signoffs_security_checks_total",
		"signoffs_active_transitions",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

// --- Instrument ---

func TestInstrument_RecordsOutcomes(t *testing.T) {
	metrics := NewMetricsCollector()
	inst := NewInstrument(metrics, nil, nil)
	ctx := context.Background()

	outcomes := []process.Outcome{
		{Attempt: process.Attempt{Kind: process.KindApprove}, Result: process.ResultApplied, Duration: time.Millisecond},
		{Attempt: process.Attempt{Kind: process.KindApprove}, Result: process.ResultApplied},
		{Attempt: process.Attempt{Kind: process.KindApprove}, Result: process.ResultDenied, Reason: process.ReasonPermission},
		{Attempt: process.Attempt{Kind: process.KindRevoke}, Result: process.ResultError, Err: errors.New("db down")},
	}
	for _, o := range outcomes {
		_, done := inst.BeginTransition(ctx, o.Attempt)
		done(o)
	}

	if got := counterValue(t, metrics.Registry, "signoffs_transitions_total", prometheus.Labels{"kind": "approve", "result": "applied"}); got != 2 {
		t.Errorf("approve/applied = %v, want 2", got)
	}
	if got := counterValue(t, metrics.Registry, "signoffs_transitions_total", prometheus.Labels{"kind": "approve", "result": "denied"}); got != 1 {
		t.Errorf("approve/denied = %v, want 1", got)
	}
	if got := counterValue(t, metrics.Registry, "signoffs_transitions_total", prometheus.Labels{"kind": "revoke", "result": "error"}); got != 1 {
		t.Errorf("revoke/error = %v, want 1", got)
	}
	if got := gaugeValue(t, metrics.Registry, "signoffs_active_transitions"); got != 0 {
		t.Errorf("active transitions = %v, want 0", got)
	}
}

func TestInstrument_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	inst := NewInstrument(nil, newTracerSetupFromProvider(tp, "signoffs-test"), nil)
	ctx := context.Background()

	at := process.Attempt{Kind: process.KindApprove, ProcessID: "permit-1", ApprovalID: "apply", UserID: "alice"}
	_, done := inst.BeginTransition(ctx, at)
	done(process.Outcome{Attempt: at, Result: process.ResultApplied})

	rv := process.Attempt{Kind: process.KindRevoke, ProcessID: "permit-1", ApprovalID: "apply", UserID: "alice"}
	_, done = inst.BeginTransition(ctx, rv)
	done(process.Outcome{Attempt: rv, Result: process.ResultError, Err: errors.New("conflict")})

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "process.approve" || spans[1].Name() != "process.revoke" {
		t.Errorf("span names = %q, %q", spans[0].Name(), spans[1].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("revoke span status = %v, want error", spans[1].Status().Code)
	}
	var sawApproval bool
	for _, kv := range spans[0].Attributes() {
		if kv.Key == AttrApprovalID && kv.Value.AsString() == "apply" {
			sawApproval = true
		}
	}
	if !sawApproval {
		t.Error("approve span is missing approval.id")
	}
}

func TestInstrument_RecordSignoff(t *testing.T) {
	metrics := NewMetricsCollector()
	inst := NewInstrument(metrics, nil, nil)
	inst.RecordSignoff(context.Background(), "electrical", nil)
	inst.RecordSignoff(context.Background(), "electrical", errors.New("not next"))

	if got := counterValue(t, metrics.Registry, "signoffs_signoffs_total", prometheus.Labels{"signoff": "electrical", "result": "signed"}); got != 1 {
		t.Errorf("signed = %v, want 1", got)
	}
	if got := counterValue(t, metrics.Registry, "signoffs_signoffs_total", prometheus.Labels{"signoff": "electrical", "result": "rejected"}); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestInstrument_FeedsAnomalyDetector(t *testing.T) {
	a := NewAnomalyDetector(&config.AnomalyConfig{Enabled: true, ErrorRateThreshold: 0.5}, nil)
	inst := NewInstrument(nil, nil, a)
	ctx := context.Background()

	for _, r := range []process.Result{process.ResultDenied, process.ResultError, process.ResultError, process.ResultError, process.ResultApplied} {
		at := process.Attempt{Kind: process.KindApprove}
		_, done := inst.BeginTransition(ctx, at)
		done(process.Outcome{Attempt: at, Result: r, Err: errors.New("x")})
	}

	rate, samples := a.ErrorRate("transition_approve")
	if samples != 5 || rate != 0.6 {
		t.Errorf("ErrorRate = %v over %d, want 0.6 over 5", rate, samples)
	}
}

// --- InstrumentedPermissions ---

type stubChecker struct{ allow bool }

func (s stubChecker) CheckPermission(ctx context.Context, userID, perm string) error {
	if !s.allow {
		return errors.New("denied")
	}
	return nil
}

func (s stubChecker) HasPerm(ctx context.Context, userID, perm string) bool { return s.allow }

func TestInstrumentedPermissions(t *testing.T) {
	metrics := NewMetricsCollector()
	allow := NewInstrumentedPermissions(stubChecker{allow: true}, metrics, nil)
	deny := NewInstrumentedPermissions(stubChecker{allow: false}, metrics, nil)
	ctx := context.Background()

	if err := allow.CheckPermission(ctx, "alice", "sign_apply"); err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if !allow.HasPerm(ctx, "alice", "sign_apply") {
		t.Error("HasPerm should pass through")
	}
	if deny.HasPerm(ctx, "mallory", "sign_apply") {
		t.Error("HasPerm should deny")
	}

	if got := counterValue(t, metrics.Registry, "signoffs_security_checks_total", prometheus.Labels{"result": "allowed"}); got != 2 {
		t.Errorf("allowed = %v, want 2", got)
	}
	if got := counterValue(t, metrics.Registry, "signoffs_security_checks_total", prometheus.Labels{"result": "denied"}); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
}

func TestInstrumentedPermissions_NilMetrics(t *testing.T) {
	p := NewInstrumentedPermissions(stubChecker{allow: true}, nil, nil)
	if err := p.CheckPermission(context.Background(), "alice", "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- HealthChecker ---

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckReady(context.Background())
	if !status.Ready() {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_AllPass(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddPinger("storage", pinger{})
	h.AddCheck("audit", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
	if status.Checks["storage"].Status != "ok" {
		t.Errorf("storage check = %q, want ok", status.Checks["storage"].Status)
	}
}

func TestHealthChecker_OneFails(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddPinger("storage", pinger{err: errors.New("connection refused")})
	h.AddCheck("audit", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Ready() {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Checks["storage"].Message != "connection refused" {
		t.Errorf("storage check = %+v", status.Checks["storage"])
	}
	if status.Checks["audit"].Status != "ok" {
		t.Errorf("audit check = %q, want ok", status.Checks["audit"].Status)
	}
}

func TestHealthChecker_TimeoutAndReplace(t *testing.T) {
	h := NewHealthChecker(nil)
	h.SetTimeout(20 * time.Millisecond)
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.AddCheck("audit", func(context.Context) error { return errors.New("disk full") })
	h.AddCheck("audit", func(context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Ready() {
		t.Fatal("slow check should time out")
	}
	if len(status.Checks) != 2 {
		t.Fatalf("checks = %v, want slow and audit", status.Checks)
	}
	if got := status.Checks["slow"]; got.Status != StatusFail || got.Message != context.DeadlineExceeded.Error() {
		t.Errorf("slow check = %+v", got)
	}
	if status.Checks["audit"].Status != StatusOK {
		t.Errorf("replaced audit check = %+v, want ok", status.Checks["audit"])
	}
}

type roleStore struct {
	cfg security.RBACConfig
	err error
}

func (s roleStore) LoadRBACConfig(context.Context) (security.RBACConfig, error) { return s.cfg, s.err }
func (roleStore) SaveRole(context.Context, security.Role) error                 { return nil }
func (roleStore) AssignUserRole(context.Context, string, string) error          { return nil }

func TestRoleStoreCheck(t *testing.T) {
	inspector := security.Role{Name: "inspector", Permissions: []string{"approve_inspection"}}
	tests := []struct {
		name    string
		store   roleStore
		wantErr error
		wantOK  bool
	}{
		{name: "empty", store: roleStore{cfg: security.RBACConfig{}}, wantErr: ErrNoRoles},
		{name: "load error", store: roleStore{err: errors.New("connection refused")}},
		{
			name: "unknown assignment",
			store: roleStore{cfg: security.RBACConfig{
				Roles:     map[string]security.Role{"inspector": inspector},
				UserRoles: map[string]string{"ivy": "clerk"},
			}},
			wantErr: security.ErrUnknownRole,
		},
		{
			name: "ready",
			store: roleStore{cfg: security.RBACConfig{
				Roles:     map[string]security.Role{"inspector": inspector},
				UserRoles: map[string]string{"ivy": "inspector"},
			}},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RoleStoreCheck(tt.store)(context.Background())
			switch {
			case tt.wantOK && err != nil:
				t.Errorf("check = %v, want nil", err)
			case !tt.wantOK && err == nil:
				t.Error("check = nil, want an error")
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("check = %v, want %v", err, tt.wantErr)
			}
		})
	}

	h := NewHealthChecker(nil)
	h.AddCheck("roles", RoleStoreCheck(roleStore{}))
	if got := h.CheckReady(context.Background()).Checks["roles"]; got.Status != StatusFail || got.Message != ErrNoRoles.Error() {
		t.Errorf("roles readiness = %+v", got)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	if status := h.CheckHealth(); status.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", status.Status)
	}
}

// --- AnomalyDetector ---

func TestAnomalyDetector_NilSafe(t *testing.T) {
	var a *AnomalyDetector
	a.RecordError("test")
	a.RecordSuccess("test")
	if rate, n := a.ErrorRate("test"); rate != 0 || n != 0 {
		t.Errorf("nil detector rate = %v/%d", rate, n)
	}
}

func TestAnomalyDetector_ErrorRateThreshold(t *testing.T) {
	a := NewAnomalyDetector(&config.AnomalyConfig{
		Enabled:            true,
		ErrorRateThreshold: 0.5,
		WindowSeconds:      60,
	}, nil)

	// 6 errors and 4 successes is a 60% error rate.
	for range 4 {
		a.RecordSuccess("test_op")
	}
	for range 6 {
		a.RecordError("test_op")
	}

	rate, samples := a.ErrorRate("test_op")
	if samples != 10 || rate != 0.6 {
		t.Errorf("ErrorRate = %v over %d, want 0.6 over 10", rate, samples)
	}
	// The 5th and 6th errors push the rate above 50%.
	if got := a.Alerts(); got != 2 {
		t.Errorf("Alerts() = %d, want 2", got)
	}
}

func TestAnomalyDetector_WindowExpiry(t *testing.T) {
	a := NewAnomalyDetector(&config.AnomalyConfig{Enabled: true, WindowSeconds: 10}, nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.RecordError("op")
	a.RecordError("op")
	now = now.Add(11 * time.Second)
	a.RecordSuccess("op")

	if rate, samples := a.ErrorRate("op"); samples != 1 || rate != 0 {
		t.Errorf("ErrorRate = %v over %d, want 0 over 1", rate, samples)
	}
}

// --- Helpers ---

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	return findMetric(t, reg, name, labels).GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return findMetric(t, reg, name, nil).GetGauge().GetValue()
}
