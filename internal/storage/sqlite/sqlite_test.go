package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/signingorder"
	"github.com/jkaninda/signoffs/internal/signoff"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "signoffs.db")}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func leaveType(t *testing.T) *approval.Type {
	t.Helper()
	reg, err := signoff.NewRegistry(&signoff.Type{ID: "manager"}, &signoff.Type{ID: "hr"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &approval.Type{
		ID:           "leave",
		Signoffs:     reg,
		SigningOrder: signingorder.MustNew(signingorder.Terms("manager", "hr")...),
	}
}

// --- Stamps and signets ---

func TestStamps_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	typ := leaveType(t)

	a, err := approval.New(ctx, typ, approval.WithStore(s.Stamps()))
	if err != nil {
		t.Fatalf("approval.New: %v", err)
	}
	if _, err := a.Sign(ctx, "bob", "manager"); err != nil {
		t.Fatalf("Sign manager: %v", err)
	}
	if _, err := a.Sign(ctx, "carol", "hr"); err != nil {
		t.Fatalf("Sign hr: %v", err)
	}
	if err := a.Approve(ctx, "bob"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	loaded, err := approval.Load(ctx, typ, s.Stamps(), a.Stamp().ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsApproved() || !loaded.IsComplete() {
		t.Errorf("loaded approval status = %v, want approved and complete", loaded.Status())
	}
	if got := len(loaded.Signets()); got != 2 {
		t.Fatalf("loaded %d signets, want 2", got)
	}
	if loaded.Signets()[0].SignoffID != "manager" {
		t.Errorf("first signet = %s, want manager", loaded.Signets()[0].SignoffID)
	}

	if err := loaded.Revoke(ctx, "bob"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	reloaded, err := approval.Load(ctx, typ, s.Stamps(), a.Stamp().ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.IsApproved() || reloaded.IsSigned() {
		t.Error("revocation was not persisted")
	}
	if got := len(reloaded.History()); got != 2 {
		t.Errorf("history has %d signets, want 2", got)
	}
}

func TestStamps_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Stamps().GetStamp(context.Background(), uuid.New()); !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("GetStamp err = %v, want ErrNotFound", err)
	}
}

func TestAtomic_Rollback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	stamp := &approval.Stamp{ID: uuid.New(), ApprovalID: "leave", CreatedAt: time.Now().UTC()}
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context) error {
		if err := s.Stamps().SaveStamp(ctx, stamp); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic err = %v, want boom", err)
	}
	if _, err := s.Stamps().GetStamp(ctx, stamp.ID); !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("stamp survived rollback: err = %v", err)
	}

	if err := s.Atomic(ctx, func(ctx context.Context) error {
		return s.Stamps().SaveStamp(ctx, stamp)
	}); err != nil {
		t.Fatalf("Atomic commit: %v", err)
	}
	if _, err := s.Stamps().GetStamp(ctx, stamp.ID); err != nil {
		t.Errorf("committed stamp missing: %v", err)
	}
}

// --- Roles and audit ---

func TestRoles_StoreRBACBootstrap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	fallback := security.RBACConfig{
		Roles: map[string]security.Role{
			"manager": {Name: "manager", Permissions: []string{"sign_manager"}},
		},
		UserRoles:   map[string]string{"bob": "manager"},
		DefaultRole: "",
	}

	rbac := security.NewStoreRBAC(s.Roles(), fallback, time.Minute, nil)
	if !rbac.HasPerm(ctx, "bob", "sign_manager") {
		t.Error("bob should hold sign_manager after bootstrap")
	}
	if rbac.HasPerm(ctx, "carol", "sign_manager") {
		t.Error("carol has no role and should be denied")
	}

	cfg, err := s.Roles().LoadRBACConfig(ctx)
	if err != nil {
		t.Fatalf("LoadRBACConfig: %v", err)
	}
	if cfg.UserRoles["bob"] != "manager" || len(cfg.Roles["manager"].Permissions) != 1 {
		t.Errorf("persisted config = %+v", cfg)
	}

	if err := s.Roles().AssignUserRole(ctx, "carol", "ghost"); !errors.Is(err, security.ErrUnknownRole) {
		t.Errorf("AssignUserRole err = %v, want ErrUnknownRole", err)
	}
}

func TestAudit_AppendAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, action := range []string{security.ActionSign, security.ActionApprove} {
		err := s.Audit().Append(ctx, security.AuditEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			UserID:     "bob",
			Action:     action,
			ProcessID:  "leave-1",
			Parameters: map[string]any{"step": i},
			Result:     security.ResultSuccess,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.AuditRepository().Query(ctx, "leave-1", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Action != security.ActionApprove {
		t.Errorf("newest event = %s, want approve", events[0].Action)
	}
	if events[1].Parameters["step"] != float64(0) {
		t.Errorf("parameters = %v", events[1].Parameters)
	}
}

// --- Process records ---

func TestProcesses_BuildingPermitReload(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	anyone := approval.WithPermissions(signoff.PermissionsFunc(func(context.Context, string, string) bool { return true }))

	bp, err := permitting.NewBuildingPermit(ctx, "7 Mill Lane", s.Processes(), s.Stamps(), anyone)
	if err != nil {
		t.Fatalf("NewBuildingPermit: %v", err)
	}
	reg, err := permitting.NewPermitActions().For(bp)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if _, err := bp.Get(permitting.PermitApply).Sign(ctx, "alice", permitting.SignoffApplicant); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := reg.TryApproveTransition(ctx, process.ID(permitting.PermitApply), "alice")
	if err != nil || !ok {
		t.Fatalf("TryApproveTransition = %v, %v", ok, err)
	}

	loaded, err := permitting.LoadBuildingPermit(ctx, bp.ID(), s.Processes(), s.Stamps(), anyone)
	if err != nil {
		t.Fatalf("LoadBuildingPermit: %v", err)
	}
	if loaded.State() != permitting.StateApplied {
		t.Errorf("reloaded state = %q, want applied", loaded.State())
	}
	if loaded.Building() != "7 Mill Lane" {
		t.Errorf("reloaded building = %q", loaded.Building())
	}
	if !loaded.Get(permitting.PermitApply).IsApproved() {
		t.Error("apply approval not approved after reload")
	}
	if loaded.Get(permitting.PermitPermit).IsApproved() {
		t.Error("permit approval approved after reload")
	}

	recs, err := s.ProcessRepository().ListProcesses(ctx, permitting.KindBuildingPermit, 0)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != bp.ID() {
		t.Errorf("ListProcesses = %v", recs)
	}

	_, err = s.Processes().GetProcess(ctx, uuid.New())
	if !errors.Is(err, permitting.ErrNotFound) {
		t.Errorf("missing process err = %v, want ErrNotFound", err)
	}
}

func TestPing(t *testing.T) {
	s := testStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if s.Driver() != "sqlite" {
		t.Errorf("Driver() = %q", s.Driver())
	}
}
