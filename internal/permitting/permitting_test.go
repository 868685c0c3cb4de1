package permitting

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/signoff"
)

var _ process.Approval = (*approval.Approval)(nil)

var grants = map[string][]string{
	"bob":   {PermRequestLeave},
	"mary":  {PermManageLeave},
	"hank":  {PermApproveHR},
	"alice": {PermApplyPermit},
	"pat":   {PermReviewPlanning},
	"eve":   {PermInspectElectric},
	"pam":   {PermInspectPlumbing},
	"gina":  {PermGrantPermit},
	"ian":   {PermInspectBuilding},
	"clerk": {PermApprovePermits, PermRevokeApprovals},
}

var perms = signoff.PermissionsFunc(func(_ context.Context, userID, perm string) bool {
	return slices.Contains(grants[userID], perm)
})

func sign(t *testing.T, a *approval.Approval, userID, signoffID string) {
	t.Helper()
	if _, err := a.Sign(context.Background(), userID, signoffID); err != nil {
		t.Fatalf("%s signing %s on %s: %v", userID, signoffID, a.ApprovalID(), err)
	}
}

func approve[P any](t *testing.T, reg *process.ActionsRegistry[P], id string, userID string) {
	t.Helper()
	ok, err := reg.TryApproveTransition(context.Background(), process.ID(id), userID)
	if err != nil || !ok {
		t.Fatalf("approve %s as %s = %v, %v (reason %s)", id, userID, ok, err,
			reg.ExplainApprove(context.Background(), process.ID(id), userID))
	}
}

// --- Building permit ---

func TestBuildingPermit_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	store, stamps := NewMemoryStore(), approval.NewMemoryStore()

	var outcomes []process.Result
	acts := NewPermitActions(process.WithObserver(process.ObserverFunc(func(_ context.Context, o process.Outcome) {
		outcomes = append(outcomes, o.Result)
	})))

	bp, err := NewBuildingPermit(ctx, "12 Harbour Rd", store, stamps, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("NewBuildingPermit: %v", err)
	}
	reg, err := acts.For(bp)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if bp.State() != StateInitiated {
		t.Fatalf("initial state = %q", bp.State())
	}

	// Application.
	sign(t, bp.Get(PermitApply), "alice", SignoffApplicant)
	approve(t, reg, PermitApply, "alice")
	if bp.State() != StateApplied {
		t.Errorf("state after apply = %q, want applied", bp.State())
	}

	// Permit: planning, electrical, then the permit itself.
	permit := bp.Get(PermitPermit)
	if _, err := permit.Sign(ctx, "eve", SignoffPlanning); !errors.Is(err, approval.ErrPermissionDenied) {
		t.Errorf("eve signing planning err = %v, want permission denied", err)
	}
	sign(t, permit, "pat", SignoffPlanning)
	sign(t, permit, "eve", SignoffElectrical)
	sign(t, permit, "gina", SignoffPermit)
	if got := reg.ExplainApprove(ctx, process.ID(PermitPermit), "alice"); got != process.ReasonPermission {
		t.Errorf("alice approving permit = %s, want permission_denied", got)
	}
	if ok, err := reg.TryApproveTransition(ctx, process.ID(PermitPermit), "alice"); ok || err != nil {
		t.Errorf("alice approving permit = %v, %v; want false, nil", ok, err)
	}
	approve(t, reg, PermitPermit, "clerk")
	if bp.State() != StatePermitted {
		t.Errorf("state after permit = %q, want permitted", bp.State())
	}

	// Interim inspection needs both trades before the inspector.
	interim := bp.Get(PermitInterimInspection)
	sign(t, interim, "eve", SignoffElectrical)
	if _, err := interim.Sign(ctx, "ian", SignoffInspection); !errors.Is(err, approval.ErrNotNext) {
		t.Errorf("inspection before plumbing err = %v, want ErrNotNext", err)
	}
	sign(t, interim, "pam", SignoffPlumbing)
	sign(t, interim, "ian", SignoffInspection)
	approve(t, reg, PermitInterimInspection, "clerk")

	// Final inspection: trades are optional.
	sign(t, bp.Get(PermitFinalInspection), "ian", SignoffInspection)
	approve(t, reg, PermitFinalInspection, "clerk")
	if bp.State() != StateApproved {
		t.Errorf("state after final inspection = %q, want approved", bp.State())
	}
	if reg.NextApproval() != nil {
		t.Error("no approval should remain")
	}

	// Only the last approval may be revoked.
	if ok, _ := reg.TryRevokeTransition(ctx, process.ID(PermitInterimInspection), "clerk"); ok {
		t.Error("interim inspection should not be revokable while final is approved")
	}
	if ok, err := reg.TryRevokeTransition(ctx, process.ID(PermitFinalInspection), "clerk"); err != nil || !ok {
		t.Fatalf("revoke final = %v, %v", ok, err)
	}
	if bp.State() != StateInspected {
		t.Errorf("state after revoke = %q, want inspected", bp.State())
	}

	wantHistory := []string{
		"apply applied for from initiated",
		"permit permitted from applied",
		"interim_inspection inspected from permitted",
		"final_inspection authorized from inspected",
		"final_inspection withdrawn from approved",
	}
	if diff := cmp.Diff(wantHistory, bp.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	wantOutcomes := []process.Result{
		process.ResultApplied,
		process.ResultDenied,
		process.ResultApplied,
		process.ResultApplied,
		process.ResultApplied,
		process.ResultDenied,
		process.ResultApplied,
	}
	if diff := cmp.Diff(wantOutcomes, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	// Reload from the stores.
	loaded, err := LoadBuildingPermit(ctx, bp.ID(), store, stamps, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("LoadBuildingPermit: %v", err)
	}
	if loaded.State() != StateInspected || loaded.Building() != "12 Harbour Rd" {
		t.Errorf("loaded = %q/%q", loaded.State(), loaded.Building())
	}
	if !loaded.Get(PermitInterimInspection).IsApproved() || loaded.Get(PermitFinalInspection).IsApproved() {
		t.Error("loaded approvals do not match saved state")
	}
	lreg, err := acts.For(loaded)
	if err != nil {
		t.Fatalf("For loaded: %v", err)
	}
	if got := lreg.NextApproval(); got == nil || got.ApprovalID() != PermitFinalInspection {
		t.Errorf("loaded next approval = %v, want final_inspection", got)
	}
}

func TestBuildingPermit_StateMismatch(t *testing.T) {
	ctx := context.Background()
	bp, err := NewBuildingPermit(ctx, "7 Mill Lane", nil, nil, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("NewBuildingPermit: %v", err)
	}
	bp.record.State = StateApproved
	reg, err := NewPermitActions().For(bp)
	if err != nil {
		t.Fatalf("For: %v", err)
	}

	sign(t, bp.Get(PermitApply), "alice", SignoffApplicant)
	if got := reg.ExplainApprove(ctx, process.ID(PermitApply), "alice"); got != process.ReasonInvalidState {
		t.Errorf("ExplainApprove = %s, want invalid_state", got)
	}
	if ok, err := reg.TryApproveTransition(ctx, process.ID(PermitApply), "alice"); ok || err != nil {
		t.Errorf("TryApproveTransition = %v, %v; want false, nil", ok, err)
	}
	if bp.Get(PermitApply).IsApproved() {
		t.Error("apply should not be approved")
	}
}

func TestLoadBuildingPermit_WrongKind(t *testing.T) {
	ctx := context.Background()
	store, stamps := NewMemoryStore(), approval.NewMemoryStore()
	lr, err := NewLeaveRequest(ctx, "bob", store, stamps)
	if err != nil {
		t.Fatalf("NewLeaveRequest: %v", err)
	}
	if _, err := LoadBuildingPermit(ctx, lr.ID(), store, stamps); err == nil {
		t.Error("loading a leave request as a permit should fail")
	}
	if _, err := LoadLeaveRequest(ctx, uuid.New(), store, stamps); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing process err = %v, want ErrNotFound", err)
	}
}

// --- Leave request ---

func TestLeaveRequest_Flow(t *testing.T) {
	ctx := context.Background()
	lr, err := NewLeaveRequest(ctx, "bob", nil, nil, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("NewLeaveRequest: %v", err)
	}
	reg, err := NewLeaveActions(process.WithRevokeBlockedByNextSignoffs()).For(lr)
	if err != nil {
		t.Fatalf("For: %v", err)
	}

	if got := reg.ExplainApprove(ctx, process.ID(LeaveHR), "hank"); got != process.ReasonNotNext {
		t.Errorf("hr before manager = %s, want not_next", got)
	}

	manager := lr.Get(LeaveManager)
	sign(t, manager, "bob", SignoffEmployee)
	if got := reg.ExplainApprove(ctx, process.ID(LeaveManager), "mary"); got != process.ReasonIncomplete {
		t.Errorf("manager before signing = %s, want incomplete", got)
	}
	sign(t, manager, "mary", SignoffManager)
	approve(t, reg, LeaveManager, "mary")

	// Once HR has signed, the manager approval is locked in.
	sign(t, lr.Get(LeaveHR), "hank", SignoffHR)
	if reg.CanDoRevokeTransition(ctx, process.ID(LeaveManager), "mary") {
		t.Error("manager approval should not be revokable once hr has signed")
	}
	approve(t, reg, LeaveHR, "hank")
	if !lr.IsGranted() {
		t.Fatal("leave should be granted")
	}

	if ok, _ := reg.TryRevokeTransition(ctx, process.ID(LeaveHR), "hank"); ok {
		t.Error("hank lacks revoke_approvals")
	}
	if ok, err := reg.TryRevokeTransition(ctx, process.ID(LeaveHR), "clerk"); err != nil || !ok {
		t.Fatalf("clerk revoking hr = %v, %v", ok, err)
	}
	if lr.IsGranted() {
		t.Error("leave should no longer be granted")
	}

	want := []string{"manager approved", "hr approved", "hr revoked"}
	if diff := cmp.Diff(want, lr.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaveRequest_Persisted(t *testing.T) {
	ctx := context.Background()
	store, stamps := NewMemoryStore(), approval.NewMemoryStore()
	lr, err := NewLeaveRequest(ctx, "bob", store, stamps, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("NewLeaveRequest: %v", err)
	}
	reg, err := NewLeaveActions().For(lr)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	sign(t, lr.Get(LeaveManager), "bob", SignoffEmployee)
	sign(t, lr.Get(LeaveManager), "mary", SignoffManager)
	approve(t, reg, LeaveManager, "mary")

	rec, err := store.GetProcess(ctx, lr.ID())
	if err != nil {
		t.Fatalf("GetProcess: %v", err)
	}
	if rec.Kind != KindLeaveRequest || rec.Subject != "bob" || rec.UpdatedAt.IsZero() {
		t.Errorf("record = %+v", rec)
	}

	loaded, err := LoadLeaveRequest(ctx, lr.ID(), store, stamps, approval.WithPermissions(perms))
	if err != nil {
		t.Fatalf("LoadLeaveRequest: %v", err)
	}
	if !loaded.Get(LeaveManager).IsApproved() || loaded.Get(LeaveHR).IsSigned() {
		t.Error("loaded approvals do not match saved state")
	}
	if loaded.Employee() != "bob" {
		t.Errorf("Employee() = %q", loaded.Employee())
	}
}

