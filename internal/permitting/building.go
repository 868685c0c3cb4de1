package permitting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/fsm"
	"github.com/jkaninda/signoffs/internal/process"
)

// Building permit approval ids, in the order they must be approved.
const (
	PermitApply             = "apply"
	PermitPermit            = "permit"
	PermitInterimInspection = "interim_inspection"
	PermitFinalInspection   = "final_inspection"
)

// Building permit states.
const (
	StateInitiated = "initiated"
	StateApplied   = "applied"
	StatePermitted = "permitted"
	StateInspected = "inspected"
	StateApproved  = "approved"
)

var permitTypes = []*approval.Type{ApplyApproval, PermitApproval, InterimInspectionApproval, FinalInspectionApproval}

// Each stage moves forward on approval and back one state on revocation.
var permitTable = fsm.Table{
	StateInitiated: {StateApplied},
	StateApplied:   {StatePermitted, StateInitiated},
	StatePermitted: {StateInspected, StateApplied},
	StateInspected: {StateApproved, StatePermitted},
	StateApproved:  {StateInspected},
}

// BuildingPermit walks a building through application, permitting and two
// inspections.
type BuildingPermit struct {
	*instance
}

var (
	_ process.Machined   = (*BuildingPermit)(nil)
	_ process.Saver      = (*BuildingPermit)(nil)
	_ process.Identifier = (*BuildingPermit)(nil)
)

// NewBuildingPermit starts a permit process for building. store may be nil.
func NewBuildingPermit(ctx context.Context, building string, store Store, stamps approval.Store, opts ...approval.Option) (*BuildingPermit, error) {
	in, err := newInstance(ctx, KindBuildingPermit, building, permitTypes, store, stamps, opts)
	if err != nil {
		return nil, err
	}
	in.record.State = StateInitiated
	bp := &BuildingPermit{instance: in}
	if err := bp.Save(ctx); err != nil {
		return nil, err
	}
	return bp, nil
}

// LoadBuildingPermit restores a permit process and its approvals.
func LoadBuildingPermit(ctx context.Context, id uuid.UUID, store Store, stamps approval.Store, opts ...approval.Option) (*BuildingPermit, error) {
	in, err := loadInstance(ctx, KindBuildingPermit, id, permitTypes, store, stamps, opts)
	if err != nil {
		return nil, err
	}
	return &BuildingPermit{instance: in}, nil
}

func (bp *BuildingPermit) Approval(name string) (process.Approval, bool) {
	a, ok := bp.lookup(name)
	if !ok {
		return nil, false
	}
	return a, true
}

// Get returns the concrete approval for signing.
func (bp *BuildingPermit) Get(name string) *approval.Approval {
	a, _ := bp.lookup(name)
	return a
}

func (bp *BuildingPermit) StateMachine() fsm.StateMachine {
	return fsm.New(&bp.record.State, permitTable)
}

func (bp *BuildingPermit) ProcessID() string { return bp.record.ID.String() }

// ID returns the permit's id.
func (bp *BuildingPermit) ID() uuid.UUID { return bp.record.ID }

// Building returns the building the permit is for.
func (bp *BuildingPermit) Building() string { return bp.record.Subject }

// State returns the current permit state.
func (bp *BuildingPermit) State() string { return bp.record.State }

// History lists the transitions applied so far, oldest first.
func (bp *BuildingPermit) History() []string { return append([]string(nil), bp.history...) }

func (bp *BuildingPermit) Save(ctx context.Context) error { return bp.save(ctx) }

// Transitions run before the state machine moves.

func (bp *BuildingPermit) applied(a process.Approval) error {
	return bp.note("applied for", a)
}

func (bp *BuildingPermit) permitted(a process.Approval) error {
	return bp.note("permitted", a)
}

func (bp *BuildingPermit) inspected(a process.Approval) error {
	return bp.note("inspected", a)
}

func (bp *BuildingPermit) authorized(a process.Approval) error {
	return bp.note("authorized", a)
}

func (bp *BuildingPermit) withdrawn(a process.Approval) error {
	return bp.note("withdrawn", a)
}

func (bp *BuildingPermit) note(what string, a process.Approval) error {
	bp.history = append(bp.history, fmt.Sprintf("%s %s from %s", a.ApprovalID(), what, bp.record.State))
	return nil
}

// NewPermitActions declares the building permit transitions and the state
// each one moves the permit to.
func NewPermitActions(opts ...process.Option) *process.FsmActions[*BuildingPermit] {
	return process.NewFsmActions[*BuildingPermit](opts...).
		RegisterApproveTransition(process.ID(PermitApply), StateApplied, (*BuildingPermit).applied).
		RegisterRevokeTransition(process.ID(PermitApply), StateInitiated, (*BuildingPermit).withdrawn).
		RegisterApproveTransition(process.ID(PermitPermit), StatePermitted, (*BuildingPermit).permitted).
		RegisterRevokeTransition(process.ID(PermitPermit), StateApplied, (*BuildingPermit).withdrawn).
		RegisterApproveTransition(process.ID(PermitInterimInspection), StateInspected, (*BuildingPermit).inspected).
		RegisterRevokeTransition(process.ID(PermitInterimInspection), StatePermitted, (*BuildingPermit).withdrawn).
		RegisterApproveTransition(process.ID(PermitFinalInspection), StateApproved, (*BuildingPermit).authorized).
		RegisterRevokeTransition(process.ID(PermitFinalInspection), StateInspected, (*BuildingPermit).withdrawn)
}
