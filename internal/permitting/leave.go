package permitting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/process"
)

// Leave request approval ids, in the order they must be approved.
const (
	LeaveManager = "manager"
	LeaveHR      = "hr"
)

var leaveTypes = []*approval.Type{ManagerApproval, HRApproval}

// LeaveRequest asks a manager and then HR to approve an employee's leave.
type LeaveRequest struct {
	*instance
}

var (
	_ process.Accessor   = (*LeaveRequest)(nil)
	_ process.Saver      = (*LeaveRequest)(nil)
	_ process.Identifier = (*LeaveRequest)(nil)
)

// NewLeaveRequest starts a leave request for employee. store may be nil.
func NewLeaveRequest(ctx context.Context, employee string, store Store, stamps approval.Store, opts ...approval.Option) (*LeaveRequest, error) {
	in, err := newInstance(ctx, KindLeaveRequest, employee, leaveTypes, store, stamps, opts)
	if err != nil {
		return nil, err
	}
	lr := &LeaveRequest{instance: in}
	if err := lr.Save(ctx); err != nil {
		return nil, err
	}
	return lr, nil
}

// LoadLeaveRequest restores a leave request and its approvals.
func LoadLeaveRequest(ctx context.Context, id uuid.UUID, store Store, stamps approval.Store, opts ...approval.Option) (*LeaveRequest, error) {
	in, err := loadInstance(ctx, KindLeaveRequest, id, leaveTypes, store, stamps, opts)
	if err != nil {
		return nil, err
	}
	return &LeaveRequest{instance: in}, nil
}

func (lr *LeaveRequest) Approval(name string) (process.Approval, bool) {
	a, ok := lr.lookup(name)
	if !ok {
		return nil, false
	}
	return a, true
}

// Get returns the concrete approval for signing.
func (lr *LeaveRequest) Get(name string) *approval.Approval {
	a, _ := lr.lookup(name)
	return a
}

func (lr *LeaveRequest) ProcessID() string { return lr.record.ID.String() }

// ID returns the request's id.
func (lr *LeaveRequest) ID() uuid.UUID { return lr.record.ID }

// Employee returns who the leave is for.
func (lr *LeaveRequest) Employee() string { return lr.record.Subject }

// History lists the transitions applied so far, oldest first.
func (lr *LeaveRequest) History() []string { return append([]string(nil), lr.history...) }

// IsGranted reports whether both approvals are in.
func (lr *LeaveRequest) IsGranted() bool {
	for _, typ := range leaveTypes {
		if a, ok := lr.lookup(typ.ID); !ok || !a.IsApproved() {
			return false
		}
	}
	return true
}

func (lr *LeaveRequest) Save(ctx context.Context) error { return lr.save(ctx) }

func (lr *LeaveRequest) approved(a process.Approval) error {
	lr.history = append(lr.history, fmt.Sprintf("%s approved", a.ApprovalID()))
	return nil
}

func (lr *LeaveRequest) revoked(a process.Approval) error {
	lr.history = append(lr.history, fmt.Sprintf("%s revoked", a.ApprovalID()))
	return nil
}

// NewLeaveActions declares the leave request transitions. Build it once and
// call For on each request.
func NewLeaveActions(opts ...process.Option) *process.Actions[*LeaveRequest] {
	return process.NewActions[*LeaveRequest](opts...).
		RegisterApproveTransition(process.ID(LeaveManager), (*LeaveRequest).approved).
		RegisterRevokeTransition(process.ID(LeaveManager), (*LeaveRequest).revoked).
		RegisterApproveTransition(process.ID(LeaveHR), (*LeaveRequest).approved).
		RegisterRevokeTransition(process.ID(LeaveHR), (*LeaveRequest).revoked)
}
