package permitting

import (
	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/signingorder"
	"github.com/jkaninda/signoffs/internal/signoff"
)

// Signoff type ids.
const (
	SignoffEmployee   = "leave.employee"
	SignoffManager    = "leave.manager"
	SignoffHR         = "leave.hr"
	SignoffApplicant  = "permit.applicant"
	SignoffPlanning   = "permit.planning"
	SignoffPermit     = "permit.permit"
	SignoffElectrical = "permit.electrical"
	SignoffPlumbing   = "permit.plumbing"
	SignoffInspection = "permit.inspection"
)

// Permissions checked by the bundled processes. Configure roles with these.
const (
	PermRequestLeave    = "request_leave"
	PermManageLeave     = "manage_leave"
	PermApproveHR       = "approve_hr"
	PermApplyPermit     = "apply_permit"
	PermReviewPlanning  = "review_planning"
	PermGrantPermit     = "grant_permit"
	PermInspectElectric = "inspect_electrical"
	PermInspectPlumbing = "inspect_plumbing"
	PermInspectBuilding = "inspect_building"
	PermApprovePermits  = "approve_permits"
	PermRevokeApprovals = "revoke_approvals"
)

// Signoffs registers every signoff type used by this package.
var Signoffs = mustRegistry(
	&signoff.Type{ID: SignoffEmployee, Label: "Apply for Leave", Perm: PermRequestLeave},
	&signoff.Type{ID: SignoffManager, Label: "Approve Leave", Perm: PermManageLeave},
	&signoff.Type{ID: SignoffHR, Label: "Request Approved by HR", Perm: PermApproveHR},
	&signoff.Type{ID: SignoffApplicant, Label: "Apply for Permit", Perm: PermApplyPermit},
	&signoff.Type{ID: SignoffPlanning, Label: "Application Meets By-laws", Perm: PermReviewPlanning},
	&signoff.Type{ID: SignoffPermit, Label: "Approve Building Permit", Perm: PermGrantPermit},
	&signoff.Type{ID: SignoffElectrical, Label: "Meets Electrical Code", Perm: PermInspectElectric},
	&signoff.Type{ID: SignoffPlumbing, Label: "Meets Plumbing Code", Perm: PermInspectPlumbing},
	&signoff.Type{ID: SignoffInspection, Label: "Construction Inspected", Perm: PermInspectBuilding, Irrevocable: true},
)

func mustRegistry(types ...*signoff.Type) *signoff.Registry {
	r, err := signoff.NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return r
}

// Leave request approvals.
var (
	ManagerApproval = &approval.Type{
		ID:           LeaveManager,
		Label:        "Manager approval",
		Signoffs:     Signoffs,
		SigningOrder: signingorder.MustNew(signingorder.Terms(SignoffEmployee, SignoffManager)...),
		ApprovePerm:  PermManageLeave,
		RevokePerm:   PermManageLeave,
	}
	HRApproval = &approval.Type{
		ID:           LeaveHR,
		Label:        "HR approval",
		Signoffs:     Signoffs,
		SigningOrder: signingorder.MustNew(signingorder.AtLeastN(signingorder.Term(SignoffHR), 1)),
		ApprovePerm:  PermApproveHR,
		RevokePerm:   PermRevokeApprovals,
	}
)

// Building permit approvals.
var (
	ApplyApproval = &approval.Type{
		ID:           PermitApply,
		Label:        "Permit application",
		Signoffs:     Signoffs,
		SigningOrder: signingorder.MustNew(signingorder.Term(SignoffApplicant)),
		RevokePerm:   PermRevokeApprovals,
	}
	PermitApproval = &approval.Type{
		ID:       PermitPermit,
		Label:    "Building permit",
		Signoffs: Signoffs,
		SigningOrder: signingorder.MustNew(
			signingorder.Term(SignoffPlanning),
			signingorder.Term(SignoffElectrical),
			signingorder.Term(SignoffPermit),
		),
		ApprovePerm: PermApprovePermits,
		RevokePerm:  PermRevokeApprovals,
	}
	InterimInspectionApproval = &approval.Type{
		ID:       PermitInterimInspection,
		Label:    "Interim inspection",
		Signoffs: Signoffs,
		SigningOrder: signingorder.MustNew(
			signingorder.InParallel(
				signingorder.OneOrMore(signingorder.Term(SignoffElectrical)),
				signingorder.OneOrMore(signingorder.Term(SignoffPlumbing)),
			),
			signingorder.Term(SignoffInspection),
		),
		ApprovePerm: PermApprovePermits,
		RevokePerm:  PermRevokeApprovals,
	}
	FinalInspectionApproval = &approval.Type{
		ID:       PermitFinalInspection,
		Label:    "Final inspection",
		Signoffs: Signoffs,
		SigningOrder: signingorder.MustNew(
			signingorder.InParallel(
				signingorder.Optional(signingorder.Term(SignoffElectrical)),
				signingorder.Optional(signingorder.Term(SignoffPlumbing)),
			),
			signingorder.Term(SignoffInspection),
		),
		ApprovePerm: PermApprovePermits,
		RevokePerm:  PermRevokeApprovals,
	}
)
