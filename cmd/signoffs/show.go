package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
)

var showCmd = &cobra.Command{
	Use:   "show <process-id>",
	Short: "Show a saved process and its approvals",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid process id %q: %w", args[0], err)
	}
	ctx := cmd.Context()
	sc, err := initShared(ctx)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	rec, err := sc.Store.Processes().GetProcess(ctx, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s for %s\n", rec.Kind, rec.ID, rec.Subject)
	if rec.State != "" {
		fmt.Fprintf(out, "state: %s\n", rec.State)
	}
	fmt.Fprintf(out, "updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))

	approvals, err := loadApprovals(ctx, sc, rec)
	if err != nil {
		return err
	}
	for _, a := range approvals {
		printApproval(out, a)
	}
	return nil
}

// loadApprovals reloads the process behind rec and returns its approvals in order.
func loadApprovals(ctx context.Context, sc *SharedComponents, rec *permitting.Record) ([]*approval.Approval, error) {
	procs, stamps, opts := sc.Store.Processes(), sc.Store.Stamps(), sc.ApprovalOptions()
	switch rec.Kind {
	case permitting.KindLeaveRequest:
		lr, err := permitting.LoadLeaveRequest(ctx, rec.ID, procs, stamps, opts...)
		if err != nil {
			return nil, err
		}
		return []*approval.Approval{lr.Get(permitting.LeaveManager), lr.Get(permitting.LeaveHR)}, nil
	case permitting.KindBuildingPermit:
		bp, err := permitting.LoadBuildingPermit(ctx, rec.ID, procs, stamps, opts...)
		if err != nil {
			return nil, err
		}
		return []*approval.Approval{
			bp.Get(permitting.PermitApply),
			bp.Get(permitting.PermitPermit),
			bp.Get(permitting.PermitInterimInspection),
			bp.Get(permitting.PermitFinalInspection),
		}, nil
	default:
		return nil, fmt.Errorf("unknown process kind %q", rec.Kind)
	}
}

func printApproval(out io.Writer, a *approval.Approval) {
	fmt.Fprintf(out, "  %-20s %s\n", a.ApprovalID(), a.Status())
	for _, s := range a.Signets() {
		fmt.Fprintf(out, "    %-20s %-8s %s\n", s.SignoffID, s.UserID, s.Timestamp.Format(time.RFC3339))
	}
	if next := a.NextSignoffTypes(context.Background(), ""); len(next) > 0 && !a.IsApproved() {
		fmt.Fprint(out, "    next:")
		for _, t := range next {
			fmt.Fprintf(out, " %s", t.ID)
		}
		fmt.Fprintln(out)
	}
}
