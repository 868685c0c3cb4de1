package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/security"
)

var (
	demoProcess     string
	demoSubject     string
	demoRevokeLast  bool
	demoShowMetrics bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a bundled process from start to finish",
	Long: `Runs the leave request or the building permit process with the demo users,
including one attempt that is denied. The process is saved and can be inspected
later with "signoffs show <id>".`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoProcess, "process", "permit", "process to run: leave or permit")
	demoCmd.Flags().StringVar(&demoSubject, "subject", "", "employee or building the process is about")
	demoCmd.Flags().BoolVar(&demoRevokeLast, "revoke-last", false, "revoke the last approval at the end")
	demoCmd.Flags().BoolVar(&demoShowMetrics, "metrics", false, "print collected metrics when done")
}

// demoRBAC grants each demo user the permissions the bundled processes check.
func demoRBAC() security.RBACConfig {
	roles := map[string][]string{
		"employee":   {permitting.PermRequestLeave},
		"manager":    {permitting.PermRequestLeave, permitting.PermManageLeave},
		"hr":         {permitting.PermApproveHR, permitting.PermRevokeApprovals},
		"applicant":  {permitting.PermApplyPermit},
		"planner":    {permitting.PermReviewPlanning},
		"electrical": {permitting.PermInspectElectric},
		"plumbing":   {permitting.PermInspectPlumbing},
		"permits":    {permitting.PermGrantPermit},
		"inspector":  {permitting.PermInspectBuilding},
		"clerk":      {permitting.PermApprovePermits, permitting.PermRevokeApprovals},
	}
	cfg := security.RBACConfig{
		Roles: make(map[string]security.Role, len(roles)),
		UserRoles: map[string]string{
			"bob":   "employee",
			"mary":  "manager",
			"hank":  "hr",
			"alice": "applicant",
			"pat":   "planner",
			"eve":   "electrical",
			"pam":   "plumbing",
			"gina":  "permits",
			"ian":   "inspector",
			"clerk": "clerk",
		},
	}
	for name, perms := range roles {
		cfg.Roles[name] = security.Role{Name: name, Permissions: perms}
	}
	return cfg
}

// step is one action in a scripted run.
type step struct {
	user      string
	approval  string
	signoffID string // Empty for an approve or revoke step.
	revoke    bool
}

func signs(approvalID string, pairs ...string) []step {
	out := make([]step, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, step{user: pairs[i], approval: approvalID, signoffID: pairs[i+1]})
	}
	return out
}

func approves(approvalID, user string) step {
	return step{user: user, approval: approvalID}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	sc, err := initShared(ctx)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	out := cmd.OutOrStdout()
	switch strings.ToLower(demoProcess) {
	case "leave":
		err = runLeaveDemo(ctx, sc, out)
	case "permit":
		err = runPermitDemo(ctx, sc, out)
	default:
		return fmt.Errorf("unknown process %q: want leave or permit", demoProcess)
	}
	if err != nil {
		return err
	}
	if demoShowMetrics {
		return printMetrics(sc, out)
	}
	return nil
}

func runLeaveDemo(ctx context.Context, sc *SharedComponents, out io.Writer) error {
	employee := demoSubject
	if employee == "" {
		employee = "bob"
	}
	lr, err := permitting.NewLeaveRequest(ctx, employee, sc.Store.Processes(), sc.Store.Stamps(), sc.ApprovalOptions()...)
	if err != nil {
		return err
	}
	reg, err := permitting.NewLeaveActions(sc.ProcessOptions()...).For(lr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "leave request %s for %s\n", lr.ID(), lr.Employee())

	steps := signs(permitting.LeaveManager, "bob", permitting.SignoffEmployee, "mary", permitting.SignoffManager)
	steps = append(steps,
		approves(permitting.LeaveHR, "mary"), // Out of order; denied.
		approves(permitting.LeaveManager, "mary"),
	)
	steps = append(steps, signs(permitting.LeaveHR, "hank", permitting.SignoffHR)...)
	steps = append(steps, approves(permitting.LeaveHR, "hank"))
	if demoRevokeLast {
		steps = append(steps, step{user: "hank", approval: permitting.LeaveHR, revoke: true})
	}

	if err := runSteps(ctx, sc, out, reg, lr.Get, steps); err != nil {
		return err
	}
	fmt.Fprintf(out, "granted: %t\n", lr.IsGranted())
	printHistory(out, lr.History())
	return nil
}

func runPermitDemo(ctx context.Context, sc *SharedComponents, out io.Writer) error {
	building := demoSubject
	if building == "" {
		building = "12 Harbour Rd"
	}
	bp, err := permitting.NewBuildingPermit(ctx, building, sc.Store.Processes(), sc.Store.Stamps(), sc.ApprovalOptions()...)
	if err != nil {
		return err
	}
	reg, err := permitting.NewPermitActions(sc.ProcessOptions()...).For(bp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "building permit %s for %s\n", bp.ID(), bp.Building())

	var steps []step
	steps = append(steps, signs(permitting.PermitApply, "alice", permitting.SignoffApplicant)...)
	steps = append(steps, approves(permitting.PermitApply, "alice"))
	steps = append(steps, signs(permitting.PermitPermit,
		"pat", permitting.SignoffPlanning,
		"eve", permitting.SignoffElectrical,
		"gina", permitting.SignoffPermit)...)
	steps = append(steps,
		approves(permitting.PermitPermit, "alice"), // No approve_permits; denied.
		approves(permitting.PermitPermit, "clerk"),
	)
	steps = append(steps, signs(permitting.PermitInterimInspection,
		"pam", permitting.SignoffPlumbing,
		"eve", permitting.SignoffElectrical,
		"ian", permitting.SignoffInspection)...)
	steps = append(steps, approves(permitting.PermitInterimInspection, "clerk"))
	steps = append(steps, signs(permitting.PermitFinalInspection, "ian", permitting.SignoffInspection)...)
	steps = append(steps, approves(permitting.PermitFinalInspection, "clerk"))
	if demoRevokeLast {
		steps = append(steps, step{user: "clerk", approval: permitting.PermitFinalInspection, revoke: true})
	}

	if err := runSteps(ctx, sc, out, reg, bp.Get, steps); err != nil {
		return err
	}
	fmt.Fprintf(out, "state: %s\n", bp.State())
	printHistory(out, bp.History())
	return nil
}

// runSteps plays steps against reg. Denials are reported and do not stop the run.
func runSteps[P any](ctx context.Context, sc *SharedComponents, out io.Writer, reg *process.ActionsRegistry[P], get func(string) *approval.Approval, steps []step) error {
	for _, s := range steps {
		id := process.ID(s.approval)
		switch {
		case s.signoffID != "":
			if err := sc.Sign(ctx, get(s.approval), s.user, s.signoffID); err != nil {
				return fmt.Errorf("%s signing %s on %s: %w", s.user, s.signoffID, s.approval, err)
			}
			fmt.Fprintf(out, "  %-6s signed   %s on %s\n", s.user, s.signoffID, s.approval)
		case s.revoke:
			reason := reg.ExplainRevoke(ctx, id, s.user)
			ok, err := reg.TryRevokeTransition(ctx, id, s.user)
			if err != nil {
				return err
			}
			report(out, s.user, "revoke", s.approval, ok, reason)
		default:
			reason := reg.ExplainApprove(ctx, id, s.user)
			ok, err := reg.TryApproveTransition(ctx, id, s.user)
			if err != nil {
				return err
			}
			report(out, s.user, "approve", s.approval, ok, reason)
		}
	}
	return nil
}

func report(out io.Writer, user, verb, approvalID string, ok bool, reason process.Reason) {
	if ok {
		fmt.Fprintf(out, "  %-6s %-8s %s\n", user, verb+"d", approvalID)
		return
	}
	fmt.Fprintf(out, "  %-6s cannot %s %s: %s\n", user, verb, approvalID, reason)
}

func printHistory(out io.Writer, history []string) {
	fmt.Fprintln(out, "history:")
	for _, h := range history {
		fmt.Fprintf(out, "  %s\n", h)
	}
}

func printMetrics(sc *SharedComponents, out io.Writer) error {
	if sc.Obs == nil || sc.Obs.Metrics == nil {
		sc.Logger.Warn("metrics are disabled in the config")
		return nil
	}
	families, err := sc.Obs.Metrics.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	sc.Logger.Debug("metrics written", slog.Int("families", len(families)))
	return nil
}
