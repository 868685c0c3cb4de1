package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/signoffs/internal/permitting"
)

// processLister is implemented by the GORM process repository both backends share.
type processLister interface {
	ListProcesses(ctx context.Context, kind string, limit int) ([]*permitting.Record, error)
}

var (
	listKind  string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved processes, most recently updated first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sc, err := initShared(ctx)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		lister, ok := sc.Store.Processes().(processLister)
		if !ok {
			return fmt.Errorf("%s store cannot list processes", sc.Store.Driver())
		}
		recs, err := lister.ListProcesses(ctx, listKind, listLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range recs {
			state := r.State
			if state == "" {
				state = "-"
			}
			fmt.Fprintf(out, "%s  %-16s %-10s %-20s %s\n", r.ID, r.Kind, state, r.Subject, r.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "only list this kind (leave_request or building_permit)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of processes")
}
