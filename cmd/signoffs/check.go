package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configured dependencies are reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sc, err := initShared(ctx)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		out := cmd.OutOrStdout()
		if sc.Obs == nil {
			if err := sc.Store.Ping(ctx); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			fmt.Fprintln(out, "storage: ok")
			return nil
		}
		status := sc.Obs.Health.CheckReady(ctx)
		for _, name := range slices.Sorted(maps.Keys(status.Checks)) {
			res := status.Checks[name]
			if res.Message != "" {
				fmt.Fprintf(out, "%s: %s (%s)\n", name, res.Status, res.Message)
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", name, res.Status)
		}
		if !status.Ready() {
			return errors.New("not ready")
		}
		return nil
	},
}
