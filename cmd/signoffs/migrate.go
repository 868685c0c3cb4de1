package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// initShared migrates on every start.
		sc, err := initShared(cmd.Context())
		if err != nil {
			return err
		}
		defer sc.Cleanup()
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", sc.Store.Driver())
		return nil
	},
}
