package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jkaninda/signoffs/internal/security"
)

var grantPermissions []string

var grantCmd = &cobra.Command{
	Use:   "grant <user> <role>",
	Short: "Assign a role to a user in the role store",
	Long: `Assigns a role to a user. With --permission the role is created or its
permissions replaced first. Stored roles take precedence over the config file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sc, err := initShared(ctx)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		user, role := args[0], args[1]
		roles := sc.Store.Roles()
		if len(grantPermissions) > 0 {
			if err := roles.SaveRole(ctx, security.Role{Name: role, Permissions: grantPermissions}); err != nil {
				return err
			}
			sc.Logger.Info("role saved", slog.String("role", role), slog.Any("permissions", grantPermissions))
		}
		if err := roles.AssignUserRole(ctx, user, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now has role %s\n", user, role)
		return nil
	},
}

func init() {
	grantCmd.Flags().StringSliceVar(&grantPermissions, "permission", nil, "permission to grant the role (repeatable)")
}
