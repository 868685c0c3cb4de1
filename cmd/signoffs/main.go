// Signoffs runs the bundled approval processes against the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/signoffs/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signoffs",
	Short: "Signoffs: ordered signatures, approvals and approval processes.",
	Long: `Signoffs collects signatures on approvals in a declared signing order and
drives multi-approval processes through their approve and revoke transitions.
Every attempt is checked against role-based permissions and written to the audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.AddCommand(migrateCmd, demoCmd, showCmd, listCmd, grantCmd, checkCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
