package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "missionctl",
	Short: "missionctl - mission control activity runner",
	Long: `missionctl reads task records from the workspace, infers each task's phase
from its free-text status and keeps a durable set of per-role run records
converged with what every task currently needs.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configFile    string
	workspaceRoot string
	logLevel      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default <root>/missionctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "root", "", "Workspace root (default $WORKSPACE_ROOT or the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(rolesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
