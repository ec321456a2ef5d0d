package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds a fresh command tree so tests never share flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "echoaid",
		Short: "Operator tools for the EchoAid evacuation service",
		Long: `echoaid validates building datasets, previews routes and cells,
issues device and responder tokens, and runs earthquake drills.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newRouteCmd(),
		newCellsCmd(),
		newTokenCmd(),
		newSimulateCmd(),
	)
	return rootCmd
}
