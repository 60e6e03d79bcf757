// Command tickd runs the tick loop daemon: pooled jobs and named countdowns
// driven by a fixed frame rate, configured from a hot-reloaded file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tickd",
		Short:         "Frame-driven job and countdown daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "./config.yaml", "path to config file (yaml or json)")

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newJournalCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "tickd", version)
			},
		},
	)
	return root
}
