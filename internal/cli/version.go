package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"shielded-feed/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "zecwatcher %s (commit %s, built %s, %s)\n",
			version.Version, version.Commit, version.BuildDate, runtime.Version())
	},
}
