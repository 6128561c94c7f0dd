package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"shielded-feed/internal/app"
)

var (
	sampleWindow  int64
	sampleStride  int64
	sampleCSVPath string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample shielded pool values over the trailing window once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sampleWindow < 0 || sampleStride < 0 {
			return fmt.Errorf("--window and --stride cannot be negative")
		}

		opts := app.SampleOptions{
			WindowBlocks: sampleWindow,
			Stride:       sampleStride,
			CSVPath:      sampleCSVPath,
		}
		return getApp().Sample(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	sampleCmd.Flags().Int64Var(&sampleWindow, "window", 0, "Blocks to walk back from the tip (defaults to config)")
	sampleCmd.Flags().Int64Var(&sampleStride, "stride", 0, "Block increment between samples (defaults to config)")
	sampleCmd.Flags().StringVar(&sampleCSVPath, "csv", "", "Write samples to this CSV file instead of stdout")
}
