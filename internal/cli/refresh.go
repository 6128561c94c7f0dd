package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shielded-feed/internal/app"
)

var refreshSupply float64

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one aggregation cycle and print the timeline entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if refreshSupply < 0 {
			return errors.New("--supply 必须大于等于 0")
		}

		opts := app.RefreshOptions{Supply: decimal.NewFromFloat(refreshSupply)}
		return getApp().Refresh(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	refreshCmd.Flags().Float64Var(&refreshSupply, "supply", 0, "Use a fixed circulating supply instead of the supply feed")
}
