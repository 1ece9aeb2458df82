package cli

import (
	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Fit the upstream lag model and print level projections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Predict(cmd.Context())
	},
}
