package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"flood-watcher/internal/app"
)

var (
	simulateLevel float64
	simulateRain  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one analysis cycle against a synthetic situation and send the alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRain < 0 {
			return errors.New("--rain must not be negative")
		}

		opts := app.SimulateOptions{
			LevelM:   simulateLevel,
			Rain3DMM: simulateRain,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateLevel, "level", 9.0, "Synthetic water level at every station (m MSL)")
	simulateCmd.Flags().Float64Var(&simulateRain, "rain", 200, "Synthetic 3-day rain accumulation (mm)")
}
