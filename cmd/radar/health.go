package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pauljones0/deal-radar/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Audit the store invariants",
	Long: `Scan every deal and report invariant violations.

An archived deal whose last_seen_at moved after --since fails the audit and the
command exits with status 2. Over-bound evidence lists and missing seen counts are
reported as warnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetDuration("since")
		ctx := cmd.Context()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Checker.Check(ctx, time.Now().Add(-window))
		if err != nil {
			return err
		}
		printHealth(report)
		if report.Failed() {
			return failOnViolation(health.Err(report))
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Duration("since", 24*time.Hour, "How far back an archived deal must not have been touched")
	rootCmd.AddCommand(healthCmd)
}
