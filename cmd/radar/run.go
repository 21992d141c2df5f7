package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every configured feed and process the records as one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.Processor.Run(ctx)
		printBatch(rep.Result)
		printHealth(rep.Health)
		return failOnViolation(err)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
