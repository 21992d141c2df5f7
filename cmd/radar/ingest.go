package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pauljones0/deal-radar/internal/source"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Process records from a JSON or NDJSON file",
	Long: `Process records exported by an external searcher.

The file may hold a JSON array of records, an object wrapping the array under
"results", "organic", "items" or "records", a single record, or one record per line.

Examples:
  radar ingest results.json
  radar ingest --topic ai results.ndjson`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		ctx := cmd.Context()

		records, err := source.NewFileSource(args[0], topic).Fetch(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("%s holds no records", args[0])
		}

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.Processor.Ingest(ctx, records)
		printBatch(rep.Result)
		printHealth(rep.Health)
		return failOnViolation(err)
	},
}

func init() {
	ingestCmd.Flags().StringP("topic", "t", "", "Topic for records that carry none")
	rootCmd.AddCommand(ingestCmd)
}
