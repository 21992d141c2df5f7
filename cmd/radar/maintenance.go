package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pauljones0/deal-radar/internal/storage"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-derive normalized fields on existing deals",
	Long: `Re-normalize url and hostname, deduplicate and bound evidence_urls, and fill an
empty canonical_name or one_liner on every non-archived deal.

dedupe_key, seen_count, timestamps and status are never changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Engine.Backfill(ctx, a.Store)
		fmt.Printf("%s backfill: scanned %d, updated %d, skipped %d, errors %d\n",
			cyan("▶"), res.Scanned, res.Updated, res.Skipped, res.Errors)
		if err != nil {
			return err
		}
		if res.Errors > 0 {
			return fmt.Errorf("%d deal(s) could not be rewritten", res.Errors)
		}
		fmt.Printf("  %s done\n", green("✓"))
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reactivate dismissed deals re-sighted within the reactivation window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Engine.SweepDismissed(ctx, a.Store)
		if err != nil {
			return err
		}
		fmt.Printf("%s reactivated %d dismissed deal(s)\n", green("✓"), n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pg, ok := a.Store.(*storage.PostgresStore)
		if !ok {
			fmt.Printf("%s %s backend needs no migration\n", yellow("ⓘ"), a.Config.StoreBackend)
			return nil
		}
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		fmt.Printf("%s schema up to date\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
}
