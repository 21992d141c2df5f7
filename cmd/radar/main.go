// Command radar runs deal-radar batches and maintenance jobs from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pauljones0/deal-radar/internal/app"
	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/models"
)

// exitError carries a non-zero exit code out of a command without printing usage.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var (
	backendFlag string

	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Deduplicate and track startup and product sightings",
	Long: `radar ingests raw sightings of startups and products, converges them into one
deal per real-world item, and audits the store afterwards.

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Override STORE_BACKEND (firestore, postgres, memory)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// loadApp reads the configuration, installs the logger and wires the application.
func loadApp(ctx context.Context) (*app.App, error) {
	if backendFlag != "" {
		os.Setenv("STORE_BACKEND", backendFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setLogger(cfg)
	return app.New(ctx, cfg)
}

func printBatch(res models.BatchResult) {
	fmt.Printf("%s run %s\n", cyan("▶"), res.RunID)
	fmt.Printf("  fetched %d, processed %d (new %d, merged %d), frozen %d, reactivated %d\n",
		res.Fetched, res.Processed, res.Created, res.Merged, res.Frozen, res.Reactivated)
	if res.Swept > 0 {
		fmt.Printf("  swept %d dismissed deal(s)\n", res.Swept)
	}
	if res.Errors > 0 {
		fmt.Printf("  %s %d error(s): input %d, lookup %d, write %d\n",
			yellow("!"), res.Errors, res.InputErrors, res.LookupErrors, res.WriteErrors)
	}
	fmt.Printf("  took %s\n", res.Duration())
}

func printHealth(report models.HealthReport) {
	latest := "never"
	if report.LatestLastSeenAt != nil {
		latest = report.LatestLastSeenAt.Format("2006-01-02 15:04:05 MST")
	}
	fmt.Printf("%s health (%d deals scanned, latest sighting %s)\n", cyan("⚕"), report.Scanned, latest)

	violations := report.Violations()
	if len(violations) == 0 {
		fmt.Printf("  %s all invariants hold\n", green("✓"))
		return
	}
	for _, v := range violations {
		mark := yellow("!")
		if v.Fatal {
			mark = red("✗")
		}
		fmt.Printf("  %s %s: %d deal(s)\n", mark, v.Invariant, v.Count)
	}
}

// failOnViolation turns a failed audit into exit code 2.
func failOnViolation(err error) error {
	if errors.Is(err, models.ErrInvariantViolation) {
		return &exitError{code: 2, err: err}
	}
	return err
}
