package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/health"
	"github.com/pauljones0/deal-radar/internal/models"
)

// RunLockName is the distributed lock held for the duration of a batch.
const RunLockName = "deal-radar:batch"

type Processor interface {
	ProcessDeals(ctx context.Context) error
}

// RunReport is everything one batch produced.
type RunReport struct {
	Result models.BatchResult  `json:"result"`
	Health models.HealthReport `json:"health"`
}

type DealProcessor struct {
	engine       *Engine
	sources      []RecordSource
	scanner      DealScanner
	checker      HealthChecker
	notifier     RunNotifier
	locker       Locker
	sweep        bool
	lockTTL      time.Duration
	fetchTimeout time.Duration
}

// New wires a processor. scanner is only needed when SweepDismissed is on; notifier and
// locker may be nil.
func New(engine *Engine, sources []RecordSource, scanner DealScanner, checker HealthChecker, n RunNotifier, l Locker, cfg *config.Config) *DealProcessor {
	return &DealProcessor{
		engine:       engine,
		sources:      sources,
		scanner:      scanner,
		checker:      checker,
		notifier:     n,
		locker:       l,
		sweep:        cfg.SweepDismissed && scanner != nil,
		lockTTL:      cfg.RunLockTTL,
		fetchTimeout: cfg.FetchTimeout,
	}
}

func (p *DealProcessor) ProcessDeals(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}

// Run fetches from every source and processes the records as one batch.
func (p *DealProcessor) Run(ctx context.Context) (RunReport, error) {
	return p.run(ctx, func(ctx context.Context) []models.Record {
		var records []models.Record
		for _, src := range p.sources {
			recs, err := p.fetch(ctx, src)
			if err != nil {
				slog.Warn("Record source failed", "source", src.Name(), "error", err)
				continue
			}
			slog.Info("Fetched records", "source", src.Name(), "count", len(recs))
			records = append(records, recs...)
		}
		return records
	})
}

// Ingest processes records supplied by the caller as one batch.
func (p *DealProcessor) Ingest(ctx context.Context, records []models.Record) (RunReport, error) {
	return p.run(ctx, func(context.Context) []models.Record { return records })
}

func (p *DealProcessor) fetch(ctx context.Context, src RecordSource) ([]models.Record, error) {
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}
	return src.Fetch(ctx)
}

func (p *DealProcessor) run(ctx context.Context, collect func(context.Context) []models.Record) (RunReport, error) {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)
	started := p.engine.now().UTC()

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, RunLockName, p.lockTTL)
		if err != nil {
			return RunReport{}, fmt.Errorf("run %s: %w", runID, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to release run lock", "error", err)
			}
		}()
	}

	records := collect(ctx)
	log.Info("Starting batch", "records", len(records), "atomic", p.engine.Atomic())

	res := p.engine.ProcessBatch(ctx, records)
	res.RunID = runID
	res.Fetched = len(records)
	res.StartedAt = started

	if p.sweep {
		swept, err := p.engine.SweepDismissed(ctx, p.scanner)
		if err != nil {
			log.Warn("Dismissed sweep failed", "error", err)
		}
		res.Swept = swept
	}

	report, err := p.checker.Check(ctx, started)
	res.FinishedAt = p.engine.now().UTC()
	out := RunReport{Result: res, Health: report}
	if err != nil {
		return out, fmt.Errorf("run %s: %w", runID, err)
	}

	log.Info("Finished processing",
		"fetched", res.Fetched,
		"processed", res.Processed,
		"created", res.Created,
		"merged", res.Merged,
		"frozen", res.Frozen,
		"reactivated", res.Reactivated,
		"swept", res.Swept,
		"errors", res.Errors,
		"duration", res.Duration(),
	)

	if p.notifier != nil {
		if err := p.notifier.SendSummary(ctx, res, report); err != nil {
			log.Warn("Failed to send run summary", "error", err)
		}
	}

	if report.Failed() {
		log.Error("Invariant violation detected", "violations", report.Violations())
		if p.notifier != nil {
			if err := p.notifier.SendAlert(ctx, runID, report); err != nil {
				log.Warn("Failed to send invariant alert", "error", err)
			}
		}
		return out, fmt.Errorf("run %s: %w", runID, health.Err(report))
	}
	return out, nil
}
