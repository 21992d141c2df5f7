// Package health audits the deal store after a batch.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/deal-radar/internal/models"
)

// SnapshotScanner streams the audited projection of every stored deal.
type SnapshotScanner interface {
	ScanSnapshots(ctx context.Context, fn func(models.DealSnapshot) error) error
}

type Checker struct {
	store         SnapshotScanner
	evidenceBound int
}

func New(store SnapshotScanner, evidenceBound int) *Checker {
	return &Checker{store: store, evidenceBound: evidenceBound}
}

// Check re-reads the store. since is the start of the batch being audited: an archived deal
// whose last_seen_at is later than since was mutated by that batch.
func (c *Checker) Check(ctx context.Context, since time.Time) (models.HealthReport, error) {
	report := models.HealthReport{Since: since, EvidenceBound: c.evidenceBound}

	err := c.store.ScanSnapshots(ctx, func(s models.DealSnapshot) error {
		report.Scanned++
		if c.evidenceBound > 0 && s.EvidenceURLs > c.evidenceBound {
			report.EvidenceOverBound++
		}
		if s.SeenCount == nil {
			report.SeenCountNull++
		}
		if s.LastSeenAt == nil {
			return nil
		}
		if report.LatestLastSeenAt == nil || s.LastSeenAt.After(*report.LatestLastSeenAt) {
			t := *s.LastSeenAt
			report.LatestLastSeenAt = &t
		}
		if s.Status == models.StatusArchived && s.LastSeenAt.After(since) {
			report.ArchivedMutatedInWindow++
			slog.Error("Archived deal was mutated during batch", "key", s.DedupeKey, "last_seen_at", *s.LastSeenAt, "since", since)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("health check scan failed: %w", err)
	}

	for _, v := range report.Violations() {
		if v.Fatal {
			continue
		}
		slog.Warn("Invariant warning", "invariant", v.Invariant, "count", v.Count)
	}
	return report, nil
}

// Err converts a failed report into an error wrapping models.ErrInvariantViolation.
func Err(report models.HealthReport) error {
	if !report.Failed() {
		return nil
	}
	var failed []string
	for _, v := range report.Violations() {
		if v.Fatal {
			failed = append(failed, fmt.Sprintf("%s=%d", v.Invariant, v.Count))
		}
	}
	return fmt.Errorf("%w: %v", models.ErrInvariantViolation, failed)
}
