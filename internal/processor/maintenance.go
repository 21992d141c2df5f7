package processor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/pauljones0/deal-radar/internal/identity"
	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/util"
)

// BackfillResult summarizes a backfill pass.
type BackfillResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// rewrite applies fn to a deal already found by a scan. The deal is always re-read right before
// fn runs (under lock when the store has transactions), so a curator change made since the scan
// is respected and an archived deal is never written.
func (e *Engine) rewrite(ctx context.Context, scanned models.Deal, fn func(models.Deal) *models.Deal) (bool, error) {
	if e.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
	}

	if e.tx == nil {
		fresh, err := e.store.GetDeal(ctx, scanned.DedupeKey)
		if err != nil {
			return false, err
		}
		if fresh == nil || fresh.Status == models.StatusArchived {
			return false, nil
		}
		next := fn(*fresh)
		if next == nil {
			return false, nil
		}
		return true, e.store.PutDeal(ctx, *next)
	}

	var changed bool
	err := e.tx.UpdateDealTx(ctx, scanned.DedupeKey, func(existing *models.Deal) (*models.Deal, error) {
		changed = false
		if existing == nil || existing.Status == models.StatusArchived {
			return nil, nil
		}
		next := fn(*existing)
		changed = next != nil
		return next, nil
	})
	return changed, err
}

// SweepDismissed reactivates dismissed deals that were re-sighted after their dismissal and
// whose dismissal is still inside the reactivation window. Deals without dismissed_at are left
// to the upsert path.
func (e *Engine) SweepDismissed(ctx context.Context, scanner DealScanner) (int, error) {
	deals, err := scanner.DealsByStatus(ctx, models.StatusDismissed)
	if err != nil {
		return 0, fmt.Errorf("failed to list dismissed deals: %w", err)
	}

	now := e.now().UTC()
	swept := 0
	for _, deal := range deals {
		changed, err := e.rewrite(ctx, deal, func(d models.Deal) *models.Deal {
			if !e.sweepEligible(d, now) {
				return nil
			}
			next := d.Clone()
			next.Status = models.StatusNew
			next.DismissedReason = nil
			next.DismissedAt = nil
			next.UpdatedAt = now
			return &next
		})
		if err != nil {
			slog.Warn("Failed to reactivate dismissed deal", "key", deal.DedupeKey, "error", err)
			continue
		}
		if changed {
			swept++
			slog.Info("Reactivated dismissed deal", "key", deal.DedupeKey, "name", deal.CanonicalName)
		}
	}
	return swept, nil
}

func (e *Engine) sweepEligible(d models.Deal, now time.Time) bool {
	if d.Status != models.StatusDismissed || d.DismissedAt == nil {
		return false
	}
	if !d.LastSeenAt.After(*d.DismissedAt) {
		return false
	}
	return now.Sub(*d.DismissedAt) <= e.policy.ReactivationWindow
}

// Backfill re-derives normalized and display fields on existing deals. Archived deals are
// skipped; dedupe_key, counters, timestamps and status are never touched.
func (e *Engine) Backfill(ctx context.Context, scanner DealScanner) (BackfillResult, error) {
	var res BackfillResult
	now := e.now().UTC()

	err := scanner.ScanDeals(ctx, func(deal models.Deal) error {
		res.Scanned++
		if deal.Status == models.StatusArchived {
			res.Skipped++
			return nil
		}
		changed, err := e.rewrite(ctx, deal, func(d models.Deal) *models.Deal {
			if d.Status == models.StatusArchived {
				return nil
			}
			next, ok := e.backfillDeal(d)
			if !ok {
				return nil
			}
			next.UpdatedAt = now
			return &next
		})
		switch {
		case err != nil:
			res.Errors++
			slog.Warn("Failed to backfill deal", "key", deal.DedupeKey, "error", err)
		case changed:
			res.Updated++
		default:
			res.Skipped++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("backfill scan failed: %w", err)
	}
	return res, nil
}

// backfillDeal returns the repaired copy of d and whether anything changed.
func (e *Engine) backfillDeal(d models.Deal) (models.Deal, bool) {
	next := d.Clone()

	if n := util.NormalizeURL(d.URL); n != "" {
		next.URL = n
		if next.Hostname == "" {
			next.Hostname = util.Hostname(n)
		}
	}

	var normalized []string
	for _, u := range d.EvidenceURLs {
		if n := util.NormalizeURL(u); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 && next.URL != "" {
		normalized = []string{next.URL}
	}
	next.EvidenceURLs = identity.MergeEvidence(nil, normalized, e.evidenceMax)

	in := identity.Input{
		Record:   models.Record{Title: d.Title, URL: next.URL, Snippet: d.Description},
		Hostname: next.Hostname,
	}
	if next.CanonicalName == "" {
		next.CanonicalName = identity.First(identity.DefaultNameChain(), in, identity.UntitledName)
	}
	if next.OneLiner == "" {
		next.OneLiner = identity.First(identity.DefaultSummaryChain(), in, identity.NoDescription)
	} else if utf8.RuneCountInString(next.OneLiner) > identity.OneLinerMax {
		next.OneLiner = identity.Truncate(next.OneLiner)
	}

	changed := next.URL != d.URL ||
		next.Hostname != d.Hostname ||
		next.CanonicalName != d.CanonicalName ||
		next.OneLiner != d.OneLiner ||
		!slices.Equal(next.EvidenceURLs, d.EvidenceURLs)
	return next, changed
}
