package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/deal-radar/internal/identity"
	"github.com/pauljones0/deal-radar/internal/lifecycle"
	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/validator"
)

// DefaultEvidenceURLsMax bounds evidence_urls per deal.
const DefaultEvidenceURLsMax = 20

// Outcome is what an upsert did to the store.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeMerged
	// OutcomeFrozen means the deal is archived and nothing was written.
	OutcomeFrozen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeMerged:
		return "merged"
	case OutcomeFrozen:
		return "frozen"
	}
	return "unknown"
}

// UpsertResult describes one processed record.
type UpsertResult struct {
	Key         string
	Outcome     Outcome
	Reactivated bool
}

// EngineOptions configures an Engine. Zero values select the defaults.
type EngineOptions struct {
	EvidenceURLsMax int
	Policy          *lifecycle.Policy
	// StoreTimeout bounds the store calls of one record.
	StoreTimeout time.Duration
	// Atomic runs lookup, merge and write in one store transaction when the store supports it.
	Atomic bool
	Now    func() time.Time
}

// Engine converges sightings into deals. It keeps no state between calls.
type Engine struct {
	store        DealStore
	tx           TxDealStore
	resolver     *identity.Resolver
	validate     *validator.Validator
	policy       lifecycle.Policy
	evidenceMax  int
	storeTimeout time.Duration
	now          func() time.Time
}

func NewEngine(store DealStore, opts EngineOptions) *Engine {
	e := &Engine{
		store:        store,
		resolver:     identity.New(),
		validate:     validator.New(),
		policy:       lifecycle.DefaultPolicy(),
		evidenceMax:  opts.EvidenceURLsMax,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	}
	if e.evidenceMax <= 0 {
		e.evidenceMax = DefaultEvidenceURLsMax
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.Atomic {
		if tx, ok := store.(TxDealStore); ok {
			e.tx = tx
		} else {
			slog.Warn("Store has no transactions, falling back to read-modify-write upserts")
		}
	}
	return e
}

// EvidenceMax is the evidence_urls bound the engine enforces.
func (e *Engine) EvidenceMax() int { return e.evidenceMax }

// Atomic reports whether upserts run inside store transactions.
func (e *Engine) Atomic() bool { return e.tx != nil }

// ProcessBatch upserts records one at a time. Per-record failures are counted and logged,
// never returned.
func (e *Engine) ProcessBatch(ctx context.Context, records []models.Record) models.BatchResult {
	var res models.BatchResult
	for _, rec := range records {
		if ctx.Err() != nil {
			// every remaining record is a per-item failure, not a hang
			res.CountError(models.KindLookup)
			continue
		}
		out, err := e.Upsert(ctx, rec)
		if err != nil {
			kind := models.KindOf(err)
			res.CountError(kind)
			slog.Warn("Failed to upsert record", "kind", kind, "url", rec.URL, "error", err)
			continue
		}
		switch out.Outcome {
		case OutcomeCreated:
			res.Created++
			res.Processed++
		case OutcomeMerged:
			res.Merged++
			res.Processed++
		case OutcomeFrozen:
			res.Frozen++
		}
		if out.Reactivated {
			res.Reactivated++
		}
	}
	return res
}

// Upsert resolves rec and merges it into the store.
func (e *Engine) Upsert(ctx context.Context, rec models.Record) (UpsertResult, error) {
	r, err := e.resolver.Resolve(rec)
	if err != nil {
		return UpsertResult{}, err
	}

	if e.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
	}

	now := e.now().UTC()
	if e.tx != nil {
		return e.upsertTx(ctx, r, now)
	}
	return e.upsertReadModifyWrite(ctx, r, now)
}

func (e *Engine) upsertTx(ctx context.Context, r identity.Resolved, now time.Time) (UpsertResult, error) {
	var out UpsertResult
	err := e.tx.UpdateDealTx(ctx, r.DedupeKey, func(existing *models.Deal) (*models.Deal, error) {
		next, res := Merge(existing, r, now, e.policy, e.evidenceMax)
		if err := e.check(next, r); err != nil {
			return nil, err
		}
		out = res
		return next, nil
	})
	if err != nil {
		// A rejected merge surfaces as-is, whatever the store wrapped it in.
		var ie *models.ItemError
		if errors.As(err, &ie) {
			return UpsertResult{}, ie
		}
		return UpsertResult{}, itemError(models.KindOf(err), r, err)
	}
	return out, nil
}

// upsertReadModifyWrite reads, merges client-side and writes the full row. Two concurrent
// upserts of one key can lose an increment or an evidence merge.
func (e *Engine) upsertReadModifyWrite(ctx context.Context, r identity.Resolved, now time.Time) (UpsertResult, error) {
	existing, err := e.store.GetDeal(ctx, r.DedupeKey)
	if err != nil {
		return UpsertResult{}, itemError(models.KindLookup, r, err)
	}

	if existing == nil {
		next, out := Merge(nil, r, now, e.policy, e.evidenceMax)
		if err := e.check(next, r); err != nil {
			return UpsertResult{}, err
		}
		createErr := e.store.CreateDeal(ctx, *next)
		if createErr == nil {
			return out, nil
		}
		if !errors.Is(createErr, models.ErrDealExists) {
			return UpsertResult{}, itemError(models.KindWrite, r, createErr)
		}

		// Race: another writer created it between our read and create.
		existing, err = e.store.GetDeal(ctx, r.DedupeKey)
		if err != nil {
			return UpsertResult{}, itemError(models.KindLookup, r, fmt.Errorf("recovering from create race: %w", err))
		}
		if existing == nil {
			return UpsertResult{}, itemError(models.KindLookup, r, errors.New("deal claimed to exist but returned nil"))
		}
	}

	next, out := Merge(existing, r, now, e.policy, e.evidenceMax)
	if next == nil {
		return out, nil
	}
	if err := e.check(next, r); err != nil {
		return UpsertResult{}, err
	}
	if err := e.store.PutDeal(ctx, *next); err != nil {
		return UpsertResult{}, itemError(models.KindWrite, r, err)
	}
	return out, nil
}

// check rejects a merged deal that would violate the persisted schema.
func (e *Engine) check(next *models.Deal, r identity.Resolved) error {
	if next == nil {
		return nil
	}
	if err := e.validate.ValidateDeal(*next); err != nil {
		return itemError(models.KindInput, r, fmt.Errorf("%w: %w", models.ErrInvalidRecord, err))
	}
	return nil
}

func itemError(kind models.ErrorKind, r identity.Resolved, err error) error {
	return &models.ItemError{Kind: kind, Key: r.DedupeKey, URL: r.URL, Err: err}
}

// Merge computes the next state of a deal for one sighting. It is pure.
// A nil next deal means nothing must be written.
func Merge(existing *models.Deal, r identity.Resolved, now time.Time, p lifecycle.Policy, evidenceMax int) (*models.Deal, UpsertResult) {
	res := UpsertResult{Key: r.DedupeKey}

	if existing == nil {
		d := lifecycle.Transition("", lifecycle.EventFirstSighting, nil, p)
		next := &models.Deal{
			DedupeKey:     r.DedupeKey,
			Title:         r.Title,
			CanonicalName: r.CanonicalName,
			OneLiner:      r.OneLiner,
			URL:           r.URL,
			Description:   r.Description,
			EvidenceURLs:  identity.BoundHead(r.EvidenceURLs, evidenceMax),
			Hostname:      r.Hostname,
			Topic:         r.Topic,
			Status:        d.Status,
			SeenCount:     1,
			FirstSeenAt:   now,
			LastSeenAt:    now,
			Score:         r.Score,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		res.Outcome = OutcomeCreated
		return next, res
	}

	d := lifecycle.Transition(existing.Status, lifecycle.EventResighting, lifecycle.SinceDismissal(existing.DismissedAt, now), p)
	if d.Frozen {
		res.Outcome = OutcomeFrozen
		return nil, res
	}

	next := existing.Clone()
	next.EvidenceURLs = identity.MergeEvidence(existing.EvidenceURLs, r.EvidenceURLs, evidenceMax)
	next.SeenCount++
	next.LastSeenAt = now
	next.UpdatedAt = now
	if next.FirstSeenAt.IsZero() {
		next.FirstSeenAt = now
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	next.URL = r.URL
	next.Hostname = r.Hostname
	next.CanonicalName = r.CanonicalName
	next.OneLiner = r.OneLiner
	if r.Title != "" {
		next.Title = r.Title
	}
	if r.Description != "" {
		next.Description = r.Description
	}
	if r.Topic != "" {
		next.Topic = r.Topic
	}
	if r.Score != nil {
		s := *r.Score
		next.Score = &s
	}

	next.Status = d.Status
	if d.Reactivated {
		next.DismissedReason = nil
		next.DismissedAt = nil
		res.Reactivated = true
	}
	res.Outcome = OutcomeMerged
	return &next, res
}
