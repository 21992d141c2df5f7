package processor

import (
	"context"
	"time"

	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/storage"
)

// DealStore abstracts the storage layer for deal data.
// GetDeal returns (nil, nil) when the key is unknown; CreateDeal fails with
// models.ErrDealExists when it is known.
type DealStore interface {
	GetDeal(ctx context.Context, key string) (*models.Deal, error)
	CreateDeal(ctx context.Context, deal models.Deal) error
	PutDeal(ctx context.Context, deal models.Deal) error
}

// TxDealStore can run a read-merge-write of one deal atomically.
type TxDealStore interface {
	UpdateDealTx(ctx context.Context, key string, fn storage.UpdateFunc) error
}

// DealScanner reads deals back in bulk for the sweep and backfill jobs.
type DealScanner interface {
	ScanDeals(ctx context.Context, fn func(models.Deal) error) error
	DealsByStatus(ctx context.Context, status models.Status) ([]models.Deal, error)
}

// RecordSource yields raw records for one batch.
type RecordSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Record, error)
}

// HealthChecker audits the store after a batch.
type HealthChecker interface {
	Check(ctx context.Context, since time.Time) (models.HealthReport, error)
}

// RunNotifier reports batch outcomes.
type RunNotifier interface {
	SendSummary(ctx context.Context, res models.BatchResult, report models.HealthReport) error
	SendAlert(ctx context.Context, runID string, report models.HealthReport) error
}

// Locker guards a batch against overlapping automated runs.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}
