// Package storage persists deals keyed by their dedupe key. Every backend offers the same
// insert-or-update contract plus a transactional read-merge-write.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/pauljones0/deal-radar/internal/models"
)

// UpdateFunc computes the next state of a deal from the current one (nil when absent).
// Returning a nil deal skips the write. It may run more than once when a transaction retries.
type UpdateFunc func(existing *models.Deal) (*models.Deal, error)

// Store is implemented by every backend.
type Store interface {
	GetDeal(ctx context.Context, key string) (*models.Deal, error)
	CreateDeal(ctx context.Context, deal models.Deal) error
	PutDeal(ctx context.Context, deal models.Deal) error
	UpdateDealTx(ctx context.Context, key string, fn UpdateFunc) error
	ScanDeals(ctx context.Context, fn func(models.Deal) error) error
	ScanSnapshots(ctx context.Context, fn func(models.DealSnapshot) error) error
	DealsByStatus(ctx context.Context, status models.Status) ([]models.Deal, error)
	CountDeals(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FirestoreStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// classify tags err with sentinel unless it already carries a store classification.
func classify(sentinel error, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrLookup) || errors.Is(err, models.ErrWrite) || errors.Is(err, models.ErrDealExists) {
		return err
	}
	return fmt.Errorf("%w %s: %w", sentinel, key, err)
}
