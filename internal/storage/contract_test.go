package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/models"
)

func sampleDeal(key string, status models.Status) models.Deal {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Deal{
		DedupeKey:     key,
		Title:         "Foo — TechCrunch",
		CanonicalName: "Foo",
		OneLiner:      "Foo does things",
		URL:           "https://example.com/foo",
		EvidenceURLs:  []string{"https://example.com/foo"},
		Hostname:      "example.com",
		Topic:         "ai",
		Status:        status,
		SeenCount:     1,
		FirstSeenAt:   now,
		LastSeenAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing is nil", func(t *testing.T) {
		got, err := s.GetDeal(ctx, "url:missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("create then exists", func(t *testing.T) {
		d := sampleDeal("url:create", models.StatusNew)
		require.NoError(t, s.CreateDeal(ctx, d))
		err := s.CreateDeal(ctx, d)
		assert.True(t, errors.Is(err, models.ErrDealExists), "got %v", err)

		got, err := s.GetDeal(ctx, d.DedupeKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, d.CanonicalName, got.CanonicalName)
		assert.Equal(t, d.EvidenceURLs, got.EvidenceURLs)
		assert.Equal(t, 1, got.SeenCount)
		assert.True(t, d.FirstSeenAt.Equal(got.FirstSeenAt))
	})

	t.Run("put overwrites", func(t *testing.T) {
		d := sampleDeal("url:put", models.StatusNew)
		require.NoError(t, s.PutDeal(ctx, d))
		d.SeenCount = 5
		d.Status = models.StatusShortlisted
		require.NoError(t, s.PutDeal(ctx, d))

		got, err := s.GetDeal(ctx, d.DedupeKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 5, got.SeenCount)
		assert.Equal(t, models.StatusShortlisted, got.Status)
	})

	t.Run("tx creates and updates", func(t *testing.T) {
		key := "url:tx"
		for i := 0; i < 3; i++ {
			err := s.UpdateDealTx(ctx, key, func(existing *models.Deal) (*models.Deal, error) {
				if existing == nil {
					d := sampleDeal(key, models.StatusNew)
					return &d, nil
				}
				next := existing.Clone()
				next.SeenCount++
				return &next, nil
			})
			require.NoError(t, err)
		}
		got, err := s.GetDeal(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.SeenCount)
	})

	t.Run("tx nil result skips write", func(t *testing.T) {
		key := "url:tx-skip"
		require.NoError(t, s.UpdateDealTx(ctx, key, func(*models.Deal) (*models.Deal, error) { return nil, nil }))
		got, err := s.GetDeal(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("tx error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.UpdateDealTx(ctx, "url:tx-err", func(*models.Deal) (*models.Deal, error) { return nil, boom })
		assert.True(t, errors.Is(err, boom), "got %v", err)
	})

	t.Run("status query and snapshots", func(t *testing.T) {
		dismissed := sampleDeal("url:dismissed", models.StatusDismissed)
		reason := "not relevant"
		at := dismissed.LastSeenAt.Add(-time.Hour)
		dismissed.DismissedReason = &reason
		dismissed.DismissedAt = &at
		require.NoError(t, s.PutDeal(ctx, dismissed))

		deals, err := s.DealsByStatus(ctx, models.StatusDismissed)
		require.NoError(t, err)
		require.Len(t, deals, 1)
		require.NotNil(t, deals[0].DismissedAt)
		assert.True(t, at.Equal(*deals[0].DismissedAt))
		require.NotNil(t, deals[0].DismissedReason)
		assert.Equal(t, reason, *deals[0].DismissedReason)

		var snaps int
		err = s.ScanSnapshots(ctx, func(snap models.DealSnapshot) error {
			snaps++
			if snap.DedupeKey == dismissed.DedupeKey {
				assert.Equal(t, models.StatusDismissed, snap.Status)
				assert.Equal(t, 1, snap.EvidenceURLs)
				require.NotNil(t, snap.SeenCount)
				assert.Equal(t, 1, *snap.SeenCount)
			}
			return nil
		})
		require.NoError(t, err)

		n, err := s.CountDeals(ctx)
		require.NoError(t, err)
		assert.Equal(t, snaps, n)

		var scanned int
		require.NoError(t, s.ScanDeals(ctx, func(models.Deal) error { scanned++; return nil }))
		assert.Equal(t, n, scanned)
	})
}
