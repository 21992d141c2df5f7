package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/models"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.PutDeal(ctx, sampleDeal("url:a", models.StatusNew)))

	got, err := s.GetDeal(ctx, "url:a")
	require.NoError(t, err)
	got.EvidenceURLs[0] = "mutated"
	got.SeenCount = 99

	again, err := s.GetDeal(ctx, "url:a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/foo", again.EvidenceURLs[0])
	assert.Equal(t, 1, again.SeenCount)
}

func TestMemoryStore_NullSeenCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.PutDeal(ctx, sampleDeal("url:legacy", models.StatusNew)))
	s.MarkSeenCountNull("url:legacy")

	var nulls int
	require.NoError(t, s.ScanSnapshots(ctx, func(snap models.DealSnapshot) error {
		if snap.SeenCount == nil {
			nulls++
		}
		return nil
	}))
	assert.Equal(t, 1, nulls)

	// A write repairs the row.
	require.NoError(t, s.PutDeal(ctx, sampleDeal("url:legacy", models.StatusNew)))
	nulls = 0
	require.NoError(t, s.ScanSnapshots(ctx, func(snap models.DealSnapshot) error {
		if snap.SeenCount == nil {
			nulls++
		}
		return nil
	}))
	assert.Zero(t, nulls)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemory()

	_, err := s.GetDeal(ctx, "url:a")
	assert.True(t, errors.Is(err, models.ErrLookup), "got %v", err)

	err = s.PutDeal(ctx, sampleDeal("url:a", models.StatusNew))
	assert.True(t, errors.Is(err, models.ErrWrite), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled))
}
