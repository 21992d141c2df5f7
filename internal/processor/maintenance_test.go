package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/storage"
)

func dismissedDeal(key string, dismissedAgo, seenAgo time.Duration) models.Deal {
	d := existingDeal(key, models.StatusDismissed)
	d.DismissedReason = ptr("duplicate")
	d.DismissedAt = ptr(testNow.Add(-dismissedAgo))
	d.LastSeenAt = testNow.Add(-seenAgo)
	return d
}

func TestSweepDismissed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	e := NewEngine(store, EngineOptions{Atomic: true, Now: newClock().now})

	// re-sighted after dismissal, inside the window
	seed(t, store, dismissedDeal("url:resighted", 2*24*time.Hour, time.Hour))
	// not re-sighted since dismissal
	seed(t, store, dismissedDeal("url:stale", 2*24*time.Hour, 3*24*time.Hour))
	// re-sighted, but dismissed too long ago
	seed(t, store, dismissedDeal("url:old", 9*24*time.Hour, time.Hour))
	// legacy: no dismissed_at
	legacy := dismissedDeal("url:legacy", 0, time.Hour)
	legacy.DismissedAt = nil
	seed(t, store, legacy)
	seed(t, store, existingDeal("url:archived", models.StatusArchived))

	swept, err := e.SweepDismissed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	want := map[string]models.Status{
		"url:resighted": models.StatusNew,
		"url:stale":     models.StatusDismissed,
		"url:old":       models.StatusDismissed,
		"url:legacy":    models.StatusDismissed,
		"url:archived":  models.StatusArchived,
	}
	for key, status := range want {
		d, err := store.GetDeal(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, status, d.Status, key)
	}

	d, err := store.GetDeal(ctx, "url:resighted")
	require.NoError(t, err)
	assert.Nil(t, d.DismissedAt)
	assert.Nil(t, d.DismissedReason)
	assert.Equal(t, 4, d.SeenCount, "sweep must not touch counters")
}

func TestSweepDismissed_ReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	e := NewEngine(store, EngineOptions{Atomic: false, Now: newClock().now})
	require.False(t, e.Atomic())

	seed(t, store, dismissedDeal("url:resighted", 24*time.Hour, time.Hour))
	swept, err := e.SweepDismissed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	e := NewEngine(store, EngineOptions{EvidenceURLsMax: 3, Atomic: true, Now: newClock().now})

	messy := existingDeal("url:messy", models.StatusShortlisted)
	messy.URL = "HTTP://WWW.Acme.io/launch/?utm_source=x#top"
	messy.Hostname = ""
	messy.CanonicalName = ""
	messy.OneLiner = ""
	messy.Title = "Acme Launch - Product Hunt"
	messy.Description = strings.Repeat("word ", 40)
	messy.EvidenceURLs = []string{
		"https://acme.io/launch",
		"http://acme.io/launch/",
		"https://a.example.com/1",
		"https://a.example.com/2",
		"https://a.example.com/3",
	}
	seed(t, store, messy)

	archived := existingDeal("url:archived", models.StatusArchived)
	archived.URL = "HTTP://Acme.io/"
	archived.CanonicalName = ""
	seed(t, store, archived)

	clean := existingDeal("url:clean", models.StatusNew)
	seed(t, store, clean)

	res, err := e.Backfill(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 3, Updated: 1, Skipped: 2}, res)

	got, err := store.GetDeal(ctx, "url:messy")
	require.NoError(t, err)
	assert.Equal(t, "url:messy", got.DedupeKey)
	assert.Equal(t, "https://acme.io/launch", got.URL)
	assert.Equal(t, "acme.io", got.Hostname)
	assert.Equal(t, "Acme Launch", got.CanonicalName)
	assert.LessOrEqual(t, len([]rune(got.OneLiner)), 120)
	assert.NotEmpty(t, got.OneLiner)
	assert.Equal(t, []string{"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3"}, got.EvidenceURLs)
	assert.Equal(t, messy.SeenCount, got.SeenCount)
	assert.Equal(t, messy.Status, got.Status)
	assert.True(t, messy.LastSeenAt.Equal(got.LastSeenAt))

	untouched, err := store.GetDeal(ctx, "url:archived")
	require.NoError(t, err)
	assert.Equal(t, archived, *untouched)
}

// archivingScanner hands out each deal as read, then archives it in the store before the
// caller gets to write, the way a curator acting mid-job would.
type archivingScanner struct {
	t     *testing.T
	store *storage.MemoryStore
}

func (s archivingScanner) archive(d models.Deal) {
	a := d.Clone()
	a.Status = models.StatusArchived
	require.NoError(s.t, s.store.PutDeal(context.Background(), a))
}

func (s archivingScanner) ScanDeals(ctx context.Context, fn func(models.Deal) error) error {
	return s.store.ScanDeals(ctx, func(d models.Deal) error {
		s.archive(d)
		return fn(d)
	})
}

func (s archivingScanner) DealsByStatus(ctx context.Context, status models.Status) ([]models.Deal, error) {
	deals, err := s.store.DealsByStatus(ctx, status)
	for _, d := range deals {
		s.archive(d)
	}
	return deals, err
}

func TestMaintenance_RespectsArchiveMadeAfterScan(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		t.Run(fmt.Sprintf("atomic=%v", atomic), func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemory()
			e := NewEngine(store, EngineOptions{Atomic: atomic, Now: newClock().now})
			scanner := archivingScanner{t: t, store: store}

			messy := existingDeal("url:messy", models.StatusNew)
			messy.URL = "HTTP://WWW.Acme.io/launch/"
			seed(t, store, messy)

			res, err := e.Backfill(ctx, scanner)
			require.NoError(t, err)
			assert.Equal(t, 0, res.Updated)
			got, err := store.GetDeal(ctx, "url:messy")
			require.NoError(t, err)
			assert.Equal(t, models.StatusArchived, got.Status)

			seed(t, store, dismissedDeal("url:resighted", 24*time.Hour, time.Hour))
			swept, err := e.SweepDismissed(ctx, scanner)
			require.NoError(t, err)
			assert.Equal(t, 0, swept)
			got, err = store.GetDeal(ctx, "url:resighted")
			require.NoError(t, err)
			assert.Equal(t, models.StatusArchived, got.Status)
		})
	}
}
