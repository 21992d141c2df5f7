package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/pauljones0/deal-radar/internal/models"
)

// MemoryStore keeps deals in process. It backs tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	deals map[string]models.Deal
	// legacy rows whose seen_count is absent, keyed by dedupe key
	nullSeen map[string]bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		deals:    make(map[string]models.Deal),
		nullSeen: make(map[string]bool),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetDeal(ctx context.Context, key string) (*models.Deal, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(models.ErrLookup, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[key]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (m *MemoryStore) CreateDeal(ctx context.Context, deal models.Deal) error {
	if err := ctx.Err(); err != nil {
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[deal.DedupeKey]; ok {
		return models.ErrDealExists
	}
	m.deals[deal.DedupeKey] = deal.Clone()
	return nil
}

func (m *MemoryStore) PutDeal(ctx context.Context, deal models.Deal) error {
	if err := ctx.Err(); err != nil {
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals[deal.DedupeKey] = deal.Clone()
	delete(m.nullSeen, deal.DedupeKey)
	return nil
}

// UpdateDealTx holds the store lock for the whole read-merge-write.
func (m *MemoryStore) UpdateDealTx(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return classify(models.ErrLookup, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *models.Deal
	if d, ok := m.deals[key]; ok {
		c := d.Clone()
		existing = &c
	}
	next, err := fn(existing)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	m.deals[key] = next.Clone()
	delete(m.nullSeen, key)
	return nil
}

// ScanDeals visits every deal in key order.
func (m *MemoryStore) ScanDeals(ctx context.Context, fn func(models.Deal) error) error {
	for _, d := range m.sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) ScanSnapshots(ctx context.Context, fn func(models.DealSnapshot) error) error {
	m.mu.Lock()
	nullSeen := make(map[string]bool, len(m.nullSeen))
	for k := range m.nullSeen {
		nullSeen[k] = true
	}
	m.mu.Unlock()

	return m.ScanDeals(ctx, func(d models.Deal) error {
		s := d.Snapshot()
		if nullSeen[d.DedupeKey] {
			s.SeenCount = nil
		}
		return fn(s)
	})
}

func (m *MemoryStore) DealsByStatus(ctx context.Context, status models.Status) ([]models.Deal, error) {
	var out []models.Deal
	err := m.ScanDeals(ctx, func(d models.Deal) error {
		if d.Status == status {
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

// MarkSeenCountNull simulates a legacy row with no seen_count. Only the health checker notices.
func (m *MemoryStore) MarkSeenCountNull(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[key]; ok {
		m.nullSeen[key] = true
	}
}

func (m *MemoryStore) CountDeals(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deals), nil
}

func (m *MemoryStore) sorted() []models.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Deal, 0, len(m.deals))
	for _, d := range m.deals {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupeKey < out[j].DedupeKey })
	return out
}
