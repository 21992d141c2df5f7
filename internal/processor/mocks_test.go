package processor

import (
	"context"
	"sync"
	"time"

	"github.com/pauljones0/deal-radar/internal/models"
)

// --- Mock implementations ---

// mockStore is a read-modify-write store without transactions.
type mockStore struct {
	mu     sync.Mutex
	deals  map[string]models.Deal
	getErr error
	putErr error
	// raceOnCreate makes the first GetDeal miss and the following CreateDeal lose to a
	// concurrent writer that stored raceDeal.
	raceOnCreate bool
	raceDeal     models.Deal
	gets, puts   int
}

func newMockStore() *mockStore {
	return &mockStore{deals: make(map[string]models.Deal)}
}

func (m *mockStore) GetDeal(_ context.Context, key string) (*models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.raceOnCreate {
		return nil, nil
	}
	d, ok := m.deals[key]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (m *mockStore) CreateDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceOnCreate {
		m.raceOnCreate = false
		m.deals[deal.DedupeKey] = m.raceDeal.Clone()
		return models.ErrDealExists
	}
	if _, ok := m.deals[deal.DedupeKey]; ok {
		return models.ErrDealExists
	}
	if m.putErr != nil {
		return m.putErr
	}
	m.deals[deal.DedupeKey] = deal.Clone()
	return nil
}

func (m *mockStore) PutDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.deals[deal.DedupeKey] = deal.Clone()
	return nil
}

// blockingStore never answers until the context ends.
type blockingStore struct{}

func (blockingStore) GetDeal(ctx context.Context, _ string) (*models.Deal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) CreateDeal(ctx context.Context, _ models.Deal) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) PutDeal(ctx context.Context, _ models.Deal) error {
	<-ctx.Done()
	return ctx.Err()
}

type mockSource struct {
	name    string
	records []models.Record
	err     error
	calls   int
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(_ context.Context) ([]models.Record, error) {
	m.calls++
	return m.records, m.err
}

type mockNotifier struct {
	summaries []models.BatchResult
	alerts    []models.HealthReport
	err       error
}

func (m *mockNotifier) SendSummary(_ context.Context, res models.BatchResult, _ models.HealthReport) error {
	m.summaries = append(m.summaries, res)
	return m.err
}

func (m *mockNotifier) SendAlert(_ context.Context, _ string, report models.HealthReport) error {
	m.alerts = append(m.alerts, report)
	return m.err
}

type mockLocker struct {
	err      error
	acquired []string
	released int
	ttl      time.Duration
}

func (m *mockLocker) Acquire(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired = append(m.acquired, name)
	m.ttl = ttl
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}
