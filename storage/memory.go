package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"product-ingest/models"
)

// ErrInvalidRow mirrors a NOT NULL violation in the in-memory store.
var ErrInvalidRow = errors.New("invalid row")

type historyKey struct {
	name   string
	source string
	date   time.Time
}

// MemoryStore is an in-process CatalogStore with the same conflict rules as
// PostgresStore. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	catalog []*models.CatalogRow
	index   map[models.Identity]int
	history []models.PriceHistoryRow
	seen    map[historyKey]struct{}
	periods map[string]models.SalePeriod
	nextID  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:   make(map[models.Identity]int),
		seen:    make(map[historyKey]struct{}),
		periods: make(map[string]models.SalePeriod),
		nextID:  1,
	}
}

// UpsertBatch validates the whole batch before applying any of it.
func (m *MemoryStore) UpsertBatch(ctx context.Context, products []models.Product, crawledAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, p := range products {
		if p.Name == "" || p.Source == "" {
			return 0, fmt.Errorf("memory: upsert %q/%q: %w", p.Name, p.Source, ErrInvalidRow)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range products {
		key := p.Key()
		if i, ok := m.index[key]; ok {
			m.catalog[i].Product = p
			m.catalog[i].CrawledAt = crawledAt
			continue
		}
		m.index[key] = len(m.catalog)
		m.catalog = append(m.catalog, &models.CatalogRow{ID: m.nextID, Product: p, CrawledAt: crawledAt})
		m.nextID++
	}
	return len(products), nil
}

// SnapshotHistory adds one history row per catalog entry not yet recorded
// for asOf's date.
func (m *MemoryStore) SnapshotHistory(ctx context.Context, asOf time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	date := dateOnly(asOf)
	now := time.Now()
	added := 0
	for _, row := range m.catalog {
		key := historyKey{name: row.Name, source: row.Source, date: date}
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.history = append(m.history, models.PriceHistoryRow{
			Name:                    row.Name,
			Source:                  row.Source,
			Price:                   row.Price,
			SoldCount:               row.SoldCount,
			ReviewCount:             row.ReviewCount,
			ReviewScore:             row.ReviewScore,
			Brand:                   row.Brand,
			Category:                row.Category,
			EstimatedMonthlyRevenue: row.EstimatedMonthlyRevenue,
			CrawlDate:               date,
			CreatedAt:               now,
		})
		added++
	}
	return added, nil
}

func (m *MemoryStore) SeedSalePeriods(ctx context.Context, periods []models.SalePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range periods {
		if _, ok := m.periods[p.Name]; !ok {
			m.periods[p.Name] = p
		}
	}
	return nil
}

// FetchCatalog returns copies of the catalog rows in insertion order.
func (m *MemoryStore) FetchCatalog(ctx context.Context) ([]*models.CatalogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.CatalogRow, 0, len(m.catalog))
	for _, row := range m.catalog {
		r := *row
		out = append(out, &r)
	}
	return out, nil
}

// History returns a copy of the price history.
func (m *MemoryStore) History() []models.PriceHistoryRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PriceHistoryRow(nil), m.history...)
}

// SalePeriods returns the number of seeded sale periods.
func (m *MemoryStore) SalePeriods() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.periods)
}

func (m *MemoryStore) Close() error { return nil }
