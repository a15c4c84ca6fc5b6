package services

import (
	"context"
	"time"

	"product-ingest/models"
	"product-ingest/storage"
	"product-ingest/utils"
)

// Loader deduplicates products and hands them to the catalog store.
type Loader struct {
	store  storage.CatalogStore
	logger *utils.Logger
	now    func() time.Time
}

// NewLoader creates a Loader over store.
func NewLoader(store storage.CatalogStore, logger *utils.Logger) *Loader {
	return &Loader{store: store, logger: logger, now: time.Now}
}

// Upsert writes the batch and returns how many products were committed.
// Duplicate identities collapse to the last occurrence, at the position
// of the first. Any store error rolls the batch back and reports 0.
func (l *Loader) Upsert(ctx context.Context, products []models.Product) int {
	batch := Dedupe(products)
	if len(batch) == 0 {
		l.logger.Warn("[loader] Nothing to upsert")
		return 0
	}
	if dropped := len(products) - len(batch); dropped > 0 {
		l.logger.Debug("[loader] Collapsed %d duplicate identities", dropped)
	}

	n, err := l.store.UpsertBatch(ctx, batch, l.now())
	if err != nil {
		l.logger.Error("[loader] Batch upsert failed, rolled back: %v", err)
		return 0
	}
	l.logger.Info("[loader] Upserted %d products", n)
	return n
}

// Snapshot records the catalog into price history for asOf's date and
// returns the number of rows added. Errors report 0.
func (l *Loader) Snapshot(ctx context.Context, asOf time.Time) int {
	n, err := l.store.SnapshotHistory(ctx, asOf)
	if err != nil {
		l.logger.Error("[loader] History snapshot failed: %v", err)
		return 0
	}
	l.logger.Info("[loader] Added %d history rows for %s", n, asOf.Format("2006-01-02"))
	return n
}

// Dedupe keeps one product per (name, source). The last occurrence wins and
// takes the slot where that identity was first seen.
func Dedupe(products []models.Product) []models.Product {
	pos := make(map[models.Identity]int, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if i, ok := pos[p.Key()]; ok {
			out[i] = p
			continue
		}
		pos[p.Key()] = len(out)
		out = append(out, p)
	}
	return out
}
