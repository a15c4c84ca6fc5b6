package storage

import (
	"context"
	"time"

	"product-ingest/models"
)

// CatalogStore is the interface any catalog backend must satisfy.
type CatalogStore interface {
	// UpsertBatch writes every product in one transaction and returns how
	// many were written. On error nothing is committed.
	UpsertBatch(ctx context.Context, products []models.Product, crawledAt time.Time) (int, error)
	// SnapshotHistory copies the catalog into price history for asOf's
	// calendar date and returns the number of new rows. Rows already
	// present for that date are left alone.
	SnapshotHistory(ctx context.Context, asOf time.Time) (int, error)
	SeedSalePeriods(ctx context.Context, periods []models.SalePeriod) error
	FetchCatalog(ctx context.Context) ([]*models.CatalogRow, error)
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// DefaultSalePeriods is the reference calendar seeded on first start.
func DefaultSalePeriods() []models.SalePeriod {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []models.SalePeriod{
		{
			Name:        "Tết Nguyên Đán 2025",
			StartDate:   day(2025, time.January, 20),
			EndDate:     day(2025, time.February, 10),
			PeriodType:  "Tet",
			Description: "Tết Nguyên Đán",
		},
		{
			Name:        "Black Friday 2025",
			StartDate:   day(2025, time.November, 24),
			EndDate:     day(2025, time.November, 30),
			PeriodType:  "BlackFriday",
			Description: "Black Friday",
		},
		{
			Name:        "Normal Period Q1 2025",
			StartDate:   day(2025, time.January, 1),
			EndDate:     day(2025, time.January, 19),
			PeriodType:  "Normal",
			Description: "Thời gian bình thường",
		},
	}
}

// dateOnly returns t's calendar date as midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
