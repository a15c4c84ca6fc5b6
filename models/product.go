package models

import "time"

// Source names as stored in the catalog.
const (
	SourceTiki   = "Tiki"
	SourceLazada = "Lazada"
)

// Stock status values.
const (
	StockIn  = "in-stock"
	StockLow = "low-stock"
	StockOut = "out-of-stock"
)

// RawField is a scraped value that may arrive either as a number (API
// responses) or as display text (rendered pages).
type RawField struct {
	Num  *float64
	Text string
}

// NumField wraps a numeric scraped value.
func NumField(f float64) RawField { return RawField{Num: &f} }

// TextField wraps a textual scraped value.
func TextField(s string) RawField { return RawField{Text: s} }

// IsEmpty reports whether neither a number nor text was scraped.
func (r RawField) IsEmpty() bool { return r.Num == nil && r.Text == "" }

// MaxReviewScore is the top of the rating scale a product may carry.
const MaxReviewScore = 5.0

// ReviewStats holds the auxiliary rating signals of one listing.
type ReviewStats struct {
	ReviewCount int
	ReviewScore float64
}

// RawListing holds unprocessed data exactly as a source adapter produced it.
// It lives only within one pipeline run.
type RawListing struct {
	Source    string
	Query     string
	Name      string
	Price     RawField
	Sold      RawField
	LookupURL string

	// Optional hints; empty values are resolved by the backfiller.
	OriginalPrice RawField
	DiscountRate  *int
	ShopName      string
	ShopLocation  string

	Reviews   ReviewStats
	ScrapedAt time.Time
}

// Product is the canonical, source-agnostic record. Identity is (Name, Source).
type Product struct {
	Name   string `db:"name" validate:"required"`
	Source string `db:"source" validate:"required"`

	Price         int64 `db:"price" validate:"gte=0"`
	OriginalPrice int64 `db:"original_price" validate:"required,gtfield=Price"`
	DiscountRate  int   `db:"discount_rate" validate:"gte=0,lte=100"`

	SoldCount        int64   `db:"sold_count" validate:"required,gt=0"`
	ReviewCount      int     `db:"review_count" validate:"required,gt=0"`
	ReviewScore      float64 `db:"review_score" validate:"required,gt=0,lte=5"`
	RatingCount1Star int     `db:"rating_count_1s" validate:"gte=0"`
	RatingCount5Star int     `db:"rating_count_5s" validate:"gte=0"`

	Brand    string `db:"brand"`
	Category string `db:"category"`

	ShopName     string `db:"shop_name" validate:"required"`
	ShopLocation string `db:"shop_location"`

	// ShippingFeeEstimate is nil while unknown; zero is a real "free" value.
	ShippingFeeEstimate *int64 `db:"shipping_fee_est" validate:"required,gte=0"`

	StockStatus             string `db:"stock_status" validate:"required,oneof=in-stock low-stock out-of-stock"`
	EstimatedMonthlyRevenue int64  `db:"est_monthly_revenue" validate:"gte=0"`
}

// Key returns the identity key of the product.
func (p *Product) Key() Identity { return Identity{Name: p.Name, Source: p.Source} }

// Identity is the (name, source) pair unique across the catalog.
type Identity struct {
	Name   string
	Source string
}

// CatalogRow is a persisted product plus its last-crawled timestamp.
type CatalogRow struct {
	ID int64 `db:"id"`
	Product
	CrawledAt time.Time `db:"crawled_at"`
}

// PriceHistoryRow is an immutable per-day snapshot of a catalog entry.
type PriceHistoryRow struct {
	Name                    string    `db:"name"`
	Source                  string    `db:"source"`
	Price                   int64     `db:"price"`
	SoldCount               int64     `db:"sold_count"`
	ReviewCount             int       `db:"review_count"`
	ReviewScore             float64   `db:"review_score"`
	Brand                   string    `db:"brand"`
	Category                string    `db:"category"`
	EstimatedMonthlyRevenue int64     `db:"est_monthly_revenue"`
	CrawlDate               time.Time `db:"crawl_date"`
	CreatedAt               time.Time `db:"created_at"`
}

// SalePeriod is static reference data describing a named date range.
type SalePeriod struct {
	Name        string    `db:"period_name"`
	StartDate   time.Time `db:"start_date"`
	EndDate     time.Time `db:"end_date"`
	PeriodType  string    `db:"period_type"`
	Description string    `db:"description"`
}

// RunSummary is returned to the caller of one pipeline invocation.
type RunSummary struct {
	RunID            string
	ItemsPerSource   map[string]int
	ProcessedCount   int
	HistoryRowsAdded int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// InsightReport holds analytics computed over the catalog after a load.
type InsightReport struct {
	TotalProducts      int
	ProductsBySource   map[string]int
	ProductsByCategory map[string]int
	AveragePrice       float64
	AverageDiscount    float64
	TopRevenue         []*CatalogRow
	TopRated           []*CatalogRow
}
