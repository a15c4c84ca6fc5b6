package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"product-ingest/models"
	"product-ingest/utils"
)

const (
	pingAttempts = 6
	pingBackoff  = 250 * time.Millisecond
)

// PostgresStore persists the catalog, its daily history and the sale
// calendar in PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	logger *utils.Logger
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations, and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ping := utils.RetryPolicy{
		MaxAttempts: pingAttempts,
		Backoff:     utils.ExponentialBackoff(pingBackoff),
		Logger:      logger,
	}
	if _, err := ping.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	s := &PostgresStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	logger.Info("[postgres] Connected and migrated")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS all_products (
			id                  SERIAL PRIMARY KEY,
			name                TEXT             NOT NULL,
			source              TEXT             NOT NULL,
			price               BIGINT           NOT NULL DEFAULT 0,
			original_price      BIGINT           NOT NULL DEFAULT 0,
			discount_rate       INT              NOT NULL DEFAULT 0,
			sold_count          BIGINT           NOT NULL DEFAULT 0,
			review_count        INT              NOT NULL DEFAULT 0,
			review_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
			rating_count_1s     INT              NOT NULL DEFAULT 0,
			rating_count_5s     INT              NOT NULL DEFAULT 0,
			brand               TEXT             NOT NULL DEFAULT '',
			category            TEXT             NOT NULL DEFAULT '',
			shop_name           TEXT             NOT NULL DEFAULT '',
			shop_location       TEXT             NOT NULL DEFAULT '',
			shipping_fee_est    BIGINT,
			stock_status        TEXT             NOT NULL DEFAULT '',
			est_monthly_revenue BIGINT           NOT NULL DEFAULT 0,
			crawled_at          TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			UNIQUE (name, source)
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id                  SERIAL PRIMARY KEY,
			name                TEXT             NOT NULL,
			source              TEXT             NOT NULL,
			price               BIGINT           NOT NULL DEFAULT 0,
			sold_count          BIGINT           NOT NULL DEFAULT 0,
			review_count        INT              NOT NULL DEFAULT 0,
			review_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
			brand               TEXT             NOT NULL DEFAULT '',
			category            TEXT             NOT NULL DEFAULT '',
			est_monthly_revenue BIGINT           NOT NULL DEFAULT 0,
			crawl_date          DATE             NOT NULL DEFAULT CURRENT_DATE,
			created_at          TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			UNIQUE (name, source, crawl_date)
		);

		CREATE TABLE IF NOT EXISTS sale_periods (
			id          SERIAL PRIMARY KEY,
			period_name TEXT        NOT NULL UNIQUE,
			start_date  DATE        NOT NULL,
			end_date    DATE        NOT NULL,
			period_type TEXT        NOT NULL,
			description TEXT        NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_products_source   ON all_products(source);
		CREATE INDEX IF NOT EXISTS idx_products_category ON all_products(category);
		CREATE INDEX IF NOT EXISTS idx_products_brand    ON all_products(brand);
		CREATE INDEX IF NOT EXISTS idx_history_date      ON price_history(crawl_date);
	`)
	return err
}

const upsertProductSQL = `
	INSERT INTO all_products (
		name, source, price, original_price, discount_rate, sold_count,
		review_count, review_score, rating_count_1s, rating_count_5s,
		brand, category, shop_name, shop_location, shipping_fee_est,
		stock_status, est_monthly_revenue, crawled_at
	) VALUES (
		:name, :source, :price, :original_price, :discount_rate, :sold_count,
		:review_count, :review_score, :rating_count_1s, :rating_count_5s,
		:brand, :category, :shop_name, :shop_location, :shipping_fee_est,
		:stock_status, :est_monthly_revenue, :crawled_at
	)
	ON CONFLICT (name, source) DO UPDATE SET
		price               = EXCLUDED.price,
		original_price      = EXCLUDED.original_price,
		discount_rate       = EXCLUDED.discount_rate,
		sold_count          = EXCLUDED.sold_count,
		review_count        = EXCLUDED.review_count,
		review_score        = EXCLUDED.review_score,
		rating_count_1s     = EXCLUDED.rating_count_1s,
		rating_count_5s     = EXCLUDED.rating_count_5s,
		brand               = EXCLUDED.brand,
		category            = EXCLUDED.category,
		shop_name           = EXCLUDED.shop_name,
		shop_location       = EXCLUDED.shop_location,
		shipping_fee_est    = EXCLUDED.shipping_fee_est,
		stock_status        = EXCLUDED.stock_status,
		est_monthly_revenue = EXCLUDED.est_monthly_revenue,
		crawled_at          = EXCLUDED.crawled_at
`

// UpsertBatch writes all products in a single transaction. Any failing row
// rolls back the whole batch.
func (s *PostgresStore) UpsertBatch(ctx context.Context, products []models.Product, crawledAt time.Time) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback()
	}()

	for _, p := range products {
		row := models.CatalogRow{Product: p, CrawledAt: crawledAt}
		if _, err := tx.NamedExecContext(ctx, upsertProductSQL, row); err != nil {
			return 0, fmt.Errorf("postgres: upsert %q/%s: %w", p.Name, p.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return len(products), nil
}

const snapshotSQL = `
	INSERT INTO price_history (
		name, source, price, sold_count, review_count, review_score,
		brand, category, est_monthly_revenue, crawl_date, created_at
	)
	SELECT
		name, source, price, sold_count, review_count, review_score,
		brand, category, est_monthly_revenue, $1::date, NOW()
	FROM all_products
	ON CONFLICT (name, source, crawl_date) DO NOTHING
`

// SnapshotHistory projects the current catalog into price_history for the
// calendar date of asOf.
func (s *PostgresStore) SnapshotHistory(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, snapshotSQL, dateOnly(asOf))
	if err != nil {
		return 0, fmt.Errorf("postgres: snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: snapshot rows affected: %w", err)
	}
	return int(n), nil
}

const seedSalePeriodSQL = `
	INSERT INTO sale_periods (period_name, start_date, end_date, period_type, description)
	VALUES (:period_name, :start_date, :end_date, :period_type, :description)
	ON CONFLICT (period_name) DO NOTHING
`

// SeedSalePeriods inserts the given periods, leaving existing names alone.
func (s *PostgresStore) SeedSalePeriods(ctx context.Context, periods []models.SalePeriod) error {
	for _, p := range periods {
		if _, err := s.db.NamedExecContext(ctx, seedSalePeriodSQL, p); err != nil {
			return fmt.Errorf("postgres: seed sale period %q: %w", p.Name, err)
		}
	}
	return nil
}

// FetchCatalog retrieves every catalog row, used by the insight service.
func (s *PostgresStore) FetchCatalog(ctx context.Context) ([]*models.CatalogRow, error) {
	var rows []*models.CatalogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, source, price, original_price, discount_rate, sold_count,
		       review_count, review_score, rating_count_1s, rating_count_5s,
		       brand, category, shop_name, shop_location, shipping_fee_est,
		       stock_status, est_monthly_revenue, crawled_at
		FROM all_products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch catalog: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
