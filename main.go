package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-ingest/config"
	"product-ingest/pipeline"
	"product-ingest/scraper/lazada"
	"product-ingest/scraper/tiki"
	"product-ingest/services"
	"product-ingest/storage"
	"product-ingest/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetDebug(cfg.LogDebug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Product ingest starting ===")
	logger.Info("Config: queries %v | tiki pages %d | lazada pages %d (cap %d) | review workers %d | store %s",
		cfg.SearchQueries, cfg.TikiPages, cfg.LazadaPages, cfg.LazadaMaxItems, cfg.ReviewWorkers, cfg.Store)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open catalog store: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d, or set STORE=memory")
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SeedSalePeriods(ctx, storage.DefaultSalePeriods()); err != nil {
		logger.Warn("Seeding sale periods failed: %v", err)
	}

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	ref := services.DefaultReference()
	lazadaOpts := lazada.DefaultOptions(cfg.LazadaURLTemplate)
	lazadaOpts.WaitTimeout = cfg.LazadaWaitTimeout
	lazadaOpts.ScrollDelay = cfg.LazadaScrollDelay
	lazadaOpts.PageDelay = cfg.LazadaPageDelay

	p := pipeline.New(pipeline.Config{
		Sources: []pipeline.Source{
			{
				Adapter:    tiki.New(cfg.TikiURLTemplate, cfg.TikiRequestDelay, logger),
				Queries:    cfg.SearchQueries,
				Pages:      cfg.TikiPages,
				Backfiller: services.NewBackfiller(newRand(cfg.BackfillSeed, 0), ref),
			},
			{
				Adapter:    lazada.New(lazada.NewChromeSessionFactory(cfg.ChromeBin, logger), lazadaOpts, logger),
				Queries:    cfg.SearchQueries,
				Pages:      cfg.LazadaPages,
				MaxItems:   cfg.LazadaMaxItems,
				Backfiller: services.NewBackfiller(newRand(cfg.BackfillSeed, 1), ref),
			},
		},
		Enricher: services.NewReviewEnricher(nil, cfg.ReviewBackoffUnit, cfg.ReviewRateLimitMs, logger),
		Attach: services.AttachOptions{
			Workers:    cfg.ReviewWorkers,
			Timeout:    cfg.ReviewTimeout,
			MaxRetries: cfg.ReviewRetries,
		},
		Cleaner:   services.NewCleaner(services.DefaultTaxonomy(), logger),
		Validator: services.NewProductValidator(logger),
		Loader:    services.NewLoader(store, logger),
		RawSink:   csvWriter,
		Logger:    logger,
	})

	summary := p.Run(ctx, time.Now())

	total := 0
	for source, n := range summary.ItemsPerSource {
		logger.Info("%s: %d raw listings", source, n)
		total += n
	}
	if total == 0 {
		logger.Error("No listings were collected from any source. Exiting.")
		os.Exit(1)
	}

	if rows, err := store.FetchCatalog(ctx); err != nil {
		logger.Error("Failed to fetch catalog for insights: %v", err)
	} else {
		insightSvc := services.NewInsightService(logger)
		insightSvc.Print(insightSvc.Generate(rows))
	}

	fmt.Printf("  Run %s done. processed=%d history=%d | Raw CSV → %s\n\n",
		summary.RunID, summary.ProcessedCount, summary.HistoryRowsAdded, cfg.CSVOutputPath)
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.CatalogStore, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using in-memory store; nothing is persisted")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStore(ctx, cfg.DSN(), logger)
}

// newRand returns a source per pipeline stream; seed 0 means time-seeded.
func newRand(seed, stream int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed + stream))
}
