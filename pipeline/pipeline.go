package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"product-ingest/models"
	"product-ingest/scraper"
	"product-ingest/services"
	"product-ingest/storage"
	"product-ingest/utils"
)

// Source binds one adapter to its crawl parameters. Each Source needs its
// own Backfiller since sources run concurrently.
type Source struct {
	Adapter    scraper.SourceAdapter
	Queries    []string
	Pages      int
	MaxItems   int
	Backfiller *services.Backfiller
}

// Config wires the stages of a run.
type Config struct {
	Sources   []Source
	Enricher  *services.ReviewEnricher
	Attach    services.AttachOptions
	Cleaner   *services.Cleaner
	Validator *services.ProductValidator
	Loader    *services.Loader
	// RawSink is optional.
	RawSink storage.RawListingWriter
	Logger  *utils.Logger
}

// Pipeline runs extract, enrich, clean, backfill and validate per source in
// parallel, then loads the combined batch.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

type sourceResult struct {
	listings int
	products []models.Product
}

// Run executes one pipeline invocation. asOf selects the history date.
func (p *Pipeline) Run(ctx context.Context, asOf time.Time) models.RunSummary {
	log := p.cfg.Logger
	summary := models.RunSummary{
		RunID:          uuid.NewString(),
		ItemsPerSource: make(map[string]int, len(p.cfg.Sources)),
		StartedAt:      time.Now(),
	}
	log.Info("[pipeline] Run %s started (%d sources)", summary.RunID, len(p.cfg.Sources))

	results := make([]sourceResult, len(p.cfg.Sources))
	var wg sync.WaitGroup
	for i, src := range p.cfg.Sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error("[pipeline] Source %s aborted: %v", src.Adapter.Name(), r)
				}
			}()
			results[i] = p.runSource(ctx, src)
		}()
	}
	wg.Wait()

	var batch []models.Product
	for i, src := range p.cfg.Sources {
		summary.ItemsPerSource[src.Adapter.Name()] += results[i].listings
		batch = append(batch, results[i].products...)
	}

	summary.ProcessedCount = p.cfg.Loader.Upsert(ctx, batch)
	if summary.ProcessedCount > 0 {
		summary.HistoryRowsAdded = p.cfg.Loader.Snapshot(ctx, asOf)
	} else {
		log.Warn("[pipeline] Nothing committed, skipping history snapshot")
	}

	summary.FinishedAt = time.Now()
	log.Info("[pipeline] Run %s finished in %v: processed=%d history=%d",
		summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
		summary.ProcessedCount, summary.HistoryRowsAdded)
	return summary
}

func (p *Pipeline) runSource(ctx context.Context, src Source) sourceResult {
	log := p.cfg.Logger
	name := src.Adapter.Name()
	var res sourceResult

	for _, query := range src.Queries {
		if ctx.Err() != nil {
			log.Warn("[pipeline] %s: context done, skipping remaining queries", name)
			break
		}

		raw, err := src.Adapter.Extract(ctx, query, src.Pages, src.MaxItems)
		if err != nil {
			if errors.Is(err, scraper.ErrCapabilityUnavailable) {
				log.Error("[pipeline] %s unavailable, abandoning source: %v", name, err)
				break
			}
			log.Warn("[pipeline] %s: query %q failed: %v", name, query, err)
			continue
		}
		res.listings += len(raw)
		if len(raw) == 0 {
			continue
		}

		if p.cfg.Enricher != nil {
			p.cfg.Enricher.Attach(ctx, raw, p.cfg.Attach)
		}
		if p.cfg.RawSink != nil {
			if err := p.cfg.RawSink.WriteRaw(raw); err != nil {
				log.Warn("[pipeline] %s: writing raw listings failed: %v", name, err)
			}
		}

		products := make([]models.Product, 0, len(raw))
		for _, clean := range p.cfg.Cleaner.CleanAll(raw) {
			products = append(products, src.Backfiller.Fill(clean))
		}
		valid := p.cfg.Validator.Filter(products)
		log.Info("[pipeline] %s %q: %d raw, %d valid products", name, query, len(raw), len(valid))
		res.products = append(res.products, valid...)
	}
	return res
}
