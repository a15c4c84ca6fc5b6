package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"product-ingest/models"
	"product-ingest/utils"
)

const (
	reviewUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	backoffStep = 3
	backoffCap  = 10
)

// AttachOptions bound one enrichment pass.
type AttachOptions struct {
	Workers    int
	Timeout    time.Duration
	MaxRetries int
}

// ReviewEnricher fetches product pages and reads their aggregate rating.
type ReviewEnricher struct {
	client      *http.Client
	backoffUnit time.Duration
	rateLimitMs int
	logger      *utils.Logger
	parse       func([]byte) (models.ReviewStats, error)
}

// NewReviewEnricher creates a ReviewEnricher. backoffUnit scales the wait
// between attempts; rateLimitMs spaces out request starts (0 disables).
func NewReviewEnricher(client *http.Client, backoffUnit time.Duration, rateLimitMs int, logger *utils.Logger) *ReviewEnricher {
	if client == nil {
		client = &http.Client{}
	}
	return &ReviewEnricher{
		client:      client,
		backoffUnit: backoffUnit,
		rateLimitMs: rateLimitMs,
		logger:      logger,
		parse:       parseReviewStats,
	}
}

// Attach fills Reviews on every item that has a LookupURL and returns how
// many lookups found a rating. Items without a URL are untouched. A failed
// lookup leaves {0, 0} on its item only.
func (e *ReviewEnricher) Attach(ctx context.Context, items []*models.RawListing, opts AttachOptions) int {
	var targets []int
	for i, it := range items {
		if it.LookupURL != "" {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return 0
	}

	results := make([]models.ReviewStats, len(targets))
	fetch := func(slot int) {
		results[slot] = e.lookup(ctx, items[targets[slot]].LookupURL, opts)
	}

	if len(targets) == 1 {
		if ctx.Err() == nil {
			fetch(0)
		}
	} else {
		pool := utils.NewWorkerPool(min(opts.Workers, len(targets)), e.rateLimitMs)
		e.logger.Debug("[reviews] Fetching %d product pages with %d workers", len(targets), pool.Size())
		for slot := range targets {
			s := slot
			pool.Submit(ctx, func() { fetch(s) })
		}
		pool.Wait()
	}

	found := 0
	for slot, idx := range targets {
		items[idx].Reviews = results[slot]
		if results[slot] != (models.ReviewStats{}) {
			found++
		}
	}
	e.logger.Info("[reviews] Ratings found for %d/%d products", found, len(targets))
	return found
}

func (e *ReviewEnricher) lookup(ctx context.Context, url string, opts AttachOptions) models.ReviewStats {
	policy := utils.RetryPolicy{
		MaxAttempts: opts.MaxRetries,
		Backoff:     utils.LinearCappedBackoff(e.backoffUnit, backoffStep, backoffCap),
		Logger:      e.logger,
	}

	var stats models.ReviewStats
	_, err := policy.Do(ctx, "reviews "+url, func(ctx context.Context) error {
		s, err := e.fetch(ctx, url, opts.Timeout)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	if err != nil {
		e.logger.Warn("[reviews] Giving up on %s: %v", url, err)
		return models.ReviewStats{}
	}
	return stats
}

// fetch performs one attempt. Transport and status failures are transient;
// a body that cannot be parsed is permanent.
func (e *ReviewEnricher) fetch(ctx context.Context, url string, timeout time.Duration) (models.ReviewStats, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.ReviewStats{}, utils.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", reviewUserAgent)

	res, err := e.client.Do(req)
	if err != nil {
		return models.ReviewStats{}, fmt.Errorf("request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return models.ReviewStats{}, fmt.Errorf("status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return models.ReviewStats{}, fmt.Errorf("read body: %w", err)
	}

	stats, err := e.parse(body)
	if err != nil {
		return models.ReviewStats{}, utils.Permanent(err)
	}
	return stats, nil
}

// parseReviewStats scans JSON-LD blocks in order and returns the first
// aggregateRating with a usable reviewCount and ratingValue. No such block
// yields {0, 0}.
func parseReviewStats(html []byte) (models.ReviewStats, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return models.ReviewStats{}, fmt.Errorf("parse html: %w", err)
	}

	var stats models.ReviewStats
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			return true
		}
		for _, c := range ldCandidates(s.Text()) {
			if st, ok := ratingFrom(c); ok {
				stats = st
				return false
			}
		}
		return true
	})
	return stats, nil
}

// ldCandidates decodes one JSON-LD block into the objects it holds. Blocks
// wrapped in HTML comment markers are retried without them.
func ldCandidates(block string) []map[string]any {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil
	}

	var data any
	if err := json.Unmarshal([]byte(block), &data); err != nil {
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(block, "<!--"), "-->"))
		if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
			return nil
		}
	}

	switch v := data.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func ratingFrom(candidate map[string]any) (models.ReviewStats, bool) {
	agg, ok := candidate["aggregateRating"].(map[string]any)
	if !ok {
		return models.ReviewStats{}, false
	}
	count, ok := toFloat(agg["reviewCount"])
	if !ok || count < 0 {
		return models.ReviewStats{}, false
	}
	// scores on other scales are treated as malformed
	score, ok := toFloat(agg["ratingValue"])
	if !ok || score < 0 || score > models.MaxReviewScore {
		return models.ReviewStats{}, false
	}
	return models.ReviewStats{ReviewCount: int(count), ReviewScore: score}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
