// Package scraper defines the contracts shared by the source adapters.
package scraper

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"product-ingest/models"
)

// ErrCapabilityUnavailable means an adapter could not obtain the resource it
// needs to run at all (for example a browser session). It is fatal for that
// source's run only.
var ErrCapabilityUnavailable = errors.New("scraper: capability unavailable")

// SourceAdapter paginates a search query against one source.
//
// Source-side failures (HTTP errors, missing DOM regions, empty pages) stop
// the current query and are not returned; whatever was collected so far is.
// A non-nil error always wraps ErrCapabilityUnavailable.
type SourceAdapter interface {
	Name() string
	Extract(ctx context.Context, query string, maxPages, maxItems int) ([]*models.RawListing, error)
}

// PageFetcher is the browser capability the rendered-page adapter works
// through. One PageFetcher is one exclusive browser session.
type PageFetcher interface {
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	ScrollToBottom(ctx context.Context, times int, delay time.Duration) error
	// ReadAll returns the outer HTML of every element matching selector.
	ReadAll(ctx context.Context, selector string) ([]string, error)
	Close() error
}

// SessionFactory acquires a new PageFetcher session.
type SessionFactory func(ctx context.Context) (PageFetcher, error)

// BuildURL substitutes {query}, {page} and {limit} in a URL template. The
// query is escaped for use inside a query string.
func BuildURL(template, query string, page, limit int) string {
	r := strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{page}", strconv.Itoa(page),
		"{limit}", strconv.Itoa(limit),
	)
	return r.Replace(template)
}

// NewPacer returns a limiter allowing one page request per interval.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// CapReached reports whether maxItems (<= 0 meaning unlimited) is reached.
func CapReached(collected, maxItems int) bool {
	return maxItems > 0 && collected >= maxItems
}
