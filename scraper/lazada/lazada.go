package lazada

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"product-ingest/models"
	"product-ingest/scraper"
	"product-ingest/utils"
)

// Selectors locate the parts of a search result card.
type Selectors struct {
	Item          string
	Name          string
	Price         string
	Sold          string
	OriginalPrice string
	Location      string
}

// DefaultSelectors matches the catalog search page markup.
var DefaultSelectors = Selectors{
	Item:          "div[data-qa-locator='product-item']",
	Name:          "a[title]",
	Price:         "span.ooOxS",
	Sold:          "span.sales",
	OriginalPrice: "span.del",
	Location:      "span.item-location",
}

// Options tune page loading.
type Options struct {
	URLTemplate string
	WaitTimeout time.Duration
	ScrollTimes int
	ScrollDelay time.Duration
	PageDelay   time.Duration
	Selectors   Selectors
}

// DefaultOptions returns the production page-loading settings.
func DefaultOptions(urlTemplate string) Options {
	return Options{
		URLTemplate: urlTemplate,
		WaitTimeout: 20 * time.Second,
		ScrollTimes: 3,
		ScrollDelay: 1200 * time.Millisecond,
		PageDelay:   time.Second,
		Selectors:   DefaultSelectors,
	}
}

// Adapter scrapes rendered catalog pages through a browser session.
type Adapter struct {
	newSession scraper.SessionFactory
	opts       Options
	pacer      *rate.Limiter
	logger     *utils.Logger
}

// New creates an Adapter that opens one session from newSession per Extract.
func New(newSession scraper.SessionFactory, opts Options, logger *utils.Logger) *Adapter {
	if opts.Selectors.Item == "" {
		opts.Selectors = DefaultSelectors
	}
	return &Adapter{
		newSession: newSession,
		opts:       opts,
		pacer:      scraper.NewPacer(opts.PageDelay),
		logger:     logger,
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return models.SourceLazada }

// Extract scrapes pages 1..maxPages of the catalog search for query. The
// browser session is closed before Extract returns, whatever the outcome.
func (a *Adapter) Extract(ctx context.Context, query string, maxPages, maxItems int) ([]*models.RawListing, error) {
	session, err := a.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("lazada: open session: %w", wrapCapability(err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("[lazada] Closing session failed: %v", err)
		}
	}()

	a.logger.Info("[lazada] Extract %q, up to %d pages (cap %d)", query, maxPages, maxItems)

	seen := utils.NewURLSet()
	var listings []*models.RawListing

	for page := 1; page <= maxPages; page++ {
		if scraper.CapReached(len(listings), maxItems) {
			a.logger.Info("[lazada] Item cap %d reached for %q", maxItems, query)
			break
		}
		if err := a.pacer.Wait(ctx); err != nil {
			a.logger.Warn("[lazada] Pacing interrupted on page %d: %v", page, err)
			break
		}

		cards, err := a.loadPage(ctx, session, scraper.BuildURL(a.opts.URLTemplate, query, page, 0))
		if err != nil {
			a.logger.Warn("[lazada] Page %d for %q: %v, stopping", page, query, err)
			break
		}

		parsed := 0
		for _, card := range cards {
			if scraper.CapReached(len(listings), maxItems) {
				break
			}
			l := parseCard(card, a.opts.Selectors)
			if l == nil {
				continue
			}
			if l.LookupURL != "" && !seen.Add(l.LookupURL) {
				a.logger.Debug("[lazada] Skipping repeated product: %s", l.LookupURL)
				continue
			}
			l.Query = query
			listings = append(listings, l)
			parsed++
		}

		if parsed == 0 {
			a.logger.Warn("[lazada] Page %d for %q had no parseable items, stopping", page, query)
			break
		}
		a.logger.Debug("[lazada] Page %d for %q: %d items (%d total)", page, query, parsed, len(listings))
	}

	a.logger.Info("[lazada] Extract %q done: %d raw listings, %d unique product URLs", query, len(listings), seen.Size())
	return listings, nil
}

// loadPage navigates, waits for the result grid, scrolls to trigger lazy
// loading and returns the outer HTML of every item card.
func (a *Adapter) loadPage(ctx context.Context, session scraper.PageFetcher, pageURL string) ([]string, error) {
	if err := session.Navigate(ctx, pageURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := session.WaitForSelector(ctx, a.opts.Selectors.Item, a.opts.WaitTimeout); err != nil {
		return nil, fmt.Errorf("result grid not found: %w", err)
	}
	if err := session.ScrollToBottom(ctx, a.opts.ScrollTimes, a.opts.ScrollDelay); err != nil {
		a.logger.Debug("[lazada] Scroll failed on %s: %v", pageURL, err)
	}
	cards, err := session.ReadAll(ctx, a.opts.Selectors.Item)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return cards, nil
}

// parseCard extracts a listing from one card's HTML. Cards without a name
// are dropped; every other missing field stays empty.
func parseCard(card string, sel Selectors) *models.RawListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(card))
	if err != nil {
		return nil
	}

	anchor := doc.Find(sel.Name).First()
	name := strings.TrimSpace(anchor.Text())
	if name == "" {
		name = strings.TrimSpace(anchor.AttrOr("title", ""))
	}
	if name == "" {
		return nil
	}

	l := &models.RawListing{
		Source:       models.SourceLazada,
		Name:         name,
		Price:        models.TextField(textOf(doc, sel.Price)),
		Sold:         models.TextField(textOf(doc, sel.Sold)),
		LookupURL:    absoluteURL(anchor.AttrOr("href", "")),
		ShopLocation: textOf(doc, sel.Location),
		ScrapedAt:    time.Now(),
	}
	if op := textOf(doc, sel.OriginalPrice); op != "" {
		l.OriginalPrice = models.TextField(op)
	}
	return l
}

func textOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return "https://www.lazada.vn" + href
	}
	return href
}

func wrapCapability(err error) error {
	if errors.Is(err, scraper.ErrCapabilityUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", scraper.ErrCapabilityUnavailable, err)
}
