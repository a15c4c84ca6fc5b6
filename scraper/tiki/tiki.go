package tiki

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

	"golang.org/x/time/rate"

	"product-ingest/models"
	"product-ingest/scraper"
	"product-ingest/utils"
)

const (
	pageLimit      = 40
	requestTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Adapter reads search listings from the Tiki JSON listing API.
type Adapter struct {
	client      *http.Client
	urlTemplate string
	pacer       *rate.Limiter
	logger      *utils.Logger
}

// New creates an Adapter. requestDelay is the minimum gap between page calls.
func New(urlTemplate string, requestDelay time.Duration, logger *utils.Logger) *Adapter {
	return newAdapter(&http.Client{Timeout: requestTimeout}, urlTemplate, requestDelay, logger)
}

func newAdapter(client *http.Client, urlTemplate string, requestDelay time.Duration, logger *utils.Logger) *Adapter {
	return &Adapter{
		client:      client,
		urlTemplate: urlTemplate,
		pacer:       scraper.NewPacer(requestDelay),
		logger:      logger,
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return models.SourceTiki }

// Extract walks pages 1..maxPages for query. It never returns an error: API
// failures stop the query and keep what was collected.
func (a *Adapter) Extract(ctx context.Context, query string, maxPages, maxItems int) ([]*models.RawListing, error) {
	a.logger.Info("[tiki] Extract %q, up to %d pages", query, maxPages)

	var listings []*models.RawListing
	for page := 1; page <= maxPages; page++ {
		if scraper.CapReached(len(listings), maxItems) {
			a.logger.Info("[tiki] Item cap %d reached for %q", maxItems, query)
			break
		}
		if err := a.pacer.Wait(ctx); err != nil {
			a.logger.Warn("[tiki] Pacing interrupted on page %d: %v", page, err)
			break
		}

		pageURL := scraper.BuildURL(a.urlTemplate, query, page, pageLimit)
		items, err := a.fetchPage(ctx, pageURL)
		if err != nil {
			a.logger.Warn("[tiki] Page %d for %q failed: %v, stopping", page, query, err)
			break
		}

		parsed := 0
		for _, raw := range items {
			if scraper.CapReached(len(listings), maxItems) {
				break
			}
			l, err := decodeProduct(raw)
			if err != nil {
				a.logger.Debug("[tiki] Skipping malformed item on page %d: %v", page, err)
				continue
			}
			if l == nil {
				continue
			}
			l.Query = query
			listings = append(listings, l)
			parsed++
		}

		if parsed == 0 {
			a.logger.Warn("[tiki] Page %d for %q returned 0 items, stopping", page, query)
			break
		}
		a.logger.Debug("[tiki] Page %d for %q: %d items (%d total)", page, query, parsed, len(listings))
	}

	a.logger.Info("[tiki] Extract %q done: %d raw listings", query, len(listings))
	return listings, nil
}

type listingResponse struct {
	Data *[]json.RawMessage `json:"data"`
}

func (a *Adapter) fetchPage(ctx context.Context, pageURL string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tiki: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tiki: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("tiki: status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("tiki: read body: %w", err)
	}

	var payload listingResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tiki: decode: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("tiki: response has no data array")
	}
	return *payload.Data, nil
}

type product struct {
	Name                string          `json:"name"`
	Price               flexValue       `json:"price"`
	QuantitySold        json.RawMessage `json:"quantity_sold"`
	OriginalPrice       flexValue       `json:"original_price"`
	ListPrice           flexValue       `json:"list_price"`
	DiscountRate        flexValue       `json:"discount_rate"`
	ReviewCount         flexValue       `json:"review_count"`
	RatingAverage       flexValue       `json:"rating_average"`
	SellerProductDetail struct {
		StoreInfo struct {
			Name string `json:"name"`
		} `json:"store_info"`
	} `json:"seller_product_detail"`
}

// decodeProduct maps one API item. Items without a name return nil.
func decodeProduct(raw json.RawMessage) (*models.RawListing, error) {
	var p product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, nil
	}

	l := &models.RawListing{
		Source:    models.SourceTiki,
		Name:      name,
		Price:     p.Price.field(),
		Sold:      decodeSold(p.QuantitySold),
		ShopName:  strings.TrimSpace(p.SellerProductDetail.StoreInfo.Name),
		ScrapedAt: time.Now(),
		Reviews:   decodeReviews(p.ReviewCount.float(), p.RatingAverage.float()),
	}

	if p.OriginalPrice.float() > 0 {
		l.OriginalPrice = p.OriginalPrice.field()
	} else if p.ListPrice.float() > 0 {
		l.OriginalPrice = p.ListPrice.field()
	}
	if !p.DiscountRate.isEmpty() {
		d := int(p.DiscountRate.float())
		l.DiscountRate = &d
	}
	return l, nil
}

// decodeReviews zeroes a rating off the 0..5 scale and a negative count.
func decodeReviews(count, score float64) models.ReviewStats {
	if count < 0 {
		count = 0
	}
	if score < 0 || score > models.MaxReviewScore {
		score = 0
	}
	return models.ReviewStats{ReviewCount: int(count), ReviewScore: score}
}

// decodeSold accepts {"value": n, "text": "..."}, a bare number, or a string.
func decodeSold(raw json.RawMessage) models.RawField {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return models.RawField{}
	}
	if raw[0] == '{' {
		var obj struct {
			Value flexValue `json:"value"`
			Text  string    `json:"text"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return models.RawField{}
		}
		if !obj.Value.isEmpty() {
			return obj.Value.field()
		}
		return models.TextField(obj.Text)
	}
	var v flexValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.RawField{}
	}
	return v.field()
}

// flexValue decodes a JSON number or string; anything else is left empty.
type flexValue struct {
	num  *float64
	text string
}

func (f *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	switch b[0] {
	case '"':
		return json.Unmarshal(b, &f.text)
	case '{', '[', 't', 'f':
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	f.num = &n
	return nil
}

func (f flexValue) isEmpty() bool { return f.num == nil && f.text == "" }

func (f flexValue) field() models.RawField {
	if f.num != nil {
		return models.NumField(*f.num)
	}
	return models.TextField(f.text)
}

// float returns the numeric value, or 0 when absent or not numeric.
func (f flexValue) float() float64 {
	if f.num != nil {
		return *f.num
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(f.text), 64)
	if err != nil {
		return 0
	}
	return n
}
