package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"product-ingest/models"
)

// CSVWriter writes raw (uncleaned) listings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"source", "query", "name", "raw_price", "raw_sold", "raw_original_price",
		"shop_name", "shop_location", "lookup_url", "review_count", "review_score", "scraped_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends one row per raw listing.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		row := []string{
			l.Source,
			l.Query,
			l.Name,
			rawString(l.Price),
			rawString(l.Sold),
			rawString(l.OriginalPrice),
			l.ShopName,
			l.ShopLocation,
			l.LookupURL,
			strconv.Itoa(l.Reviews.ReviewCount),
			strconv.FormatFloat(l.Reviews.ReviewScore, 'f', -1, 64),
			l.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func rawString(f models.RawField) string {
	if f.Num != nil {
		return strconv.FormatFloat(*f.Num, 'f', -1, 64)
	}
	return f.Text
}
