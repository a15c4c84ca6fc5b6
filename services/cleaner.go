package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"product-ingest/models"
	"product-ingest/utils"
)

const unknownBrand = "Unknown"

// Category labels.
const (
	CategoryPhone     = "Phone"
	CategoryLaptop    = "Laptop"
	CategoryTablet    = "Tablet"
	CategoryAccessory = "Accessory"
)

var (
	// soldRegexp captures the leading numeric token and an optional k suffix
	soldRegexp = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(k)?`)
	// priceNoise lists everything stripped from a price before parsing
	priceNoise = strings.NewReplacer(".", "", ",", "", "₫", "", "đ", "", "$", "", "VND", "", "vnd", "")
)

// KeywordRule maps a label to the lowercase substrings that select it.
type KeywordRule struct {
	Label    string
	Keywords []string
}

// Taxonomy holds the ordered brand and category tables. The first matching
// rule wins.
type Taxonomy struct {
	Brands     []KeywordRule
	Categories []KeywordRule
}

// DefaultTaxonomy returns the production keyword tables.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Brands: []KeywordRule{
			{"Apple", []string{"iphone", "macbook", "ipad", "apple"}},
			{"Samsung", []string{"samsung", "galaxy", "note", "tab"}},
			{"Xiaomi", []string{"xiaomi", "redmi", "mi"}},
			{"OPPO", []string{"oppo", "reno", "find x"}},
			{"Huawei", []string{"huawei", "mate", "p20", "honor"}},
			{"Asus", []string{"asus", "zenfone", "rog"}},
			{"Lenovo", []string{"lenovo", "thinkpad", "yoga"}},
			{"Dell", []string{"dell", "xps", "inspiron"}},
			{"HP", []string{"hp", "pavilion", "envy"}},
		},
		Categories: []KeywordRule{
			{CategoryPhone, []string{"điện thoại", "dien thoai", "iphone"}},
			{CategoryLaptop, []string{"laptop", "macbook", "thinkpad", "xps"}},
			{CategoryTablet, []string{"máy tính bảng", "may tinh bang", "ipad", "galaxy tab"}},
		},
	}
}

func (t Taxonomy) brand(name string) string {
	if label := firstMatch(t.Brands, name); label != "" {
		return label
	}
	return unknownBrand
}

func (t Taxonomy) category(name string) string {
	if label := firstMatch(t.Categories, name); label != "" {
		return label
	}
	return CategoryAccessory
}

func firstMatch(rules []KeywordRule, name string) string {
	lower := strings.ToLower(name)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Label
			}
		}
	}
	return ""
}

// Cleaner transforms RawListings into canonical Products.
type Cleaner struct {
	taxonomy Taxonomy
	logger   *utils.Logger
}

// NewCleaner creates a Cleaner with the given keyword tables and logger.
func NewCleaner(taxonomy Taxonomy, logger *utils.Logger) *Cleaner {
	return &Cleaner{taxonomy: taxonomy, logger: logger}
}

// Clean maps one raw listing to a Product. It never fails: unparseable
// numbers become 0 and are left for the backfiller.
func (c *Cleaner) Clean(r *models.RawListing) models.Product {
	name := cleanName(r.Name)

	p := models.Product{
		Name:          name,
		Source:        r.Source,
		Price:         c.parsePrice(r.Price),
		OriginalPrice: c.parsePrice(r.OriginalPrice),
		SoldCount:     parseSold(r.Sold),
		ReviewCount:   r.Reviews.ReviewCount,
		ReviewScore:   r.Reviews.ReviewScore,
		Brand:         c.taxonomy.brand(name),
		Category:      c.taxonomy.category(name),
		ShopName:      normaliseText(r.ShopName),
		ShopLocation:  normaliseText(r.ShopLocation),
	}
	if r.DiscountRate != nil {
		p.DiscountRate = *r.DiscountRate
	}
	return p
}

// CleanAll maps a batch, keeping order.
func (c *Cleaner) CleanAll(raw []*models.RawListing) []models.Product {
	out := make([]models.Product, 0, len(raw))
	for _, r := range raw {
		out = append(out, c.Clean(r))
	}
	c.logger.Debug("[cleaner] Cleaned %d listings", len(out))
	return out
}

// parsePrice converts a scraped price to an integer amount.
// Examples:
//
//	16390000        → 16390000
//	"16.390.000 ₫"  → 16390000
//	"$1,200"        → 1200
func (c *Cleaner) parsePrice(raw models.RawField) int64 {
	if raw.Num != nil {
		if *raw.Num < 0 {
			return 0
		}
		return int64(*raw.Num)
	}
	if strings.TrimSpace(raw.Text) == "" {
		return 0
	}

	cleaned := priceNoise.Replace(raw.Text)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)

	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		c.logger.Warn("[cleaner] Could not parse price %q", raw.Text)
		return 0
	}
	return n
}

// parseSold converts a sold counter to an integer.
// Examples:
//
//	"Đã bán 1.2k" → 1200
//	"2,5K sold"   → 2500
//	"Đã bán 5"    → 5
//	"1.234 sold"  → 1234
func parseSold(raw models.RawField) int64 {
	if raw.Num != nil {
		if *raw.Num < 0 {
			return 0
		}
		return int64(*raw.Num)
	}

	m := soldRegexp.FindStringSubmatch(raw.Text)
	if len(m) < 2 {
		return 0
	}
	token := m[1]

	if m[2] != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
		if err != nil {
			return 0
		}
		return int64(math.Round(f * 1000))
	}

	digits := strings.NewReplacer(".", "", ",", "").Replace(token)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// cleanName trims whitespace and trailing ellipsis markers.
func cleanName(s string) string {
	s = normaliseText(s)
	for {
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "..."), "…"))
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
