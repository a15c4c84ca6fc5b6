package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"product-ingest/models"
	"product-ingest/utils"
)

const topN = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(rows []*models.CatalogRow) *models.InsightReport {
	report := &models.InsightReport{
		ProductsBySource:   make(map[string]int),
		ProductsByCategory: make(map[string]int),
	}

	if len(rows) == 0 {
		return report
	}

	report.TotalProducts = len(rows)

	var priced []*models.CatalogRow
	var totalPrice, totalDiscount float64
	for _, r := range rows {
		report.ProductsBySource[r.Source]++
		if r.Category != "" {
			report.ProductsByCategory[r.Category]++
		}
		if r.Price > 0 {
			priced = append(priced, r)
			totalPrice += float64(r.Price)
		}
		totalDiscount += float64(r.DiscountRate)
	}

	if len(priced) > 0 {
		report.AveragePrice = round2(totalPrice / float64(len(priced)))
	}
	report.AverageDiscount = round2(totalDiscount / float64(len(rows)))

	// Top 5 by estimated revenue
	byRevenue := append([]*models.CatalogRow(nil), rows...)
	sort.SliceStable(byRevenue, func(i, j int) bool {
		return byRevenue[i].EstimatedMonthlyRevenue > byRevenue[j].EstimatedMonthlyRevenue
	})
	report.TopRevenue = firstN(byRevenue, topN)

	// Top 5 by rating, more reviews first on ties
	var rated []*models.CatalogRow
	for _, r := range rows {
		if r.ReviewScore > 0 {
			rated = append(rated, r)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].ReviewScore != rated[j].ReviewScore {
			return rated[i].ReviewScore > rated[j].ReviewScore
		}
		return rated[i].ReviewCount > rated[j].ReviewCount
	})
	report.TopRated = firstN(rated, topN)

	return report
}

func (s *InsightService) Print(r *models.InsightReport) {
	s.Fprint(os.Stdout, r)
}

func (s *InsightService) Fprint(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 CATALOG INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Products in catalog : \033[1m%d\033[0m\n", r.TotalProducts)
	for _, kv := range sortedCounts(r.ProductsBySource) {
		fmt.Fprintf(w, "  %-20s: \033[1m%d\033[0m\n", kv.key, kv.count)
	}
	fmt.Fprintln(w)

	// Prices
	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price    : \033[1;32m%s\033[0m\n", formatVND(int64(r.AveragePrice)))
		fmt.Fprintf(w, "  Average discount : \033[1;32m%.2f%%\033[0m\n", r.AverageDiscount)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// ── TOP 5 BY REVENUE ─────────────────────────────────────────────────
	fmt.Fprintf(w, "\033[1;33m  Top 5 by Estimated Monthly Revenue\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopRevenue) == 0 {
		fmt.Fprintf(w, "  No products found\n")
	}
	for i, p := range r.TopRevenue {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-38s %-7s \033[1;32m%s\033[0m\n",
			i+1, truncate(p.Name, 36), p.Source, formatVND(p.EstimatedMonthlyRevenue))
	}
	fmt.Fprintln(w)

	// ── TOP 5 HIGHEST RATED ──────────────────────────────────────────────
	fmt.Fprintf(w, "\033[1;33m  Top 5 Highest Rated Products\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopRated) == 0 {
		fmt.Fprintf(w, "  No rated products found\n")
	}
	for i, p := range r.TopRated {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-38s \033[1;32m%.1f ★\033[0m (%d reviews)\n",
			i+1, truncate(p.Name, 36), p.ReviewScore, p.ReviewCount)
	}
	fmt.Fprintln(w)

	// Products by Category
	fmt.Fprintf(w, "\033[1;33m  Products by Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ProductsByCategory) == 0 {
		fmt.Fprintf(w, "  No category data\n")
	}
	for _, kv := range sortedCounts(r.ProductsByCategory) {
		bar := strings.Repeat("█", barLength(kv.count, r.TotalProducts))
		fmt.Fprintf(w, "  %-12s %s (%d)\n", kv.key, bar, kv.count)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders a histogram by count descending, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func barLength(count, total int) int {
	const width = 30
	if total == 0 {
		return 0
	}
	n := count * width / total
	if n == 0 && count > 0 {
		n = 1
	}
	return n
}

func firstN(rows []*models.CatalogRow, n int) []*models.CatalogRow {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// formatVND renders 16390000 as "16.390.000 ₫".
func formatVND(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String() + " ₫"
	}
	return b.String() + " ₫"
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
