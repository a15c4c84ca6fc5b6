package services

import (
	"math"
	"math/rand"

	"product-ingest/models"
)

// Shop is one entry in a source's reference shop list.
type Shop struct {
	Name     string
	Location string
}

// ShippingProfile describes a source's shipping fee distribution.
type ShippingProfile struct {
	FreeProbability float64
	PaidFees        []int64
}

// Reference holds the immutable per-source tables the Backfiller draws from.
type Reference struct {
	Shops    map[string][]Shop
	Shipping map[string]ShippingProfile
	// Fallback is used for sources with no entry of their own.
	Fallback string
}

// DefaultReference returns the production reference tables.
func DefaultReference() Reference {
	return Reference{
		Shops: map[string][]Shop{
			models.SourceTiki: {
				{"Tiki Trading", "Hồ Chí Minh"},
				{"Samsung Flagship Store", "Hà Nội"},
				{"Anker Official", "Hồ Chí Minh"},
				{"Minh Tuan Mobile", "Hồ Chí Minh"},
			},
			models.SourceLazada: {
				{"LazMall Apple", "Hồ Chí Minh"},
				{"Phụ Kiện Giá Xưởng", "Quốc Tế"},
				{"Tech Zone Global", "Hà Nội"},
				{"Shop Bán Rẻ", "Lạng Sơn"},
			},
		},
		Shipping: map[string]ShippingProfile{
			models.SourceTiki:   {FreeProbability: 0.7, PaidFees: []int64{12000, 15000}},
			models.SourceLazada: {FreeProbability: 0.2, PaidFees: []int64{25000, 32000, 45000}},
		},
		Fallback: models.SourceLazada,
	}
}

func (r Reference) shops(source string) []Shop {
	if s, ok := r.Shops[source]; ok && len(s) > 0 {
		return s
	}
	return r.Shops[r.Fallback]
}

func (r Reference) shipping(source string) ShippingProfile {
	if s, ok := r.Shipping[source]; ok {
		return s
	}
	return r.Shipping[r.Fallback]
}

var stockStatuses = []string{models.StockLow, models.StockOut, models.StockIn}

// Backfiller fills every analytically-required field a Product is missing.
// It is not safe for concurrent use; give each goroutine its own.
type Backfiller struct {
	rng *rand.Rand
	ref Reference
}

// NewBackfiller creates a Backfiller drawing from rng.
func NewBackfiller(rng *rand.Rand, ref Reference) *Backfiller {
	return &Backfiller{rng: rng, ref: ref}
}

// Fill returns p with missing fields synthesized. Fields that already hold
// a real value are kept; discount rate, the rating split and revenue are
// always derived from the final values.
func (b *Backfiller) Fill(p models.Product) models.Product {
	if p.SoldCount <= 0 {
		if b.rng.Intn(2) == 0 {
			p.SoldCount = int64(b.intBetween(50, 200))
		} else {
			p.SoldCount = int64(b.intBetween(500, 5000))
		}
	}

	if p.ReviewCount <= 0 {
		p.ReviewCount = int(float64(p.SoldCount) * b.uniform(0.05, 0.1))
		if p.ReviewCount == 0 {
			p.ReviewCount = b.intBetween(1, 10)
		}
	}

	if p.ReviewScore <= 0 {
		p.ReviewScore = math.Round(b.uniform(3.5, 5.0)*10) / 10
	}

	if p.ReviewScore >= 4.5 {
		p.RatingCount5Star = int(float64(p.ReviewCount) * 0.9)
		p.RatingCount1Star = int(float64(p.ReviewCount) * 0.02)
	} else {
		p.RatingCount5Star = int(float64(p.ReviewCount) * 0.5)
		p.RatingCount1Star = int(float64(p.ReviewCount) * 0.3)
	}

	if p.OriginalPrice <= p.Price {
		p.OriginalPrice = b.markup(p.Price)
	}
	p.DiscountRate = int(math.Round(float64(p.OriginalPrice-p.Price) / float64(p.OriginalPrice) * 100))

	if p.ShippingFeeEstimate == nil {
		profile := b.ref.shipping(p.Source)
		var fee int64
		if b.rng.Float64() >= profile.FreeProbability && len(profile.PaidFees) > 0 {
			fee = profile.PaidFees[b.rng.Intn(len(profile.PaidFees))]
		}
		p.ShippingFeeEstimate = &fee
	}

	if shops := b.ref.shops(p.Source); len(shops) > 0 {
		switch {
		case p.ShopName == "":
			shop := shops[b.rng.Intn(len(shops))]
			p.ShopName = shop.Name
			p.ShopLocation = shop.Location
		case p.ShopLocation == "":
			p.ShopLocation = shops[b.rng.Intn(len(shops))].Location
		}
	}

	if p.StockStatus == "" {
		if p.SoldCount > 1000 {
			p.StockStatus = stockStatuses[b.rng.Intn(len(stockStatuses))]
		} else {
			p.StockStatus = models.StockIn
		}
	}

	p.EstimatedMonthlyRevenue = int64(float64(p.Price) * float64(p.SoldCount) * 0.05)
	return p
}

// markup synthesizes an original price strictly above price, rounded down
// to the thousand when that keeps it above.
func (b *Backfiller) markup(price int64) int64 {
	if price <= 0 {
		return 1000
	}
	m := b.uniform(1.1, 1.4)
	orig := int64(math.Floor(float64(price)*m/1000)) * 1000
	if orig <= price {
		orig = int64(math.Ceil(float64(price) * m))
	}
	if orig <= price {
		orig = price + 1
	}
	return orig
}

func (b *Backfiller) intBetween(lo, hi int) int {
	return lo + b.rng.Intn(hi-lo+1)
}

func (b *Backfiller) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}
