// Package compare ranks offers gathered from several merchants.
package compare

import (
	"time"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

// Total is the price the buyer actually pays: item price plus shipping.
func Total(offer models.Offer) float64 {
	return offer.Total()
}

// BestOffer returns the offer with the lowest total. On a tie the earliest
// offer in the slice wins. It reports false for an empty slice.
func BestOffer(offers []models.Offer) (models.Offer, bool) {
	if len(offers) == 0 {
		return models.Offer{}, false
	}

	best := offers[0]
	bestTotal := Total(best)
	for _, offer := range offers[1:] {
		if total := Total(offer); total < bestTotal {
			best, bestTotal = offer, total
		}
	}
	return best, true
}

// Savings is the difference between the most and the least expensive total.
// It is 0 for fewer than two offers.
func Savings(offers []models.Offer) float64 {
	if len(offers) < 2 {
		return 0
	}

	lowest, highest := Total(offers[0]), Total(offers[0])
	for _, offer := range offers[1:] {
		total := Total(offer)
		if total < lowest {
			lowest = total
		}
		if total > highest {
			highest = total
		}
	}
	return highest - lowest
}

// Flatten collects the offers of every successful result, keeping result
// order then offer order.
func Flatten(results []models.ScraperResult) []models.Offer {
	offers := []models.Offer{}
	for _, r := range results {
		if !r.Success {
			continue
		}
		offers = append(offers, r.Products...)
	}
	return offers
}

type Stats struct {
	TotalProducts    int       `json:"totalProducts"`
	MerchantsScraped int       `json:"merchantsScraped"`
	MerchantsFailed  int       `json:"merchantsFailed"`
	ScrapedAt        time.Time `json:"scrapedAt"`
}

func Summarize(results []models.ScraperResult) Stats {
	stats := Stats{ScrapedAt: time.Now()}
	for _, r := range results {
		if !r.Success {
			stats.MerchantsFailed++
			continue
		}
		stats.MerchantsScraped++
		stats.TotalProducts += len(r.Products)
	}
	return stats
}
