package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

func TestPrintResults(t *testing.T) {
	results := []models.ScraperResult{
		models.NewSuccessResult("LDLC", []models.Offer{
			{Merchant: "LDLC", Name: "SSD 2To", Price: 129.95, Shipping: 4.99, Currency: "EUR", URL: "https://www.ldlc.com/fiche/PB1.html", Availability: models.InStock},
		}),
		models.NewSuccessResult("Amazon", []models.Offer{
			{Merchant: "Amazon", Name: "SSD 2To", Price: 119.99, Currency: "EUR", URL: "https://www.amazon.fr/dp/B0TEST", AffiliateURL: "https://www.amazon.fr/dp/B0TEST?tag=shop-21", Availability: models.InStock},
		}),
		models.NewFailedResult("Materiel.net", "timeout: no result within 5s"),
	}

	var buf bytes.Buffer
	printResults(&buf, results)
	out := buf.String()

	assert.Contains(t, out, "2 offers from 2 merchants (1 failed)")
	assert.Contains(t, out, "failed: timeout: no result within 5s")
	assert.Contains(t, out, "best: SSD 2To at Amazon for 119.99 EUR (https://www.amazon.fr/dp/B0TEST?tag=shop-21)")
	assert.Contains(t, out, "savings vs most expensive: 14.95")
}

func TestPrintResults_NoOffers(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, []models.ScraperResult{models.NewSuccessResult("LDLC", nil)})

	assert.Contains(t, buf.String(), "no offers found")
	assert.NotContains(t, buf.String(), "best:")
}
