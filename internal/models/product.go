package models

import (
	"time"
)

type MerchantID string

const (
	MerchantAmazon      MerchantID = "amazon"
	MerchantLDLC        MerchantID = "ldlc"
	MerchantMaterielNet MerchantID = "materielnet"
)

// AllMerchants is the closed set of merchants the scraper knows about.
var AllMerchants = []MerchantID{MerchantAmazon, MerchantLDLC, MerchantMaterielNet}

func (id MerchantID) Valid() bool {
	for _, m := range AllMerchants {
		if m == id {
			return true
		}
	}
	return false
}

type Availability string

const (
	InStock    Availability = "in-stock"
	Limited    Availability = "limited"
	OutOfStock Availability = "out-of-stock"
)

const CurrencyEUR = "EUR"

// Offer is one priced listing parsed from a merchant search page.
type Offer struct {
	ExternalID   string       `json:"externalId"`
	// FallbackID marks an ExternalID generated at scrape time. It changes on
	// every scrape of the same listing and must not be used as a key.
	FallbackID   bool         `json:"-"`
	Merchant     string       `json:"merchant"`
	Name         string       `json:"name"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Price        float64      `json:"price"`
	Currency     string       `json:"currency"`
	URL          string       `json:"url"`
	AffiliateURL string       `json:"affiliateUrl,omitempty"`
	Shipping     float64      `json:"shipping"`
	Availability Availability `json:"availability"`
	LastUpdated  time.Time    `json:"lastUpdated"`
	Rating       *float64     `json:"rating,omitempty"`
	ReviewCount  *int         `json:"reviewCount,omitempty"`
}

// Total is the landed cost of the offer.
func (o *Offer) Total() float64 {
	return o.Price + o.Shipping
}

// LinkURL returns the affiliate link when one was generated.
func (o *Offer) LinkURL() string {
	if o.AffiliateURL != "" {
		return o.AffiliateURL
	}
	return o.URL
}

func (o *Offer) Validate() []string {
	var errors []string

	if o.Name == "" {
		errors = append(errors, "name is required")
	}

	if !(o.Price > 0) {
		errors = append(errors, "price must be positive")
	}

	if o.Shipping < 0 {
		errors = append(errors, "shipping cannot be negative")
	}

	if o.URL == "" {
		errors = append(errors, "url is required")
	}

	return errors
}

// ScraperResult is the outcome of one merchant scrape.
type ScraperResult struct {
	Success   bool      `json:"success"`
	Products  []Offer   `json:"products"`
	Errors    []string  `json:"errors,omitempty"`
	ScrapedAt time.Time `json:"scrapedAt"`
	Merchant  string    `json:"merchant"`
}

func NewFailedResult(merchant string, messages ...string) ScraperResult {
	return ScraperResult{
		Success:   false,
		Products:  []Offer{},
		Errors:    messages,
		ScrapedAt: time.Now(),
		Merchant:  merchant,
	}
}

func NewSuccessResult(merchant string, offers []Offer) ScraperResult {
	if offers == nil {
		offers = []Offer{}
	}
	return ScraperResult{
		Success:   true,
		Products:  offers,
		ScrapedAt: time.Now(),
		Merchant:  merchant,
	}
}
