package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

// PriceRecord is the stored price of one product at one merchant.
type PriceRecord struct {
	ProductID    string              `json:"productId" db:"product_id"`
	Merchant     string              `json:"merchant" db:"merchant"`
	ExternalID   string              `json:"externalId" db:"external_id"`
	Name         string              `json:"name" db:"name"`
	Price        float64             `json:"price" db:"price"`
	Shipping     float64             `json:"shipping" db:"shipping"`
	Currency     string              `json:"currency" db:"currency"`
	Availability models.Availability `json:"availability" db:"availability"`
	URL          string              `json:"url" db:"url"`
	AffiliateURL *string             `json:"affiliateUrl,omitempty" db:"affiliate_url"`
	LastUpdated  time.Time           `json:"lastUpdated" db:"last_updated"`
}

func NewPriceRecord(productID string, offer models.Offer) PriceRecord {
	record := PriceRecord{
		ProductID:    productID,
		Merchant:     offer.Merchant,
		ExternalID:   offer.ExternalID,
		Name:         offer.Name,
		Price:        offer.Price,
		Shipping:     offer.Shipping,
		Currency:     offer.Currency,
		Availability: offer.Availability,
		URL:          offer.URL,
		LastUpdated:  offer.LastUpdated,
	}
	if record.Currency == "" {
		record.Currency = models.CurrencyEUR
	}
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now()
	}
	if offer.AffiliateURL != "" {
		affiliate := offer.AffiliateURL
		record.AffiliateURL = &affiliate
	}
	return record
}

type PriceRepository struct {
	db *DB
}

func NewPriceRepository(db *DB) *PriceRepository {
	return &PriceRepository{db: db}
}

const upsertPriceQuery = `
	INSERT INTO merchant_price (
		product_id, merchant, external_id, name, price, shipping,
		currency, availability, url, affiliate_url, last_updated
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	)
	ON CONFLICT (product_id, merchant) DO UPDATE SET
		external_id   = EXCLUDED.external_id,
		name          = EXCLUDED.name,
		price         = EXCLUDED.price,
		shipping      = EXCLUDED.shipping,
		currency      = EXCLUDED.currency,
		availability  = EXCLUDED.availability,
		url           = EXCLUDED.url,
		affiliate_url = EXCLUDED.affiliate_url,
		last_updated  = EXCLUDED.last_updated`

// UpsertPrice stores the offer as the current price of productID at the
// offer's merchant, replacing any previous row for that pair.
func (r *PriceRepository) UpsertPrice(ctx context.Context, tx pgx.Tx, productID string, offer models.Offer) (PriceRecord, error) {
	if productID == "" {
		return PriceRecord{}, fmt.Errorf("product id is required")
	}
	if offer.Merchant == "" {
		return PriceRecord{}, fmt.Errorf("offer merchant is required")
	}

	record := NewPriceRecord(productID, offer)

	_, err := tx.Exec(ctx, upsertPriceQuery,
		record.ProductID, record.Merchant, record.ExternalID, record.Name,
		record.Price, record.Shipping, record.Currency, string(record.Availability),
		record.URL, record.AffiliateURL, record.LastUpdated,
	)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("failed to upsert price: %w", err)
	}

	return record, nil
}

// ListPrices returns the stored prices of productID, most recent first.
func (r *PriceRepository) ListPrices(ctx context.Context, productID string) ([]PriceRecord, error) {
	query := `
		SELECT
			product_id, merchant, external_id, name, price::float8, shipping::float8,
			currency, availability, url, affiliate_url, last_updated
		FROM merchant_price
		WHERE product_id = $1
		ORDER BY last_updated DESC`

	rows, err := r.db.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	prices := []PriceRecord{}
	for rows.Next() {
		var p PriceRecord
		var availability string
		err := rows.Scan(
			&p.ProductID, &p.Merchant, &p.ExternalID, &p.Name, &p.Price, &p.Shipping,
			&p.Currency, &availability, &p.URL, &p.AffiliateURL, &p.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Availability = models.Availability(availability)
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return prices, nil
}
