package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/merchant-price-scraper/internal/database"
	"github.com/maltedev/merchant-price-scraper/internal/events"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

var ErrInvalidRequest = errors.New("productId and searchQuery are required")

type Scraper interface {
	ScrapeAll(ctx context.Context, query string) []models.ScraperResult
}

// Transactor is satisfied by *database.DB.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type PriceStore interface {
	UpsertPrice(ctx context.Context, tx pgx.Tx, productID string, offer models.Offer) (database.PriceRecord, error)
	ListPrices(ctx context.Context, productID string) ([]database.PriceRecord, error)
}

type EventPublisher interface {
	PublishPriceUpdated(ctx context.Context, tx pgx.Tx, payload *events.PriceUpdatedPayload) error
}

// Service scrapes every merchant for a product and stores the first offer
// of each merchant as that product's current price there.
type Service struct {
	scraper   Scraper
	tx        Transactor
	prices    PriceStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(scraper Scraper, tx Transactor, prices PriceStore, publisher EventPublisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		scraper:   scraper,
		tx:        tx,
		prices:    prices,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "price_updater"),
	}
}

type PriceUpdate struct {
	Merchant     string  `json:"merchant"`
	Price        float64 `json:"price"`
	URL          string  `json:"url"`
	AffiliateURL string  `json:"affiliateUrl,omitempty"`
}

type UpdateStats struct {
	MerchantsScraped int `json:"merchantsScraped"`
	PricesUpdated    int `json:"pricesUpdated"`
	Errors           int `json:"errors"`
}

type UpdateReport struct {
	Success       bool          `json:"success"`
	ProductID     string        `json:"productId"`
	SearchQuery   string        `json:"searchQuery"`
	Stats         UpdateStats   `json:"stats"`
	PricesUpdated []PriceUpdate `json:"pricesUpdated"`
	Errors        []string      `json:"errors,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// UpdatePrices scrapes searchQuery on every enabled merchant and upserts the
// first offer of each successful merchant under productID. Each upsert and
// its PRICE_UPDATED event share one transaction. Merchant level failures are
// reported, not returned.
func (s *Service) UpdatePrices(ctx context.Context, productID, searchQuery string) (*UpdateReport, error) {
	productID = strings.TrimSpace(productID)
	searchQuery = strings.TrimSpace(searchQuery)
	if productID == "" || searchQuery == "" {
		return nil, ErrInvalidRequest
	}

	s.logger.Info("updating prices", "product_id", productID, "query", searchQuery)

	results := s.scraper.ScrapeAll(ctx, searchQuery)

	report := &UpdateReport{
		Success:       true,
		ProductID:     productID,
		SearchQuery:   searchQuery,
		PricesUpdated: []PriceUpdate{},
	}

	for _, result := range results {
		if !result.Success || len(result.Products) == 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: no product found", result.Merchant))
			continue
		}

		offer := result.Products[0]
		if err := s.store(ctx, productID, searchQuery, offer); err != nil {
			s.logger.Error("failed to store price",
				"product_id", productID,
				"merchant", result.Merchant,
				"error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", result.Merchant, err))
			continue
		}

		report.PricesUpdated = append(report.PricesUpdated, PriceUpdate{
			Merchant:     offer.Merchant,
			Price:        offer.Price,
			URL:          offer.URL,
			AffiliateURL: offer.AffiliateURL,
		})
	}

	report.Stats = UpdateStats{
		MerchantsScraped: len(results),
		PricesUpdated:    len(report.PricesUpdated),
		Errors:           len(report.Errors),
	}
	report.Timestamp = time.Now()

	s.metrics.AddPricesUpdated(report.Stats.PricesUpdated)
	s.logger.Info("prices updated",
		"product_id", productID,
		"updated", report.Stats.PricesUpdated,
		"errors", report.Stats.Errors)

	return report, nil
}

func (s *Service) store(ctx context.Context, productID, searchQuery string, offer models.Offer) error {
	return s.tx.Transaction(ctx, func(tx pgx.Tx) error {
		record, err := s.prices.UpsertPrice(ctx, tx, productID, offer)
		if err != nil {
			return err
		}
		return s.publisher.PublishPriceUpdated(ctx, tx, events.NewPriceUpdatedPayload(record, searchQuery))
	})
}

func (s *Service) ListPrices(ctx context.Context, productID string) ([]database.PriceRecord, error) {
	return s.prices.ListPrices(ctx, productID)
}
