package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/merchant-price-scraper/internal/database"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePriceUpdated is published whenever a merchant price is stored.
	EventTypePriceUpdated EventType = "PRICE_UPDATED"

	AggregateTypeProductPrice = "product_price"
)

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PriceUpdatedPayload is the body of a PRICE_UPDATED event.
type PriceUpdatedPayload struct {
	EventID      string              `json:"event_id"`
	EventType    string              `json:"event_type"`
	Timestamp    time.Time           `json:"timestamp"`
	ProductID    string              `json:"product_id"`
	SearchQuery  string              `json:"search_query,omitempty"`
	Merchant     string              `json:"merchant"`
	ExternalID   string              `json:"external_id"`
	Name         string              `json:"name"`
	Price        Price               `json:"price"`
	Shipping     float64             `json:"shipping"`
	Total        float64             `json:"total"`
	Availability models.Availability `json:"availability"`
	URL          string              `json:"url"`
	AffiliateURL string              `json:"affiliate_url,omitempty"`
	Source       string              `json:"source"`
}

func NewPriceUpdatedPayload(record database.PriceRecord, searchQuery string) *PriceUpdatedPayload {
	payload := &PriceUpdatedPayload{
		ProductID:    record.ProductID,
		SearchQuery:  searchQuery,
		Merchant:     record.Merchant,
		ExternalID:   record.ExternalID,
		Name:         record.Name,
		Price:        Price{Amount: record.Price, Currency: record.Currency},
		Shipping:     record.Shipping,
		Total:        record.Price + record.Shipping,
		Availability: record.Availability,
		URL:          record.URL,
	}
	if record.AffiliateURL != nil {
		payload.AffiliateURL = *record.AffiliateURL
	}
	return payload
}

// OutboxWriter is satisfied by *database.OutboxRepository.
type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes events to the transactional outbox. Events are inserted
// in the caller's transaction so they are only relayed when the change they
// describe is committed.
type Publisher struct {
	outbox OutboxWriter
	stream string
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	return &Publisher{
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) PublishPriceUpdated(ctx context.Context, tx pgx.Tx, payload *PriceUpdatedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypePriceUpdated)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "scraper"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: AggregateTypeProductPrice,
		AggregateID:   payload.ProductID,
		EventType:     string(EventTypePriceUpdated),
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"product_id", payload.ProductID,
		"merchant", payload.Merchant,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
