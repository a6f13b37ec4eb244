// Package app wires the persistence stack shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/database"
	"github.com/maltedev/merchant-price-scraper/internal/events"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/pricing"
)

// Persistence holds the Postgres pool, the outbox relay and the price
// service built on top of them.
type Persistence struct {
	DB      *database.DB
	Redis   *redis.Client
	Relay   *database.Relay
	Service *pricing.Service
}

// OpenPersistence connects to Postgres and Redis, applies the schema and
// builds the price service around scraper.
func OpenPersistence(ctx context.Context, cfg *config.Config, scraper pricing.Scraper, m *metrics.Metrics, logger *slog.Logger) (*Persistence, error) {
	db, err := database.New(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	outbox := database.NewOutboxRepository(db)
	relay := database.NewRelay(outbox, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Persistence.PollInterval,
		BatchSize:    cfg.Persistence.BatchSize,
	})
	publisher := events.NewPublisher(outbox, cfg.Redis.Stream, logger)
	service := pricing.NewService(scraper, db, database.NewPriceRepository(db), publisher, m, logger)

	return &Persistence{
		DB:      db,
		Redis:   redisClient,
		Relay:   relay,
		Service: service,
	}, nil
}

// StartRelay runs the outbox relay in the background until ctx is done.
func (p *Persistence) StartRelay(ctx context.Context, logger *slog.Logger) {
	go func() {
		if err := p.Relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()
}

func (p *Persistence) Close() {
	if err := p.Redis.Close(); err != nil {
		slog.Warn("failed to close redis client", "error", err)
	}
	p.DB.Close()
}
