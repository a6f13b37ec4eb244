package orchestrator

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maltedev/merchant-price-scraper/internal/cache"
	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/httpclient"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/ratelimit"
	"github.com/maltedev/merchant-price-scraper/internal/scraper"
)

// maxBackoffFactor bounds how far a throttled merchant's interval may grow.
const maxBackoffFactor = 8

type Deps struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Transport overrides the HTTP transport of every merchant client.
	Transport http.RoundTripper
}

// Build wires one Merchant per configured merchant, each with its own HTTP
// client and rate limiter.
func Build(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	merchants := make([]Scraper, 0, len(cfg.Merchants))
	for _, mc := range cfg.Merchants {
		client := scraper.NewHTTPClient(mc, cfg.Scraper, httpclient.Options{Transport: deps.Transport})

		extractor, err := scraper.NewExtractor(mc, client, scraper.Options{
			ResultLimit: cfg.Scraper.ResultLimit,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build merchant %s: %w", mc.ID, err)
		}

		limiter := ratelimit.NewBackoffLimiter(mc.RateLimit, mc.RateLimit*maxBackoffFactor)
		merchants = append(merchants, scraper.NewMerchant(mc, extractor, limiter, deps.Metrics, logger))

		logger.Debug("merchant configured",
			"merchant", mc.Name,
			"base_url", mc.BaseURL,
			"enabled", mc.Enabled,
			"rate_limit", mc.RateLimit)
	}

	var resultCache *cache.ResultCache
	if cfg.Scraper.CacheTTL > 0 {
		resultCache = cache.New(cfg.Scraper.CacheSize, cfg.Scraper.CacheTTL)
	}

	return New(merchants, Options{
		Deadline: cfg.Scraper.FanoutDeadline,
		Cache:    resultCache,
		Metrics:  deps.Metrics,
		Logger:   logger,
	}), nil
}
