package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/merchant-price-scraper/internal/cache"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

var ErrUnknownMerchant = errors.New("unknown merchant")

// Scraper is what the orchestrator fans out to. *scraper.Merchant
// implements it.
type Scraper interface {
	ID() models.MerchantID
	Name() string
	Enabled() bool
	Scrape(ctx context.Context, query string) models.ScraperResult
}

type Options struct {
	// Deadline bounds a whole ScrapeAll call. Merchants that have not
	// settled by then are reported as timed out. Zero means no deadline.
	Deadline time.Duration
	Cache    *cache.ResultCache
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Orchestrator owns one long-lived Scraper per merchant so that rate limit
// state carries over between calls.
type Orchestrator struct {
	merchants []Scraper
	byID      map[models.MerchantID]Scraper
	deadline  time.Duration
	cache     *cache.ResultCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(merchants []Scraper, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	byID := make(map[models.MerchantID]Scraper, len(merchants))
	for _, m := range merchants {
		byID[m.ID()] = m
	}

	return &Orchestrator{
		merchants: merchants,
		byID:      byID,
		deadline:  opts.Deadline,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "orchestrator"),
	}
}

// Merchants returns the configured merchants in configuration order.
func (o *Orchestrator) Merchants() []Scraper {
	out := make([]Scraper, len(o.merchants))
	copy(out, o.merchants)
	return out
}

type settled struct {
	id     models.MerchantID
	result models.ScraperResult
}

// ScrapeAll runs every enabled merchant concurrently and waits for all of
// them to settle. One merchant failing, panicking or timing out never
// affects the others. Results come back in settlement order.
func (o *Orchestrator) ScrapeAll(ctx context.Context, query string) []models.ScraperResult {
	var targets []Scraper
	for _, m := range o.merchants {
		if m.Enabled() {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return []models.ScraperResult{}
	}

	var deadline <-chan struct{}
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
		deadline = ctx.Done()
	}

	start := time.Now()
	// Buffered so that merchants finishing after the deadline never block.
	done := make(chan settled, len(targets))
	for _, m := range targets {
		go func(m Scraper) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("merchant panicked", "merchant", m.Name(), "panic", r)
					done <- settled{id: m.ID(), result: models.NewFailedResult(m.Name(), fmt.Sprintf("panic: %v", r))}
				}
			}()
			done <- settled{id: m.ID(), result: o.scrape(ctx, m, query)}
		}(m)
	}

	results, seen := collectSettled(done, len(targets), deadline)
	for _, m := range targets {
		if seen[m.ID()] {
			continue
		}
		o.logger.Warn("merchant did not settle before deadline", "merchant", m.Name(), "deadline", o.deadline)
		o.metrics.IncError(m.Name(), "timeout")
		results = append(results, models.NewFailedResult(m.Name(),
			fmt.Sprintf("timeout: no result within %s", o.deadline)))
	}

	o.logger.Info("scrape fan-out settled",
		"query", query,
		"merchants", len(targets),
		"duration", time.Since(start))

	return results
}

// collectSettled reads up to want results from done until deadline fires.
// Results already buffered when the deadline fires are still collected.
func collectSettled(done <-chan settled, want int, deadline <-chan struct{}) ([]models.ScraperResult, map[models.MerchantID]bool) {
	results := make([]models.ScraperResult, 0, want)
	seen := make(map[models.MerchantID]bool, want)
	add := func(s settled) {
		seen[s.id] = true
		results = append(results, s.result)
	}

wait:
	for len(results) < want {
		select {
		case s := <-done:
			add(s)
		case <-deadline:
			break wait
		}
	}

	for len(results) < want {
		select {
		case s := <-done:
			add(s)
		default:
			return results, seen
		}
	}
	return results, seen
}

// ScrapeOne scrapes a single merchant. It returns ErrUnknownMerchant for an
// id outside the configured set; any other failure is carried in the result.
func (o *Orchestrator) ScrapeOne(ctx context.Context, id models.MerchantID, query string) (models.ScraperResult, error) {
	m, ok := o.byID[id]
	if !ok {
		return models.ScraperResult{}, fmt.Errorf("%w: %q", ErrUnknownMerchant, id)
	}
	return o.scrape(ctx, m, query), nil
}

func (o *Orchestrator) scrape(ctx context.Context, m Scraper, query string) models.ScraperResult {
	if cached, ok := o.cache.Get(m.ID(), query); ok {
		o.metrics.IncCacheHit()
		o.logger.Debug("serving cached result", "merchant", m.Name(), "query", query)
		return cached
	}

	result := m.Scrape(ctx, query)
	o.cache.Add(m.ID(), query, result)
	return result
}
