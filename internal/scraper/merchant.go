package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/httpclient"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/ratelimit"
)

var tracer = otel.Tracer("merchant-price-scraper/scraper")

// Merchant is the public face of one merchant: it enforces the enabled flag
// and the rate limit, and turns every failure of its extractor into a failed
// ScraperResult. Scrape never panics.
type Merchant struct {
	cfg       config.MerchantConfig
	extractor Extractor
	limiter   ratelimit.RateLimiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewMerchant(cfg config.MerchantConfig, extractor Extractor, limiter ratelimit.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Merchant {
	if limiter == nil {
		limiter = ratelimit.NewMinIntervalLimiter(cfg.RateLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merchant{
		cfg:       cfg,
		extractor: extractor,
		limiter:   limiter,
		metrics:   m,
		logger:    logger.With("component", "merchant", "merchant", cfg.Name),
	}
}

func (m *Merchant) ID() models.MerchantID {
	return m.cfg.ID
}

func (m *Merchant) Name() string {
	return m.cfg.Name
}

func (m *Merchant) Enabled() bool {
	return m.cfg.Enabled
}

func (m *Merchant) Scrape(ctx context.Context, query string) (result models.ScraperResult) {
	if !m.cfg.Enabled {
		return models.NewFailedResult(m.cfg.Name, fmt.Sprintf("%v: %s", ErrMerchantDisabled, m.cfg.Name))
	}

	ctx, span := tracer.Start(ctx, "merchant.Scrape", trace.WithAttributes(
		attribute.String("merchant", string(m.cfg.ID)),
		attribute.String("query", query),
	))
	defer span.End()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = m.fail(span, fmt.Errorf("extractor panic: %v", r), start)
		}
	}()

	if err := m.limiter.Wait(ctx); err != nil {
		return m.fail(span, fmt.Errorf("rate limiter: %w", err), start)
	}

	offers, err := m.extractor.Extract(ctx, query)
	m.recordFeedback(err)
	if err != nil {
		return m.fail(span, err, start)
	}

	if len(offers) == 0 {
		m.logger.Warn("no offers found", "query", query)
	}

	span.SetAttributes(attribute.Int("offers", len(offers)))
	m.metrics.ObserveScrape(m.cfg.Name, true, len(offers), time.Since(start))
	m.logger.Info("scrape completed",
		"query", query,
		"offers", len(offers),
		"duration", time.Since(start))

	return models.NewSuccessResult(m.cfg.Name, offers)
}

func (m *Merchant) fail(span trace.Span, err error, start time.Time) models.ScraperResult {
	label := httpclient.ErrorLabel(err)
	if errors.Is(err, context.DeadlineExceeded) && label == "other" {
		label = "timeout"
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	m.metrics.ObserveScrape(m.cfg.Name, false, 0, time.Since(start))
	m.metrics.IncError(m.cfg.Name, label)
	m.logger.Error("scrape failed", "error", err, "error_type", label)

	return models.NewFailedResult(m.cfg.Name, err.Error())
}

func (m *Merchant) recordFeedback(err error) {
	fb, ok := m.limiter.(ratelimit.Feedback)
	if !ok {
		return
	}

	var netErr *httpclient.NetworkError
	switch {
	case err == nil:
		fb.RecordSuccess()
	case errors.As(err, &netErr) && netErr.Throttled():
		fb.RecordThrottled()
	}
}
