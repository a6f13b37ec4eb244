package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/httpclient"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

var (
	ErrMerchantDisabled = errors.New("scraper disabled")
	ErrItemSkipped      = errors.New("item skipped")
	ErrNoExtractor      = errors.New("no extractor for merchant")
)

// DefaultResultLimit caps the number of offers kept per merchant and query.
const DefaultResultLimit = 10

// Extractor turns a search query into offers for one merchant.
type Extractor interface {
	Extract(ctx context.Context, query string) ([]models.Offer, error)
}

// Fetcher returns the raw body of a page relative to the merchant base URL.
type Fetcher interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

type Options struct {
	ResultLimit int
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ResultLimit <= 0 {
		o.ResultLimit = DefaultResultLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// NewExtractor returns the extractor matching cfg.ID.
func NewExtractor(cfg config.MerchantConfig, fetcher Fetcher, opts Options) (Extractor, error) {
	switch cfg.ID {
	case models.MerchantAmazon:
		return NewAmazonExtractor(cfg, fetcher, opts), nil
	case models.MerchantLDLC:
		return NewLDLCExtractor(cfg, fetcher, opts), nil
	case models.MerchantMaterielNet:
		return NewMaterielNetExtractor(cfg, fetcher, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoExtractor, cfg.ID)
	}
}

// NewHTTPClient builds the per-merchant client used by the extractors.
func NewHTTPClient(cfg config.MerchantConfig, scraperCfg config.ScraperConfig, opts httpclient.Options) *httpclient.Client {
	opts.BaseURL = cfg.BaseURL
	if opts.Timeout == 0 {
		opts.Timeout = scraperCfg.RequestTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = scraperCfg.UserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = scraperCfg.AcceptLanguage
	}
	return httpclient.New(opts)
}

// fallbackID is used when a listing exposes no stable identifier. Two scrapes
// of the same listing get different ids, so callers set Offer.FallbackID
// alongside it.
func fallbackID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
