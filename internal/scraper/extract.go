package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/merchant-price-scraper/internal/affiliate"
	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/parser"
)

// itemParser reads one listing element. It fills the merchant-specific
// fields; finishOffer applies the shared ones.
type itemParser func(item *goquery.Selection) (models.Offer, error)

type listingPage struct {
	cfg           config.MerchantConfig
	fetcher       Fetcher
	itemSelectors []string
	limit         int
	logger        *slog.Logger
}

// collect fetches path and parses every listing on it. Items that fail to
// parse are dropped one by one. A page where no item selector matches is
// not an error: it yields an empty slice.
func (p listingPage) collect(ctx context.Context, path string, parse itemParser) ([]models.Offer, error) {
	body, err := p.fetcher.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	items, selector := parser.FirstMatch(doc.Selection, p.itemSelectors)
	if selector == "" {
		p.logger.Warn("no listing matched any item selector", "path", path)
		return []models.Offer{}, nil
	}

	p.logger.Debug("listings found", "selector", selector, "count", items.Length())

	offers := make([]models.Offer, 0, min(items.Length(), p.limit))
	skipped := 0
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		offer, err := p.parseItem(item, parse)
		if err != nil {
			skipped++
			p.logger.Debug("listing skipped", "index", i, "error", err)
			return true
		}
		offers = append(offers, offer)
		return len(offers) < p.limit
	})

	if skipped > 0 {
		p.logger.Info("listings skipped", "skipped", skipped, "kept", len(offers))
	}

	return offers, nil
}

func (p listingPage) parseItem(item *goquery.Selection, parse itemParser) (offer models.Offer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrItemSkipped, r)
		}
	}()

	offer, err = parse(item)
	if err != nil {
		return models.Offer{}, err
	}
	return p.finishOffer(offer)
}

func (p listingPage) finishOffer(offer models.Offer) (models.Offer, error) {
	if offer.Name == "" {
		return models.Offer{}, fmt.Errorf("%w: missing name", ErrItemSkipped)
	}
	if !parser.ValidPrice(offer.Price) {
		return models.Offer{}, fmt.Errorf("%w: %w", ErrItemSkipped, parser.ErrNoPrice)
	}
	if offer.URL == "" {
		return models.Offer{}, fmt.Errorf("%w: missing url", ErrItemSkipped)
	}

	offer.Merchant = p.cfg.Name
	offer.Currency = models.CurrencyEUR
	offer.Shipping = p.cfg.Shipping.Cost(offer.Price)
	offer.LastUpdated = time.Now()
	if offer.Availability == "" {
		offer.Availability = models.InStock
	}

	if p.cfg.AffiliateTag != "" {
		link, err := affiliate.Rewrite(offer.URL, p.cfg.AffiliateTag)
		if err != nil {
			p.logger.Debug("affiliate link not generated", "url", offer.URL, "error", err)
		} else {
			offer.AffiliateURL = link
		}
	}

	return offer, nil
}
