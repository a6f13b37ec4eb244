package scraper

import (
	"context"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/parser"
)

var (
	ldlcItemSelectors  = []string{"li.pdt-item", "div.listing-product li", "article.pdt-item"}
	ldlcTitleSelectors = []string{".title-3", ".pdt-desc h3", "h3"}
	ldlcPriceSelectors = []string{".price .price", ".price", `[class*="price"]`}
	ldlcStockSelectors = []string{".stock", ".stock-web", `[class*="stock"]`}
	ldlcLinkSelectors  = []parser.AttrCandidate{
		{Selector: "a.pdt-item-link", Attr: "href"},
		{Selector: ".title-3 a", Attr: "href"},
		{Selector: `a[href*="/fiche/"]`, Attr: "href"},
	}
	ldlcImageSelectors = []parser.AttrCandidate{
		{Selector: "img.lazy", Attr: "data-src"},
		{Selector: "img", Attr: "data-src"},
		{Selector: "img", Attr: "src"},
	}

	ldlcIDPattern = regexp.MustCompile(`/fiche/PB(\d+)\.html`)
)

type LDLCExtractor struct {
	cfg  config.MerchantConfig
	page listingPage
}

func NewLDLCExtractor(cfg config.MerchantConfig, fetcher Fetcher, opts Options) *LDLCExtractor {
	opts = opts.withDefaults()
	return &LDLCExtractor{
		cfg: cfg,
		page: listingPage{
			cfg:           cfg,
			fetcher:       fetcher,
			itemSelectors: ldlcItemSelectors,
			limit:         opts.ResultLimit,
			logger:        opts.Logger.With("merchant", cfg.Name),
		},
	}
}

func (e *LDLCExtractor) SearchPath(query string) string {
	return "/recherche/" + url.PathEscape(query) + "/"
}

func (e *LDLCExtractor) Extract(ctx context.Context, query string) ([]models.Offer, error) {
	return e.page.collect(ctx, e.SearchPath(query), e.parseItem)
}

func (e *LDLCExtractor) parseItem(item *goquery.Selection) (models.Offer, error) {
	href := parser.FirstAttr(item, ldlcLinkSelectors)

	offer := models.Offer{
		Name:         parser.FirstText(item, ldlcTitleSelectors),
		Price:        parser.ParsePrice(parser.FirstText(item, ldlcPriceSelectors)),
		URL:          parser.ResolveURL(e.cfg.BaseURL, href),
		Availability: e.cfg.Stock.Classify(parser.FirstText(item, ldlcStockSelectors)),
	}

	if img := parser.FirstAttr(item, ldlcImageSelectors); img != "" {
		offer.ImageURL = parser.ResolveURL(e.cfg.BaseURL, img)
	}

	if m := ldlcIDPattern.FindStringSubmatch(href); m != nil {
		offer.ExternalID = "ldlc-" + m[1]
	} else {
		offer.ExternalID, offer.FallbackID = fallbackID("ldlc"), true
	}

	return offer, nil
}
