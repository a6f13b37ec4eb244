package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/parser"
)

var (
	materielNetItemSelectors  = []string{"div.c-product", "li.c-products-list__item", "article.c-product"}
	materielNetTitleSelectors = []string{".c-product__title", ".c-product__name", "h2"}
	materielNetPriceSelectors = []string{".c-product__price", ".o-product__price", `[class*="price"]`}
	materielNetStockSelectors = []string{".c-product__stock", ".o-availability", `[class*="stock"]`}
	materielNetLinkSelectors  = []parser.AttrCandidate{
		{Selector: "a.c-product__link", Attr: "href"},
		{Selector: ".c-product__title a", Attr: "href"},
		{Selector: `a[href*="/produit/"]`, Attr: "href"},
	}
	materielNetImageSelectors = []parser.AttrCandidate{
		{Selector: "img.c-product__image", Attr: "src"},
		{Selector: "img", Attr: "data-src"},
		{Selector: "img", Attr: "src"},
	}
	materielNetRatingSelectors = []parser.AttrCandidate{
		{Selector: ".c-product__rating", Attr: "data-rating"},
		{Selector: "[data-rating]", Attr: "data-rating"},
	}

	materielNetIDPattern = regexp.MustCompile(`/(\d+)-`)
)

type MaterielNetExtractor struct {
	cfg  config.MerchantConfig
	page listingPage
}

func NewMaterielNetExtractor(cfg config.MerchantConfig, fetcher Fetcher, opts Options) *MaterielNetExtractor {
	opts = opts.withDefaults()
	return &MaterielNetExtractor{
		cfg: cfg,
		page: listingPage{
			cfg:           cfg,
			fetcher:       fetcher,
			itemSelectors: materielNetItemSelectors,
			limit:         opts.ResultLimit,
			logger:        opts.Logger.With("merchant", cfg.Name),
		},
	}
}

func (e *MaterielNetExtractor) SearchPath(query string) string {
	return "/recherche/" + url.PathEscape(query) + ".html"
}

func (e *MaterielNetExtractor) Extract(ctx context.Context, query string) ([]models.Offer, error) {
	return e.page.collect(ctx, e.SearchPath(query), e.parseItem)
}

func (e *MaterielNetExtractor) parseItem(item *goquery.Selection) (models.Offer, error) {
	href := parser.FirstAttr(item, materielNetLinkSelectors)

	offer := models.Offer{
		Name:         parser.FirstText(item, materielNetTitleSelectors),
		Price:        parser.ParsePrice(parser.FirstText(item, materielNetPriceSelectors)),
		URL:          parser.ResolveURL(e.cfg.BaseURL, href),
		Availability: e.cfg.Stock.Classify(parser.FirstText(item, materielNetStockSelectors)),
	}

	if img := parser.FirstAttr(item, materielNetImageSelectors); img != "" {
		offer.ImageURL = parser.ResolveURL(e.cfg.BaseURL, img)
	}

	if m := materielNetIDPattern.FindStringSubmatch(href); m != nil {
		offer.ExternalID = "materiel-" + m[1]
	} else {
		offer.ExternalID, offer.FallbackID = fallbackID("materiel"), true
	}

	if raw := parser.FirstAttr(item, materielNetRatingSelectors); raw != "" {
		if rating, err := strconv.ParseFloat(raw, 64); err == nil && rating >= 0 && rating <= 5 {
			offer.Rating = &rating
		}
	}

	return offer, nil
}
