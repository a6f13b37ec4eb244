package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/parser"
)

var (
	amazonItemSelectors = []string{
		`div[data-component-type="s-search-result"]`,
		`div.s-result-item[data-asin]:not([data-asin=""])`,
		`div[data-asin][data-index]`,
	}
	amazonTitleSelectors = []string{
		"h2 a span",
		"h2 span",
		"span.a-size-medium.a-text-normal",
		"span.a-size-base-plus.a-text-normal",
	}
	amazonPriceSelectors = []string{
		".a-price:not(.a-text-price) .a-offscreen",
		".a-price .a-offscreen",
	}
	amazonLinkSelectors = []parser.AttrCandidate{
		{Selector: "h2 a", Attr: "href"},
		{Selector: "a.a-link-normal.s-no-outline", Attr: "href"},
		{Selector: `a.a-link-normal[href*="/dp/"]`, Attr: "href"},
	}
	amazonImageSelectors = []parser.AttrCandidate{
		{Selector: "img.s-image", Attr: "src"},
		{Selector: "img", Attr: "src"},
	}
	amazonRatingSelectors = []string{
		"span.a-icon-alt",
		"i.a-icon-star-small span",
	}
	amazonReviewSelectors = []string{
		"span.a-size-base.s-underline-text",
		`a[href*="customerReviews"] span`,
	}
	amazonStockSelectors = []string{
		"span.a-color-price",
		`span[aria-label*="stock"]`,
	}

	amazonDPPattern = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
)

// amazonMarketplace pins the French storefront.
const amazonMarketplace = "ÅMÅŽÕÑ"

type AmazonExtractor struct {
	cfg  config.MerchantConfig
	page listingPage
}

func NewAmazonExtractor(cfg config.MerchantConfig, fetcher Fetcher, opts Options) *AmazonExtractor {
	opts = opts.withDefaults()
	return &AmazonExtractor{
		cfg: cfg,
		page: listingPage{
			cfg:           cfg,
			fetcher:       fetcher,
			itemSelectors: amazonItemSelectors,
			limit:         opts.ResultLimit,
			logger:        opts.Logger.With("merchant", cfg.Name),
		},
	}
}

func (e *AmazonExtractor) SearchPath(query string) string {
	return "/s?k=" + url.QueryEscape(query) + "&__mk_fr_FR=" + url.QueryEscape(amazonMarketplace)
}

func (e *AmazonExtractor) Extract(ctx context.Context, query string) ([]models.Offer, error) {
	return e.page.collect(ctx, e.SearchPath(query), e.parseItem)
}

func (e *AmazonExtractor) parseItem(item *goquery.Selection) (models.Offer, error) {
	href := parser.FirstAttr(item, amazonLinkSelectors)

	asin := strings.TrimSpace(item.AttrOr("data-asin", ""))
	if asin == "" {
		if m := amazonDPPattern.FindStringSubmatch(href); m != nil {
			asin = m[1]
		}
	}

	offer := models.Offer{
		Name:         parser.FirstText(item, amazonTitleSelectors),
		Price:        e.price(item),
		ImageURL:     parser.FirstAttr(item, amazonImageSelectors),
		Availability: e.cfg.Stock.Classify(parser.FirstText(item, amazonStockSelectors)),
	}

	if asin != "" {
		offer.ExternalID = asin
		offer.URL = strings.TrimRight(e.cfg.BaseURL, "/") + "/dp/" + asin
	} else {
		offer.ExternalID, offer.FallbackID = fallbackID("amazon"), true
		offer.URL = parser.ResolveURL(e.cfg.BaseURL, href)
	}

	if rating, ok := parser.ParseRating(parser.FirstText(item, amazonRatingSelectors)); ok {
		offer.Rating = &rating
	}
	if count, ok := parser.ParseCount(parser.FirstText(item, amazonReviewSelectors)); ok {
		offer.ReviewCount = &count
	}

	return offer, nil
}

// price prefers the whole/fraction spans and falls back to the screen-reader
// text that carries the full price.
func (e *AmazonExtractor) price(item *goquery.Selection) float64 {
	whole := item.Find(".a-price-whole").First().Text()
	if strings.TrimSpace(whole) != "" {
		fraction := item.Find(".a-price-fraction").First().Text()
		if p := parser.ParsePrice(parser.JoinPriceParts(whole, fraction)); parser.ValidPrice(p) {
			return p
		}
	}
	return parser.ParsePrice(parser.FirstText(item, amazonPriceSelectors))
}
