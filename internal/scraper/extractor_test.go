package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/httpclient"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

const amazonSearchHTML = `<html><body>
<div class="s-main-slot">
  <div data-component-type="s-search-result" data-asin="B0BG9ZXYZ1">
    <h2><a href="/Gigabyte-RTX-4090/dp/B0BG9ZXYZ1/ref=sr_1_1"><span>Gigabyte GeForce RTX 4090 Gaming OC</span></a></h2>
    <img class="s-image" src="https://m.media-amazon.com/images/I/rtx.jpg">
    <span class="a-price"><span class="a-offscreen">1 899,99 €</span><span class="a-price-whole">1 899<span class="a-price-decimal">,</span></span><span class="a-price-fraction">99</span></span>
    <span class="a-icon-alt">4,6 sur 5 étoiles</span>
    <span class="a-size-base s-underline-text">1 234</span>
  </div>
  <div data-component-type="s-search-result" data-asin="">
    <h2><a href="/dp/B0CXYZ1234?th=1"><span>MSI GeForce RTX 4090 Suprim X</span></a></h2>
    <span class="a-price"><span class="a-offscreen">2 049,00 €</span></span>
  </div>
  <div data-component-type="s-search-result" data-asin="B0NOPRICE1">
    <h2><a href="/dp/B0NOPRICE1"><span>Listing without a price</span></a></h2>
  </div>
  <div data-component-type="s-search-result" data-asin="B0NOTITLE1">
    <span class="a-price-whole">99,</span><span class="a-price-fraction">00</span>
  </div>
</div>
</body></html>`

const ldlcSearchHTML = `<html><body>
<ul class="listing">
  <li class="pdt-item">
    <a class="pdt-item-link" href="/fiche/PB00512345.html"></a>
    <img class="lazy" data-src="https://media.ldlc.com/products/LD0005123456.jpg" src="data:image/gif;base64,R0l">
    <h3 class="title-3"><a href="/fiche/PB00512345.html">ASUS TUF Gaming GeForce RTX 4090 OC</a></h3>
    <div class="price"><div class="price">1 899€95</div></div>
    <div class="stock"><span>En stock</span></div>
  </li>
  <li class="pdt-item">
    <a class="pdt-item-link" href="/fiche/PB00600001.html"></a>
    <h3 class="title-3">Câble HDMI 2.1 Ultra High Speed</h3>
    <div class="price">19€90</div>
    <div class="stock">Sous 15 jours</div>
  </li>
  <li class="pdt-item">
    <a class="pdt-item-link" href="/fiche/PB00000001.html"></a>
    <h3 class="title-3">Listing with a broken price</h3>
    <div class="price">Prix indisponible</div>
  </li>
</ul>
</body></html>`

const materielNetSearchHTML = `<html><body>
<div class="c-products-list">
  <div class="c-product">
    <a class="c-product__link" href="/produit/202310120045-rtx4090.html"></a>
    <img class="c-product__image" src="https://media.materiel.net/r150/202310120045.jpg">
    <h2 class="c-product__title">Gainward GeForce RTX 4090 Phantom</h2>
    <div class="c-product__price">1 999,90 €</div>
    <div class="c-product__stock">En stock</div>
    <div class="c-product__rating" data-rating="4.5"></div>
  </div>
  <div class="c-product">
    <a class="c-product__link" href="/produit/202101010007-pate-thermique.html"></a>
    <h2 class="c-product__title">Pâte thermique Arctic MX-6</h2>
    <div class="c-product__price">24,90 €</div>
    <div class="c-product__stock">Stock limité</div>
  </div>
  <div class="c-product">
    <a class="c-product__link" href="/produit/202001010099-ventilateur.html"></a>
    <h2 class="c-product__title">Ventilateur 120 mm</h2>
    <div class="c-product__price">49,90 €</div>
    <div class="c-product__stock">Rupture de stock</div>
  </div>
</div>
</body></html>`

const noResultsHTML = `<html><body><p class="no-result">Aucun résultat pour votre recherche</p></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func merchantConfig(t *testing.T, id models.MerchantID) config.MerchantConfig {
	t.Helper()
	for _, m := range config.DefaultMerchants() {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("unknown merchant %s", id)
	return config.MerchantConfig{}
}

func mockedClient(cfg config.MerchantConfig) (*httpclient.Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	return httpclient.New(httpclient.Options{BaseURL: cfg.BaseURL, Transport: transport}), transport
}

func TestAmazonExtractor_Extract(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantAmazon)
	cfg.AffiliateTag = "shop-21"
	client, transport := mockedClient(cfg)

	transport.RegisterResponder("GET", "https://www.amazon.fr/s",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "RTX 4090", req.URL.Query().Get("k"))
			assert.NotEmpty(t, req.URL.Query().Get("__mk_fr_FR"))
			return httpmock.NewStringResponse(200, amazonSearchHTML), nil
		})

	extractor := NewAmazonExtractor(cfg, client, Options{Logger: discardLogger()})
	offers, err := extractor.Extract(context.Background(), "RTX 4090")
	require.NoError(t, err)
	require.Len(t, offers, 2)

	first := offers[0]
	assert.Equal(t, "B0BG9ZXYZ1", first.ExternalID)
	assert.Equal(t, "Amazon", first.Merchant)
	assert.Equal(t, "Gigabyte GeForce RTX 4090 Gaming OC", first.Name)
	assert.InDelta(t, 1899.99, first.Price, 0.001)
	assert.Equal(t, "EUR", first.Currency)
	assert.Equal(t, 0.0, first.Shipping)
	assert.Equal(t, models.InStock, first.Availability)
	assert.Equal(t, "https://www.amazon.fr/dp/B0BG9ZXYZ1", first.URL)
	assert.Equal(t, "https://www.amazon.fr/dp/B0BG9ZXYZ1?tag=shop-21", first.AffiliateURL)
	assert.Equal(t, "https://m.media-amazon.com/images/I/rtx.jpg", first.ImageURL)
	require.NotNil(t, first.Rating)
	assert.InDelta(t, 4.6, *first.Rating, 0.001)
	require.NotNil(t, first.ReviewCount)
	assert.Equal(t, 1234, *first.ReviewCount)
	assert.False(t, first.LastUpdated.IsZero())

	second := offers[1]
	assert.Equal(t, "B0CXYZ1234", second.ExternalID)
	assert.InDelta(t, 2049.0, second.Price, 0.001)
	assert.Nil(t, second.Rating)
	assert.Nil(t, second.ReviewCount)
}

func TestLDLCExtractor_Extract(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantLDLC)
	client, transport := mockedClient(cfg)
	transport.RegisterResponder("GET", "https://www.ldlc.com/recherche/RTX%204090/",
		httpmock.NewStringResponder(200, ldlcSearchHTML))

	extractor := NewLDLCExtractor(cfg, client, Options{Logger: discardLogger()})
	offers, err := extractor.Extract(context.Background(), "RTX 4090")
	require.NoError(t, err)
	require.Len(t, offers, 2)

	gpu := offers[0]
	assert.Equal(t, "ldlc-00512345", gpu.ExternalID)
	assert.False(t, gpu.FallbackID)
	assert.Equal(t, "ASUS TUF Gaming GeForce RTX 4090 OC", gpu.Name)
	assert.InDelta(t, 1899.95, gpu.Price, 0.001)
	assert.Equal(t, 0.0, gpu.Shipping)
	assert.Equal(t, models.InStock, gpu.Availability)
	assert.Equal(t, "https://www.ldlc.com/fiche/PB00512345.html", gpu.URL)
	assert.Equal(t, "https://media.ldlc.com/products/LD0005123456.jpg", gpu.ImageURL)
	assert.Empty(t, gpu.AffiliateURL)

	cable := offers[1]
	assert.Equal(t, "ldlc-00600001", cable.ExternalID)
	assert.InDelta(t, 19.90, cable.Price, 0.001)
	assert.Equal(t, 5.99, cable.Shipping)
	assert.Equal(t, models.OutOfStock, cable.Availability)
}

func TestMaterielNetExtractor_Extract(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantMaterielNet)
	client, transport := mockedClient(cfg)
	transport.RegisterResponder("GET", "https://www.materiel.net/recherche/RTX4090.html",
		httpmock.NewStringResponder(200, materielNetSearchHTML))

	extractor := NewMaterielNetExtractor(cfg, client, Options{Logger: discardLogger()})
	offers, err := extractor.Extract(context.Background(), "RTX4090")
	require.NoError(t, err)
	require.Len(t, offers, 3)

	tests := []struct {
		id           string
		price        float64
		shipping     float64
		availability models.Availability
	}{
		{"materiel-202310120045", 1999.90, 0, models.InStock},
		{"materiel-202101010007", 24.90, 4.99, models.Limited},
		{"materiel-202001010099", 49.90, 0, models.OutOfStock},
	}

	for i, tt := range tests {
		assert.Equal(t, tt.id, offers[i].ExternalID)
		assert.InDelta(t, tt.price, offers[i].Price, 0.001)
		assert.Equal(t, tt.shipping, offers[i].Shipping)
		assert.Equal(t, tt.availability, offers[i].Availability)
		assert.Equal(t, "Materiel.net", offers[i].Merchant)
	}

	require.NotNil(t, offers[0].Rating)
	assert.Equal(t, 4.5, *offers[0].Rating)
	assert.Nil(t, offers[1].Rating)
	assert.Equal(t, "https://media.materiel.net/r150/202310120045.jpg", offers[0].ImageURL)
}

func TestExtractors_EmptyPage(t *testing.T) {
	for _, id := range models.AllMerchants {
		t.Run(string(id), func(t *testing.T) {
			cfg := merchantConfig(t, id)
			stub := &stubFetcher{body: noResultsHTML}

			extractor, err := NewExtractor(cfg, stub, Options{Logger: discardLogger()})
			require.NoError(t, err)

			offers, err := extractor.Extract(context.Background(), "introuvable")
			require.NoError(t, err)
			assert.NotNil(t, offers)
			assert.Empty(t, offers)
		})
	}
}

func TestExtractors_PropagateNetworkErrors(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantLDLC)
	client, transport := mockedClient(cfg)
	transport.RegisterResponder("GET", "https://www.ldlc.com/recherche/rtx/",
		httpmock.NewStringResponder(http.StatusForbidden, "captcha"))

	extractor := NewLDLCExtractor(cfg, client, Options{Logger: discardLogger()})
	offers, err := extractor.Extract(context.Background(), "rtx")

	assert.Nil(t, offers)
	var netErr *httpclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)
}

func TestExtractors_CapResults(t *testing.T) {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, `<li class="pdt-item"><a class="pdt-item-link" href="/fiche/PB%08d.html"></a>`+
			`<h3 class="title-3">Produit %d</h3><div class="price">%d,99 €</div></li>`, i, i, 100+i)
	}
	b.WriteString("</ul>")

	cfg := merchantConfig(t, models.MerchantLDLC)

	extractor := NewLDLCExtractor(cfg, &stubFetcher{body: b.String()}, Options{Logger: discardLogger()})
	offers, err := extractor.Extract(context.Background(), "produit")
	require.NoError(t, err)
	require.Len(t, offers, DefaultResultLimit)
	assert.Equal(t, "ldlc-00000001", offers[0].ExternalID)
	assert.Equal(t, "ldlc-00000010", offers[9].ExternalID)

	extractor = NewLDLCExtractor(cfg, &stubFetcher{body: b.String()}, Options{ResultLimit: 3, Logger: discardLogger()})
	offers, err = extractor.Extract(context.Background(), "produit")
	require.NoError(t, err)
	assert.Len(t, offers, 3)
}

func TestExtractors_FallbackID(t *testing.T) {
	html := `<div class="c-product"><a class="c-product__link" href="/produit/sans-id.html"></a>
		<h2 class="c-product__title">Sans identifiant</h2><div class="c-product__price">10,00 €</div></div>`

	cfg := merchantConfig(t, models.MerchantMaterielNet)
	extractor := NewMaterielNetExtractor(cfg, &stubFetcher{body: html}, Options{Logger: discardLogger()})

	offers, err := extractor.Extract(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.True(t, strings.HasPrefix(offers[0].ExternalID, "materiel-"))
	assert.NotEqual(t, "materiel-", offers[0].ExternalID)
	assert.True(t, offers[0].FallbackID)
}

func TestListingPage_ItemPanicDropsOnlyThatItem(t *testing.T) {
	html := `<ul><li class="pdt-item">a</li><li class="pdt-item">b</li><li class="pdt-item">c</li></ul>`
	cfg := merchantConfig(t, models.MerchantLDLC)

	page := listingPage{
		cfg:           cfg,
		fetcher:       &stubFetcher{body: html},
		itemSelectors: []string{"li.pdt-item"},
		limit:         10,
		logger:        discardLogger(),
	}

	offers, err := page.collect(context.Background(), "/x", func(item *goquery.Selection) (models.Offer, error) {
		text := item.Text()
		switch text {
		case "b":
			panic("unexpected markup")
		case "c":
			return models.Offer{}, errors.New("bad item")
		}
		return models.Offer{Name: text, Price: 150, URL: "https://www.ldlc.com/fiche/PB1.html"}, nil
	})

	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "a", offers[0].Name)
	assert.Equal(t, "LDLC", offers[0].Merchant)
}

func TestNewExtractor_Unknown(t *testing.T) {
	_, err := NewExtractor(config.MerchantConfig{ID: "fnac"}, &stubFetcher{}, Options{})
	assert.ErrorIs(t, err, ErrNoExtractor)
}

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (s *stubFetcher) Get(ctx context.Context, path string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}
