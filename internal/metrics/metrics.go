package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for merchant scrapes. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	ScrapesTotal   *prometheus.CounterVec
	ScrapeDuration *prometheus.HistogramVec
	OffersTotal    *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	CacheHits      prometheus.Counter
	PricesUpdated  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_scrapes_total",
			Help: "Merchant scrapes by outcome.",
		},
		[]string{"merchant", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_scraper_scrape_duration_seconds",
			Help:    "Time spent scraping one merchant, rate limiting included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"merchant"},
	)
	offers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_offers_total",
			Help: "Offers extracted per merchant.",
		},
		[]string{"merchant"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_scraper_errors_total",
			Help: "Failed merchant scrapes by error type.",
		},
		[]string{"merchant", "error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_cache_hits_total",
			Help: "Scrape results served from the result cache.",
		},
	)
	pricesUpdated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_scraper_prices_updated_total",
			Help: "Merchant prices written to the store.",
		},
	)

	registry.MustRegister(scrapes, duration, offers, errorsTotal, cacheHits, pricesUpdated)

	return &Metrics{
		Registry:       registry,
		ScrapesTotal:   scrapes,
		ScrapeDuration: duration,
		OffersTotal:    offers,
		ErrorsTotal:    errorsTotal,
		CacheHits:      cacheHits,
		PricesUpdated:  pricesUpdated,
	}
}

func (m *Metrics) ObserveScrape(merchant string, success bool, offers int, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ScrapesTotal.WithLabelValues(merchant, outcome).Inc()
	m.ScrapeDuration.WithLabelValues(merchant).Observe(d.Seconds())
	m.OffersTotal.WithLabelValues(merchant).Add(float64(offers))
}

func (m *Metrics) IncError(merchant, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(merchant, errorType).Inc()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) AddPricesUpdated(n int) {
	if m == nil {
		return
	}
	m.PricesUpdated.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
