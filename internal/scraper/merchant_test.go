package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/merchant-price-scraper/internal/httpclient"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/ratelimit"
)

// MockExtractor is a mock for Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, query string) ([]models.Offer, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Offer), args.Error(1)
}

type recordingLimiter struct {
	waits     int
	successes int
	throttled int
	err       error
}

func (r *recordingLimiter) Wait(ctx context.Context) error {
	r.waits++
	return r.err
}

func (r *recordingLimiter) RecordSuccess()   { r.successes++ }
func (r *recordingLimiter) RecordThrottled() { r.throttled++ }

func TestMerchant_Scrape(t *testing.T) {
	ctx := context.Background()
	cfg := merchantConfig(t, models.MerchantLDLC)

	t.Run("successful scrape", func(t *testing.T) {
		extractor := new(MockExtractor)
		limiter := &recordingLimiter{}
		offers := []models.Offer{{ExternalID: "ldlc-1", Name: "GPU", Price: 1000, Merchant: "LDLC"}}
		extractor.On("Extract", mock.Anything, "rtx").Return(offers, nil)

		m := NewMerchant(cfg, extractor, limiter, nil, discardLogger())
		result := m.Scrape(ctx, "rtx")

		assert.True(t, result.Success)
		assert.Equal(t, "LDLC", result.Merchant)
		assert.Equal(t, offers, result.Products)
		assert.Empty(t, result.Errors)
		assert.False(t, result.ScrapedAt.IsZero())
		assert.Equal(t, 1, limiter.waits)
		assert.Equal(t, 1, limiter.successes)
		extractor.AssertExpectations(t)
	})

	t.Run("disabled merchant makes no request", func(t *testing.T) {
		disabled := cfg
		disabled.Enabled = false

		stub := &stubFetcher{body: ldlcSearchHTML}
		limiter := &recordingLimiter{}
		m := NewMerchant(disabled, NewLDLCExtractor(disabled, stub, Options{Logger: discardLogger()}), limiter, nil, discardLogger())

		result := m.Scrape(ctx, "rtx")

		assert.False(t, result.Success)
		assert.Empty(t, result.Products)
		assert.Equal(t, []string{"scraper disabled: LDLC"}, result.Errors)
		assert.Equal(t, 0, stub.calls)
		assert.Equal(t, 0, limiter.waits)
	})

	t.Run("extractor error becomes failed result", func(t *testing.T) {
		extractor := new(MockExtractor)
		netErr := &httpclient.NetworkError{Kind: httpclient.KindTimeout, URL: "https://www.ldlc.com/recherche/rtx/", Err: context.DeadlineExceeded}
		extractor.On("Extract", mock.Anything, "rtx").Return(nil, netErr)

		m := NewMerchant(cfg, extractor, &recordingLimiter{}, nil, discardLogger())
		result := m.Scrape(ctx, "rtx")

		assert.False(t, result.Success)
		assert.NotNil(t, result.Products)
		assert.Empty(t, result.Products)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "timeout")
	})

	t.Run("extractor panic is contained", func(t *testing.T) {
		extractor := new(MockExtractor)
		extractor.On("Extract", mock.Anything, "rtx").Run(func(args mock.Arguments) {
			panic("nil selection")
		})

		m := NewMerchant(cfg, extractor, &recordingLimiter{}, nil, discardLogger())

		var result models.ScraperResult
		require.NotPanics(t, func() { result = m.Scrape(ctx, "rtx") })
		assert.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "nil selection")
	})

	t.Run("limiter cancellation", func(t *testing.T) {
		extractor := new(MockExtractor)
		limiter := &recordingLimiter{err: context.Canceled}

		m := NewMerchant(cfg, extractor, limiter, nil, discardLogger())
		result := m.Scrape(ctx, "rtx")

		assert.False(t, result.Success)
		assert.Contains(t, result.Errors[0], "rate limiter")
		extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	})

	t.Run("throttling feeds the limiter", func(t *testing.T) {
		extractor := new(MockExtractor)
		limiter := &recordingLimiter{}
		extractor.On("Extract", mock.Anything, "rtx").Return(nil,
			&httpclient.NetworkError{Kind: httpclient.KindStatus, StatusCode: http.StatusTooManyRequests})

		m := NewMerchant(cfg, extractor, limiter, nil, discardLogger())
		m.Scrape(ctx, "rtx")

		assert.Equal(t, 1, limiter.throttled)
		assert.Equal(t, 0, limiter.successes)
	})

	t.Run("empty result is a success", func(t *testing.T) {
		m := NewMerchant(cfg, NewLDLCExtractor(cfg, &stubFetcher{body: noResultsHTML}, Options{Logger: discardLogger()}),
			&recordingLimiter{}, nil, discardLogger())

		result := m.Scrape(ctx, "rien")
		assert.True(t, result.Success)
		assert.Empty(t, result.Products)
	})
}

func TestMerchant_ScrapeRecordsMetrics(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantAmazon)
	reg := metrics.New()

	extractor := new(MockExtractor)
	extractor.On("Extract", mock.Anything, "ok").Return([]models.Offer{{Name: "a"}, {Name: "b"}}, nil)
	extractor.On("Extract", mock.Anything, "ko").Return(nil,
		&httpclient.NetworkError{Kind: httpclient.KindStatus, StatusCode: http.StatusForbidden})

	m := NewMerchant(cfg, extractor, ratelimit.NewMinIntervalLimiter(0), reg, discardLogger())
	m.Scrape(context.Background(), "ok")
	m.Scrape(context.Background(), "ko")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ScrapesTotal.WithLabelValues("Amazon", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ScrapesTotal.WithLabelValues("Amazon", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.OffersTotal.WithLabelValues("Amazon")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ErrorsTotal.WithLabelValues("Amazon", "forbidden")))
}

func TestMerchant_RespectsRateLimit(t *testing.T) {
	cfg := merchantConfig(t, models.MerchantMaterielNet)
	cfg.RateLimit = 60 * time.Millisecond

	stub := &stubFetcher{body: materielNetSearchHTML}
	m := NewMerchant(cfg, NewMaterielNetExtractor(cfg, stub, Options{Logger: discardLogger()}), nil, nil, discardLogger())

	start := time.Now()
	first := m.Scrape(context.Background(), "a")
	second := m.Scrape(context.Background(), "b")

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
	assert.Equal(t, 2, stub.calls)
}

func TestMerchant_GenericError(t *testing.T) {
	extractor := new(MockExtractor)
	extractor.On("Extract", mock.Anything, "x").Return(nil, errors.New("failed to parse HTML: eof"))

	m := NewMerchant(merchantConfig(t, models.MerchantAmazon), extractor, &recordingLimiter{}, nil, discardLogger())
	result := m.Scrape(context.Background(), "x")

	assert.False(t, result.Success)
	assert.Equal(t, []string{"failed to parse HTML: eof"}, result.Errors)
}
