package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/merchant-price-scraper/internal/database"
	"github.com/maltedev/merchant-price-scraper/internal/events"
	"github.com/maltedev/merchant-price-scraper/internal/models"
)

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) ScrapeAll(ctx context.Context, query string) []models.ScraperResult {
	args := m.Called(ctx, query)
	return args.Get(0).([]models.ScraperResult)
}

type MockPriceStore struct {
	mock.Mock
}

func (m *MockPriceStore) UpsertPrice(ctx context.Context, tx pgx.Tx, productID string, offer models.Offer) (database.PriceRecord, error) {
	args := m.Called(ctx, tx, productID, offer)
	return args.Get(0).(database.PriceRecord), args.Error(1)
}

func (m *MockPriceStore) ListPrices(ctx context.Context, productID string) ([]database.PriceRecord, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.PriceRecord), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPriceUpdated(ctx context.Context, tx pgx.Tx, payload *events.PriceUpdatedPayload) error {
	args := m.Called(ctx, tx, payload)
	return args.Error(0)
}

// fakeTransactor runs fn without a database and records commits and
// rollbacks.
type fakeTransactor struct {
	commits   int
	rollbacks int
}

func (f *fakeTransactor) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(merchant, id string, price float64) models.Offer {
	return models.Offer{
		ExternalID: id,
		Merchant:   merchant,
		Name:       "GeForce RTX 4090",
		Price:      price,
		Currency:   models.CurrencyEUR,
		URL:        "https://example.test/" + id,
	}
}

func TestService_UpdatePrices(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the first offer of each successful merchant", func(t *testing.T) {
		scraper := new(MockScraper)
		store := new(MockPriceStore)
		publisher := new(MockPublisher)
		tx := &fakeTransactor{}

		ldlcFirst := offer("LDLC", "ldlc-1", 1899.95)
		ldlcFirst.AffiliateURL = "https://example.test/ldlc-1?tag=shop-21"
		scraper.On("ScrapeAll", ctx, "RTX 4090").Return([]models.ScraperResult{
			models.NewSuccessResult("LDLC", []models.Offer{ldlcFirst, offer("LDLC", "ldlc-2", 1999)}),
			models.NewFailedResult("Amazon", "timeout"),
			models.NewSuccessResult("Materiel.net", nil),
		})

		store.On("UpsertPrice", ctx, mock.Anything, "6", ldlcFirst).
			Return(database.NewPriceRecord("6", ldlcFirst), nil).Once()
		publisher.On("PublishPriceUpdated", ctx, mock.Anything, mock.MatchedBy(func(p *events.PriceUpdatedPayload) bool {
			return p.ProductID == "6" && p.Merchant == "LDLC" && p.SearchQuery == "RTX 4090"
		})).Return(nil).Once()

		svc := NewService(scraper, tx, store, publisher, nil, discardLogger())
		report, err := svc.UpdatePrices(ctx, "6", "RTX 4090")
		require.NoError(t, err)

		assert.True(t, report.Success)
		assert.Equal(t, "6", report.ProductID)
		assert.Equal(t, UpdateStats{MerchantsScraped: 3, PricesUpdated: 1, Errors: 2}, report.Stats)
		require.Len(t, report.PricesUpdated, 1)
		assert.Equal(t, PriceUpdate{
			Merchant:     "LDLC",
			Price:        1899.95,
			URL:          "https://example.test/ldlc-1",
			AffiliateURL: "https://example.test/ldlc-1?tag=shop-21",
		}, report.PricesUpdated[0])
		assert.ElementsMatch(t, []string{"Amazon: no product found", "Materiel.net: no product found"}, report.Errors)
		assert.False(t, report.Timestamp.IsZero())
		assert.Equal(t, 1, tx.commits)

		store.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("event failure rolls back that merchant only", func(t *testing.T) {
		scraper := new(MockScraper)
		store := new(MockPriceStore)
		publisher := new(MockPublisher)
		tx := &fakeTransactor{}

		ldlc := offer("LDLC", "ldlc-1", 1899.95)
		amazon := offer("Amazon", "B0BG94PS2F", 1799)
		scraper.On("ScrapeAll", ctx, "rtx").Return([]models.ScraperResult{
			models.NewSuccessResult("LDLC", []models.Offer{ldlc}),
			models.NewSuccessResult("Amazon", []models.Offer{amazon}),
		})
		store.On("UpsertPrice", ctx, mock.Anything, "6", ldlc).Return(database.NewPriceRecord("6", ldlc), nil)
		store.On("UpsertPrice", ctx, mock.Anything, "6", amazon).Return(database.NewPriceRecord("6", amazon), nil)
		publisher.On("PublishPriceUpdated", ctx, mock.Anything, mock.MatchedBy(func(p *events.PriceUpdatedPayload) bool {
			return p.Merchant == "LDLC"
		})).Return(errors.New("failed to publish event: outbox full"))
		publisher.On("PublishPriceUpdated", ctx, mock.Anything, mock.MatchedBy(func(p *events.PriceUpdatedPayload) bool {
			return p.Merchant == "Amazon"
		})).Return(nil)

		svc := NewService(scraper, tx, store, publisher, nil, discardLogger())
		report, err := svc.UpdatePrices(ctx, "6", "rtx")
		require.NoError(t, err)

		assert.Equal(t, 1, report.Stats.PricesUpdated)
		assert.Equal(t, []string{"LDLC: failed to publish event: outbox full"}, report.Errors)
		assert.Equal(t, 1, tx.commits)
		assert.Equal(t, 1, tx.rollbacks)
	})

	t.Run("store failure is reported", func(t *testing.T) {
		scraper := new(MockScraper)
		store := new(MockPriceStore)
		publisher := new(MockPublisher)

		ldlc := offer("LDLC", "ldlc-1", 1899.95)
		scraper.On("ScrapeAll", ctx, "rtx").Return([]models.ScraperResult{
			models.NewSuccessResult("LDLC", []models.Offer{ldlc}),
		})
		store.On("UpsertPrice", ctx, mock.Anything, "6", ldlc).
			Return(database.PriceRecord{}, errors.New("failed to upsert price: connection refused"))

		svc := NewService(scraper, &fakeTransactor{}, store, publisher, nil, discardLogger())
		report, err := svc.UpdatePrices(ctx, "6", "rtx")
		require.NoError(t, err)

		assert.Empty(t, report.PricesUpdated)
		assert.NotNil(t, report.PricesUpdated)
		assert.Equal(t, []string{"LDLC: failed to upsert price: connection refused"}, report.Errors)
		publisher.AssertNotCalled(t, "PublishPriceUpdated", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := NewService(new(MockScraper), &fakeTransactor{}, new(MockPriceStore), new(MockPublisher), nil, discardLogger())

		_, err := svc.UpdatePrices(ctx, "", "rtx")
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = svc.UpdatePrices(ctx, "6", "   ")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestService_RefreshAll(t *testing.T) {
	ctx := context.Background()

	scraper := new(MockScraper)
	scraper.On("ScrapeAll", mock.Anything, mock.Anything).Return([]models.ScraperResult{
		models.NewFailedResult("Amazon", "timeout"),
	})

	svc := NewService(scraper, &fakeTransactor{}, new(MockPriceStore), new(MockPublisher), nil, discardLogger())
	targets := []Target{
		{ID: "1", Query: "Noctua NH-D15"},
		{ID: "", Query: "broken"},
		{ID: "6", Query: "RTX 4090"},
	}

	start := time.Now()
	outcomes, err := svc.RefreshAll(ctx, targets, 30*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Report.Stats.Errors)
	assert.ErrorIs(t, outcomes[1].Err, ErrInvalidRequest)
	assert.Equal(t, "6", outcomes[2].Report.ProductID)

	scraper.AssertNumberOfCalls(t, "ScrapeAll", 2)
}

func TestService_RefreshAllCancelled(t *testing.T) {
	scraper := new(MockScraper)
	scraper.On("ScrapeAll", mock.Anything, mock.Anything).Return([]models.ScraperResult{})

	svc := NewService(scraper, &fakeTransactor{}, new(MockPriceStore), new(MockPublisher), nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcomes, err := svc.RefreshAll(ctx, []Target{{ID: "1", Query: "a"}, {ID: "2", Query: "b"}}, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, outcomes, 1)
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets([]byte(`
products:
  - id: "1"
    query: Corsair Vengeance DDR5 64GB 6000MHz
  - id: "6"
    query: RTX 4090
`))
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{ID: "1", Query: "Corsair Vengeance DDR5 64GB 6000MHz"},
		{ID: "6", Query: "RTX 4090"},
	}, targets)

	_, err = ParseTargets([]byte("products:\n  - id: \"1\"\n"))
	assert.Error(t, err)

	_, err = ParseTargets([]byte("products: ["))
	assert.Error(t, err)
}
