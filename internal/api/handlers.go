package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/merchant-price-scraper/internal/compare"
	"github.com/maltedev/merchant-price-scraper/internal/database"
	"github.com/maltedev/merchant-price-scraper/internal/jobs"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/orchestrator"
	"github.com/maltedev/merchant-price-scraper/internal/pricing"
)

// Scraper is satisfied by *orchestrator.Orchestrator.
type Scraper interface {
	ScrapeAll(ctx context.Context, query string) []models.ScraperResult
	ScrapeOne(ctx context.Context, id models.MerchantID, query string) (models.ScraperResult, error)
}

// PriceService is satisfied by *pricing.Service.
type PriceService interface {
	UpdatePrices(ctx context.Context, productID, searchQuery string) (*pricing.UpdateReport, error)
	ListPrices(ctx context.Context, productID string) ([]database.PriceRecord, error)
}

// OutboxMonitor is satisfied by *database.Relay.
type OutboxMonitor interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

// JobService is satisfied by *jobs.Manager.
type JobService interface {
	CreateJob(ctx context.Context, targets []pricing.Target) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

type Handlers struct {
	scraper Scraper
	prices  PriceService
	outbox  OutboxMonitor
	jobs    JobService
	logger  *slog.Logger
}

// NewHandlers builds the API handlers. prices, outbox and jobs are nil when
// persistence is disabled.
func NewHandlers(scraper Scraper, prices PriceService, outbox OutboxMonitor, jobService JobService, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: scraper,
		prices:  prices,
		outbox:  outbox,
		jobs:    jobService,
		logger:  logger.With("component", "api"),
	}
}

// ScrapeResponse is the body of GET /api/v1/scrape.
type ScrapeResponse struct {
	Success  bool                   `json:"success"`
	Stats    compare.Stats          `json:"stats"`
	Results  []models.ScraperResult `json:"results"`
	Products []models.Offer         `json:"products"`
}

// Scrape handles GET /api/v1/scrape?q=<query>&merchant=<all|id>.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.respondError(w, http.StatusBadRequest, `query parameter "q" is required`)
		return
	}

	merchant := strings.ToLower(r.URL.Query().Get("merchant"))
	if merchant == "" {
		merchant = "all"
	}

	var results []models.ScraperResult
	if merchant == "all" {
		results = h.scraper.ScrapeAll(r.Context(), query)
	} else {
		id := models.MerchantID(merchant)
		if !id.Valid() {
			h.respondError(w, http.StatusBadRequest, "invalid merchant, use: all, amazon, ldlc or materielnet")
			return
		}

		result, err := h.scraper.ScrapeOne(r.Context(), id, query)
		if errors.Is(err, orchestrator.ErrUnknownMerchant) {
			h.respondError(w, http.StatusBadRequest, "merchant is not configured: "+merchant)
			return
		}
		if err != nil {
			h.logger.Error("scrape failed", "merchant", merchant, "error", err)
			h.respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		results = []models.ScraperResult{result}
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{
		Success:  true,
		Stats:    compare.Summarize(results),
		Results:  results,
		Products: compare.Flatten(results),
	})
}

type CompareRequest struct {
	Offers []models.Offer `json:"offers"`
}

type CompareResponse struct {
	Best    *models.Offer `json:"best"`
	Savings float64       `json:"savings"`
}

// Compare handles POST /api/v1/compare.
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := CompareResponse{Savings: compare.Savings(req.Offers)}
	if best, ok := compare.BestOffer(req.Offers); ok {
		resp.Best = &best
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type UpdatePricesRequest struct {
	ProductID   string `json:"productId"`
	SearchQuery string `json:"searchQuery"`
}

// UpdatePrices handles POST /api/v1/prices/update.
func (h *Handlers) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	var req UpdatePricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.prices.UpdatePrices(r.Context(), req.ProductID, req.SearchQuery)
	if errors.Is(err, pricing.ErrInvalidRequest) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to update prices", "product_id", req.ProductID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

type PricesResponse struct {
	ProductID string                 `json:"productId"`
	Prices    []database.PriceRecord `json:"prices"`
	Count     int                    `json:"count"`
}

// ListPrices handles GET /api/v1/prices/{productID}.
func (h *Handlers) ListPrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	productID := chi.URLParam(r, "productID")
	prices, err := h.prices.ListPrices(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to list prices", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, PricesResponse{
		ProductID: productID,
		Prices:    prices,
		Count:     len(prices),
	})
}

type CreateJobRequest struct {
	Products []pricing.Target `json:"products"`
}

// CreateJob handles POST /api/v1/jobs.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Products)
	if errors.Is(err, jobs.ErrQueueClosed) {
		h.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/jobs/{jobID}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	stats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Backlog(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox backlog", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > deadLetterErrorThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
