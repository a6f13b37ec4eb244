package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

// SavedOffer is the last seen state of one merchant listing.
type SavedOffer struct {
	Offer     models.Offer `json:"offer"`
	Query     string       `json:"query"`
	FirstSeen time.Time    `json:"first_seen"`
	UpdatedAt time.Time    `json:"updated_at"`
	// PreviousPrice is set once the listing has been seen at another price.
	PreviousPrice *float64 `json:"previous_price,omitempty"`
}

// OfferStorage keeps offers from CLI scrapes in a JSON file, one entry per
// merchant listing.
type OfferStorage struct {
	mu       sync.RWMutex
	offers   map[string]*SavedOffer
	filename string
}

func NewOfferStorage(filename string) (*OfferStorage, error) {
	s := &OfferStorage{
		offers:   make(map[string]*SavedOffer),
		filename: filename,
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// offerKey identifies a listing across scrapes. Generated ids change on every
// scrape, so those listings are keyed by their URL instead.
func offerKey(offer models.Offer) string {
	if offer.FallbackID {
		return offer.Merchant + "|url:" + offer.URL
	}
	return offer.Merchant + "|" + offer.ExternalID
}

// AddResults records the offers of every successful result and returns how
// many entries were written.
func (s *OfferStorage) AddResults(query string, results []models.ScraperResult) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	written := 0
	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, offer := range result.Products {
			if offer.ExternalID == "" || (offer.FallbackID && offer.URL == "") {
				continue
			}
			s.upsert(query, offer, now)
			written++
		}
	}

	if written == 0 {
		return 0, nil
	}
	return written, s.save()
}

func (s *OfferStorage) upsert(query string, offer models.Offer, now time.Time) {
	key := offerKey(offer)
	existing, ok := s.offers[key]
	if !ok {
		s.offers[key] = &SavedOffer{Offer: offer, Query: query, FirstSeen: now, UpdatedAt: now}
		return
	}

	if existing.Offer.Price != offer.Price {
		previous := existing.Offer.Price
		existing.PreviousPrice = &previous
	}
	existing.Offer = offer
	existing.Query = query
	existing.UpdatedAt = now
}

func (s *OfferStorage) Get(merchant, externalID string) (*SavedOffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved, ok := s.offers[merchant+"|"+externalID]
	return saved, ok
}

// List returns the saved offers sorted by merchant then listing key.
func (s *OfferStorage) List() []*SavedOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.offers))
	for key := range s.offers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]*SavedOffer, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.offers[key])
	}
	return out
}

// GetStats counts saved offers per merchant.
func (s *OfferStorage) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, saved := range s.offers {
		stats[saved.Offer.Merchant]++
	}
	stats["total"] = len(s.offers)
	return stats
}

func (s *OfferStorage) save() error {
	data, err := json.MarshalIndent(s.offers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode offers: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write offers: %w", err)
	}

	return os.Rename(tmpFile, s.filename)
}

func (s *OfferStorage) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	offers := make(map[string]*SavedOffer)
	if err := json.Unmarshal(data, &offers); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.filename, err)
	}
	s.offers = offers
	return nil
}
