package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

type MerchantConfig struct {
	ID           models.MerchantID
	Name         string
	BaseURL      string
	AffiliateTag string
	Enabled      bool
	RateLimit    time.Duration
	Shipping     ShippingRule
	Stock        StockKeywords
}

func (m MerchantConfig) Validate() error {
	if !m.ID.Valid() {
		return fmt.Errorf("unknown merchant id: %q", m.ID)
	}
	if m.Name == "" {
		return fmt.Errorf("merchant %s: name is required", m.ID)
	}
	u, err := url.Parse(m.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("merchant %s: invalid base url %q", m.ID, m.BaseURL)
	}
	if m.RateLimit < 0 {
		return fmt.Errorf("merchant %s: rate limit cannot be negative", m.ID)
	}
	if m.Shipping.Fee < 0 || m.Shipping.FreeThreshold < 0 {
		return fmt.Errorf("merchant %s: shipping values cannot be negative", m.ID)
	}
	return nil
}

// ShippingRule charges Fee below FreeThreshold and nothing at or above it.
// A zero Fee means shipping is always free.
type ShippingRule struct {
	FreeThreshold float64 `yaml:"free_threshold"`
	Fee           float64 `yaml:"fee"`
}

func (s ShippingRule) Cost(price float64) float64 {
	if s.Fee == 0 || price >= s.FreeThreshold {
		return 0
	}
	return s.Fee
}

// StockKeywords maps the free-text stock label of a listing to an
// availability. Out-of-stock keywords win over limited ones. When InStock is
// set, a non-empty label matching none of the lists is treated as out of
// stock. An empty label is always in stock.
type StockKeywords struct {
	InStock    []string `yaml:"in_stock"`
	OutOfStock []string `yaml:"out_of_stock"`
	Limited    []string `yaml:"limited"`
}

func (k StockKeywords) Classify(text string) models.Availability {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return models.InStock
	}

	if containsAny(text, k.OutOfStock) {
		return models.OutOfStock
	}
	if containsAny(text, k.Limited) {
		return models.Limited
	}
	if len(k.InStock) > 0 && !containsAny(text, k.InStock) {
		return models.OutOfStock
	}
	return models.InStock
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func DefaultMerchants() []MerchantConfig {
	return []MerchantConfig{
		{
			ID:        models.MerchantAmazon,
			Name:      "Amazon",
			BaseURL:   "https://www.amazon.fr",
			Enabled:   true,
			RateLimit: 2 * time.Second,
		},
		{
			ID:        models.MerchantLDLC,
			Name:      "LDLC",
			BaseURL:   "https://www.ldlc.com",
			Enabled:   true,
			RateLimit: 3 * time.Second,
			Shipping:  ShippingRule{FreeThreshold: 100, Fee: 5.99},
			Stock:     StockKeywords{InStock: []string{"en stock"}},
		},
		{
			ID:        models.MerchantMaterielNet,
			Name:      "Materiel.net",
			BaseURL:   "https://www.materiel.net",
			Enabled:   true,
			RateLimit: 3 * time.Second,
			Shipping:  ShippingRule{FreeThreshold: 30, Fee: 4.99},
			Stock: StockKeywords{
				OutOfStock: []string{"rupture", "indisponible"},
				Limited:    []string{"limité", "derniers"},
			},
		},
	}
}

// loadMerchantsFromEnv overlays <ID>_BASE_URL, <ID>_AFFILIATE_TAG,
// <ID>_ENABLED and <ID>_RATE_LIMIT_MS on top of the given defaults.
func loadMerchantsFromEnv(merchants []MerchantConfig) []MerchantConfig {
	out := make([]MerchantConfig, len(merchants))
	for i, m := range merchants {
		prefix := strings.ToUpper(string(m.ID))
		m.BaseURL = getEnvOrDefault(prefix+"_BASE_URL", m.BaseURL)
		m.AffiliateTag = getEnvOrDefault(prefix+"_AFFILIATE_TAG", m.AffiliateTag)
		m.Enabled = getBoolOrDefault(prefix+"_ENABLED", m.Enabled)
		ms := getIntOrDefault(prefix+"_RATE_LIMIT_MS", int(m.RateLimit/time.Millisecond))
		m.RateLimit = time.Duration(ms) * time.Millisecond
		out[i] = m
	}
	return out
}

type merchantsFile struct {
	Merchants []merchantEntry `yaml:"merchants"`
}

type merchantEntry struct {
	ID           string         `yaml:"id"`
	Name         *string        `yaml:"name"`
	BaseURL      *string        `yaml:"base_url"`
	AffiliateTag *string        `yaml:"affiliate_tag"`
	Enabled      *bool          `yaml:"enabled"`
	RateLimitMS  *int           `yaml:"rate_limit_ms"`
	Shipping     *ShippingRule  `yaml:"shipping"`
	Stock        *StockKeywords `yaml:"stock"`
}

// LoadMerchantsFile reads a YAML merchants file and applies each entry on top
// of the matching merchant in base. Fields left out of an entry keep the base
// value.
func LoadMerchantsFile(path string, base []MerchantConfig) ([]MerchantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merchants file: %w", err)
	}
	return ParseMerchants(data, base)
}

func ParseMerchants(data []byte, base []MerchantConfig) ([]MerchantConfig, error) {
	var file merchantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse merchants file: %w", err)
	}

	out := make([]MerchantConfig, len(base))
	copy(out, base)

	for _, entry := range file.Merchants {
		idx := -1
		for i := range out {
			if string(out[i].ID) == entry.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("merchants file: unknown merchant id %q", entry.ID)
		}

		m := &out[idx]
		if entry.Name != nil {
			m.Name = *entry.Name
		}
		if entry.BaseURL != nil {
			m.BaseURL = *entry.BaseURL
		}
		if entry.AffiliateTag != nil {
			m.AffiliateTag = *entry.AffiliateTag
		}
		if entry.Enabled != nil {
			m.Enabled = *entry.Enabled
		}
		if entry.RateLimitMS != nil {
			m.RateLimit = time.Duration(*entry.RateLimitMS) * time.Millisecond
		}
		if entry.Shipping != nil {
			m.Shipping = *entry.Shipping
		}
		if entry.Stock != nil {
			m.Stock = *entry.Stock
		}
	}

	return out, nil
}
