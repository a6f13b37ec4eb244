package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maltedev/merchant-price-scraper/internal/models"
)

// ResultCache keeps recent successful scrape results per merchant and query.
type ResultCache struct {
	lru *expirable.LRU[string, models.ScraperResult]
}

func New(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = 256
	}
	return &ResultCache{
		lru: expirable.NewLRU[string, models.ScraperResult](size, nil, ttl),
	}
}

func (c *ResultCache) Get(merchant models.MerchantID, query string) (models.ScraperResult, bool) {
	if c == nil {
		return models.ScraperResult{}, false
	}
	return c.lru.Get(Key(merchant, query))
}

// Add stores result when it is a success. Failures are never cached.
func (c *ResultCache) Add(merchant models.MerchantID, query string, result models.ScraperResult) {
	if c == nil || !result.Success {
		return
	}
	c.lru.Add(Key(merchant, query), result)
}

func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *ResultCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Key folds case and whitespace so "RTX 4090" and " rtx  4090" share an entry.
func Key(merchant models.MerchantID, query string) string {
	return string(merchant) + "|" + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
