package scraper

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedFetcher serves repeat fetches of the same URL from a bounded, expiring cache.
// Failures are never cached.
type CachedFetcher struct {
	next    Fetcher
	pages   *expirable.LRU[string, string]
	metrics *Metrics
}

// NewCachedFetcher wraps next with an LRU of size entries that expire after ttl.
func NewCachedFetcher(next Fetcher, size int, ttl time.Duration, metrics *Metrics) *CachedFetcher {
	return &CachedFetcher{
		next:    next,
		pages:   expirable.NewLRU[string, string](size, nil, ttl),
		metrics: metrics,
	}
}

// Fetch returns a cached body when present, otherwise delegates and caches the success.
func (c *CachedFetcher) Fetch(ctx context.Context, target string) (string, error) {
	if body, ok := c.pages.Get(target); ok {
		c.metrics.IncCacheHit()
		return body, nil
	}
	body, err := c.next.Fetch(ctx, target)
	if err != nil {
		return "", err
	}
	c.pages.Add(target, body)
	return body, nil
}

// Len reports the number of cached pages.
func (c *CachedFetcher) Len() int {
	return c.pages.Len()
}
