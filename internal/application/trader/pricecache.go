package trader

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

// PriceCache shares best-quote reads between the pricing and exit
// paths. A read within the TTL returns the cached quote; an accepted
// staleness tradeoff against hammering the same endpoint every poll.
type PriceCache struct {
	provider ports.MarketDataProvider
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]domain.Quote
}

func NewPriceCache(provider ports.MarketDataProvider, ttl time.Duration) *PriceCache {
	return &PriceCache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]domain.Quote),
	}
}

// Quote returns the market's best quote, refreshing through the
// provider when the cached entry has aged past the TTL.
func (c *PriceCache) Quote(ctx context.Context, marketID string) (domain.Quote, error) {
	c.mu.Lock()
	if q, ok := c.entries[marketID]; ok && time.Since(q.FetchedAt) < c.ttl {
		c.mu.Unlock()
		return q, nil
	}
	c.mu.Unlock()

	q, err := c.provider.BestQuote(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}

	c.mu.Lock()
	c.entries[marketID] = q
	c.mu.Unlock()
	return q, nil
}

// Forget drops one market's cached quote, forcing the next read to
// refresh. Used between close retries.
func (c *PriceCache) Forget(marketID string) {
	c.mu.Lock()
	delete(c.entries, marketID)
	c.mu.Unlock()
}

// Prune drops every entry older than the TTL.
func (c *PriceCache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, q := range c.entries {
		if time.Since(q.FetchedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
}
