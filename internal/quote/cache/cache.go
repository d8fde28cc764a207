package cache

import (
	"context"
	"sync"
	"time"

	"dolarprovider/internal/quote"
)

// entry stores the cached record for a single kind with expiry.
type entry struct {
	expiresAt time.Time
	quote     quote.Quote
}

// Provider caches records per kind for a TTL.
// It requests only missing kinds from the underlying provider and
// combines cached and fresh results. Error records are never stored.
type Provider struct {
	P        quote.Provider
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry // key: kind code
}

func (c *Provider) Name() string { return c.P.Name() }

// Fetch returns records for the requested kinds using the cache when valid.
func (c *Provider) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	if c.TTL <= 0 {
		return c.P.Fetch(ctx, kinds)
	}
	if len(kinds) == 0 {
		kinds = quote.AllKinds()
	}

	now := time.Now()
	cached := make(map[string]quote.Quote, len(kinds))
	missing := make([]quote.Kind, 0, len(kinds))
	seen := make(map[string]struct{}, len(kinds))

	c.mu.RLock()
	for _, k := range kinds {
		if e, ok := c.items[k.Code]; ok && now.Before(e.expiresAt) {
			cached[k.Code] = e.quote
			continue
		}
		if _, dup := seen[k.Code]; !dup {
			seen[k.Code] = struct{}{}
			missing = append(missing, k)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return ordered(kinds, cached), nil
	}

	fresh, err := c.P.Fetch(ctx, missing)
	if err != nil {
		// serve what is cached; the rest become error records
		if len(cached) > 0 {
			fillFailed(c.P.Name(), missing, cached, err, now)
			return ordered(kinds, cached), nil
		}
		return nil, err
	}

	expiry := now.Add(c.TTL)
	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry, len(fresh))
	}
	for _, q := range fresh {
		cached[q.Code] = q
		if !q.OK() {
			continue
		}
		c.items[q.Code] = entry{expiresAt: expiry, quote: q}
	}
	c.evictLocked()
	c.mu.Unlock()

	return ordered(kinds, cached), nil
}

// evictLocked caps the cache size: expired entries go first, then arbitrary ones.
func (c *Provider) evictLocked() {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	now := time.Now()
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		delete(c.items, k)
	}
}

// Purge drops every cached record.
func (c *Provider) Purge() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// fillFailed adds an error record for every kind in missing.
func fillFailed(name string, missing []quote.Kind, byCode map[string]quote.Quote, err error, ts time.Time) {
	for _, k := range missing {
		byCode[k.Code] = quote.Failed(k, name+":"+k.Code, err, ts.UTC())
	}
}

func ordered(kinds []quote.Kind, byCode map[string]quote.Quote) []quote.Quote {
	out := make([]quote.Quote, 0, len(kinds))
	for _, k := range kinds {
		if q, ok := byCode[k.Code]; ok {
			out = append(out, q)
		}
	}
	return out
}
