// Package rediscache shares scraped quotes between processes through Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dolarprovider/internal/quote"
)

const defaultPrefix = "quotes:"

// Store is the subset of the Redis client used by the cache.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

var _ Store = (*redis.Client)(nil)

// Provider caches records per kind in Redis. Redis failures are logged and
// the call falls through to the wrapped provider.
type Provider struct {
	P      quote.Provider
	Store  Store
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

func (c *Provider) Name() string { return c.P.Name() }

func (c *Provider) key(k quote.Kind) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + k.Code
}

func (c *Provider) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Provider) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	if c.Store == nil || c.TTL <= 0 {
		return c.P.Fetch(ctx, kinds)
	}
	if len(kinds) == 0 {
		kinds = quote.AllKinds()
	}

	byCode := make(map[string]quote.Quote, len(kinds))
	missing := make([]quote.Kind, 0, len(kinds))
	for _, k := range kinds {
		if _, done := byCode[k.Code]; done {
			continue
		}
		q, ok, err := c.get(ctx, k)
		if err != nil {
			c.logger().Warn("redis get failed", zap.String("key", c.key(k)), zap.Error(err))
		}
		if ok {
			byCode[k.Code] = q
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return ordered(kinds, byCode), nil
	}

	fresh, err := c.P.Fetch(ctx, missing)
	if err != nil {
		if len(byCode) > 0 {
			ts := time.Now().UTC()
			for _, k := range missing {
				byCode[k.Code] = quote.Failed(k, c.P.Name()+":"+k.Code, err, ts)
			}
			return ordered(kinds, byCode), nil
		}
		return nil, err
	}
	for _, q := range fresh {
		byCode[q.Code] = q
		if !q.OK() {
			continue
		}
		if err := c.set(ctx, q); err != nil {
			c.logger().Warn("redis set failed", zap.String("dollar", q.Dollar), zap.Error(err))
		}
	}
	return ordered(kinds, byCode), nil
}

func (c *Provider) get(ctx context.Context, k quote.Kind) (quote.Quote, bool, error) {
	b, err := c.Store.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quote.Quote{}, false, nil
	}
	if err != nil {
		return quote.Quote{}, false, err
	}
	var q quote.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return quote.Quote{}, false, fmt.Errorf("decode cached quote: %w", err)
	}
	return q, true, nil
}

func (c *Provider) set(ctx context.Context, q quote.Quote) error {
	k, ok := q.Kind()
	if !ok {
		return fmt.Errorf("%w: code %q", quote.ErrUnknownKind, q.Code)
	}
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return c.Store.Set(ctx, c.key(k), b, c.TTL).Err()
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
