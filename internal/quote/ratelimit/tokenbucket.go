package ratelimit

import (
	"context"
	"sync"
	"time"

	"dolarprovider/internal/quote"
)

// TokenBucket is a token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// PerMinute builds a bucket from a requests-per-minute budget.
func PerMinute(rpm, burst int) *TokenBucket {
	return NewTokenBucket(float64(rpm)/60.0, burst)
}

// Wait blocks until n tokens are available or the context is canceled.
// Each page download costs one token, so a provider call for n kinds takes n.
func (tb *TokenBucket) Wait(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	need := float64(n)
	if need > tb.capacity {
		// never satisfiable at once; drain in capacity-sized steps
		for need > tb.capacity {
			if err := tb.Wait(ctx, int(tb.capacity)); err != nil {
				return err
			}
			need -= tb.capacity
		}
	}
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= need {
			tb.tokens -= need
			tb.mu.Unlock()
			return nil
		}
		deficit := need - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucketProvider wraps a Provider and gates calls using a token bucket.
type TokenBucketProvider struct {
	P  quote.Provider
	TB *TokenBucket
}

func (t *TokenBucketProvider) Name() string { return t.P.Name() }

func (t *TokenBucketProvider) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	if t.TB != nil {
		n := len(kinds)
		if n == 0 {
			n = len(quote.AllKinds())
		}
		if err := t.TB.Wait(ctx, n); err != nil {
			return nil, err
		}
	}
	return t.P.Fetch(ctx, kinds)
}

// Wrap applies the configured limiter: a token bucket when rpm is set,
// otherwise a minimum interval, otherwise p unchanged.
func Wrap(p quote.Provider, rpm, burst int, minInterval time.Duration) quote.Provider {
	if rpm > 0 {
		if burst <= 0 {
			burst = 1
		}
		return &TokenBucketProvider{P: p, TB: PerMinute(rpm, burst)}
	}
	if minInterval > 0 {
		return &MinInterval{P: p, Interval: minInterval}
	}
	return p
}
