package ratelimit

import (
	"context"
	"sync"
	"time"

	"dolarprovider/internal/quote"
)

// MinInterval wraps a provider and enforces a minimum time between the
// starts of consecutive calls. Each caller reserves its slot before waiting,
// so concurrent callers are spaced out rather than released together.
type MinInterval struct {
	P        quote.Provider
	Interval time.Duration

	mu   sync.Mutex
	next time.Time // earliest start for the next caller
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	if m.Interval > 0 {
		if err := m.wait(ctx); err != nil {
			return nil, err
		}
	}
	return m.P.Fetch(ctx, kinds)
}

func (m *MinInterval) wait(ctx context.Context) error {
	m.mu.Lock()
	now := time.Now()
	slot := now
	if m.next.After(now) {
		slot = m.next
	}
	m.next = slot.Add(m.Interval)
	m.mu.Unlock()

	d := slot.Sub(now)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
